package template

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawltpl/crawltpl/crawlerr"
	"github.com/crawltpl/crawltpl/script"
)

func TestLoadSampleTemplate(t *testing.T) {
	data, err := os.ReadFile("testdata/sample.yaml")
	require.NoError(t, err)

	tpl, err := Load(data)
	require.NoError(t, err)

	assert.Equal(t, "${base_url}/search?q=${crawl_name}&f=all", tpl.EntrypointPattern)
	assert.Equal(t, []string{"https://example.com"}, tpl.Parameters["base_url"])

	// Workflows[0] is the entrypoint workflow; the request:true detail_url
	// node spawns a second, derived workflow.
	require.Len(t, tpl.Workflows, 2)
	assert.Equal(t, "", tpl.Workflows[0].URLKey)
	assert.Equal(t, "detail_url", tpl.Workflows[1].URLKey)

	require.Len(t, tpl.Workflows[0].Nodes, 1)
	listing := tpl.Workflows[0].Nodes[0]
	assert.Equal(t, "listing", listing.Name)
	require.Len(t, listing.Children, 4)

	// The request:true node still appears as a (childless) leaf in its
	// parent workflow...
	var detailLeaf *WorkflowNode
	for _, c := range listing.Children {
		if c.Name == "detail_url" {
			detailLeaf = c
		}
	}
	require.NotNil(t, detailLeaf)
	assert.Empty(t, detailLeaf.Children)

	// ...and its raw children become the derived workflow's own node list.
	require.Len(t, tpl.Workflows[1].Nodes, 1)
	assert.Equal(t, "name", tpl.Workflows[1].Nodes[0].Name)
}

func TestLoadBareScalarNodeShorthand(t *testing.T) {
	yaml := []byte(`
entrypoint: "https://example.com/x"
nodes:
  title: selector("h1").val()
`)
	tpl, err := Load(yaml)
	require.NoError(t, err)
	require.Len(t, tpl.Workflows[0].Nodes, 1)
	assert.Equal(t, "title", tpl.Workflows[0].Nodes[0].Name)
}

func TestLoadDuplicateNodeNameRejected(t *testing.T) {
	yaml := []byte(`
entrypoint: "https://example.com/x"
nodes:
  listing:
    script: selector(".a")
    children:
      title: selector("h1").val()
  title: selector("h2").val()
`)
	_, err := Load(yaml)
	require.Error(t, err)
	assert.True(t, crawlerr.Is(err, crawlerr.KindDuplicateKey))
}

func TestLoadDuplicateNodeNameAcrossNestingRejected(t *testing.T) {
	// Node names form one flat namespace across the whole tree, not just
	// within a sibling map, since captured variables share one store.
	yaml := []byte(`
entrypoint: "https://example.com/x"
nodes:
  listing:
    script: selector(".a")
    children:
      title: selector("h1").val()
      nested:
        script: selector(".b")
        children:
          title: selector("h2").val()
`)
	_, err := Load(yaml)
	require.Error(t, err)
	assert.True(t, crawlerr.Is(err, crawlerr.KindDuplicateKey))
}

func TestLoadValueNodeWithChildrenRequiresRequestFlag(t *testing.T) {
	yaml := []byte(`
entrypoint: "https://example.com/x"
nodes:
  detail_url:
    script: selector("a").attr("href")
    children:
      name: selector("h1").val()
`)
	_, err := Load(yaml)
	require.Error(t, err)
	assert.True(t, crawlerr.Is(err, crawlerr.KindRootElementAccessNotAllowed))
}

func TestLoadValueNodeWithChildrenAndRequestFlagIsFine(t *testing.T) {
	yaml := []byte(`
entrypoint: "https://example.com/x"
nodes:
  detail_url:
    script: selector("a").attr("href")
    request: true
    children:
      name: selector("h1").val()
`)
	_, err := Load(yaml)
	require.NoError(t, err)
}

func TestLoadMissingRequiredKeys(t *testing.T) {
	_, err := Load([]byte(`nodes: {}`))
	require.Error(t, err)
	assert.True(t, crawlerr.Is(err, crawlerr.KindTemplateFormat))

	_, err = Load([]byte(`entrypoint: "https://example.com"`))
	require.Error(t, err)
	assert.True(t, crawlerr.Is(err, crawlerr.KindTemplateFormat))
}

func TestResolveEntrypointWithTextScript(t *testing.T) {
	yaml := []byte(`
entrypoint:
  url: "HTTPS://EXAMPLE.COM/x"
  script: lowercase()
nodes:
  title: selector("h1").val()
`)
	tpl, err := Load(yaml)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/x", tpl.EntrypointPattern)
}

func TestLintFlagsUnresolvedEntrypointPlaceholder(t *testing.T) {
	yaml := []byte(`
entrypoint: "https://example.com/search?q=${crawl_name}"
nodes:
  title: selector("h1").val()
`)
	tpl, err := Load(yaml)
	require.NoError(t, err)

	issues := Lint(tpl)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "crawl_name")
}

func TestLintPassesWhenPlaceholderInEnv(t *testing.T) {
	yaml := []byte(`
entrypoint: "https://example.com/search?q=${crawl_name}"
env:
  crawl_name: ["horror"]
nodes:
  title: selector("h1").val()
`)
	tpl, err := Load(yaml)
	require.NoError(t, err)
	assert.Empty(t, Lint(tpl))
}

// sanity check that rawNode's script field really does parse, exercised
// indirectly above; this test just confirms the Script accessor plumbing
// on the converted tree.
func TestConvertedNodeExposesMode(t *testing.T) {
	yaml := []byte(`
entrypoint: "https://example.com/x"
nodes:
  listing:
    script: selector(".a")
    children:
      title: selector("h1").val()
`)
	tpl, err := Load(yaml)
	require.NoError(t, err)
	listing := tpl.Workflows[0].Nodes[0]
	assert.Equal(t, script.ModeElement, listing.Script.Mode())
	assert.Equal(t, script.ModeValue, listing.Children[0].Script.Mode())
}
