package script

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crawltpl/crawltpl/crawlerr"
)

func TestParseModeClassification(t *testing.T) {
	tests := []struct {
		name string
		text string
		mode Mode
	}{
		{"bare selector chain is element mode", `selector("div.list").selector("a")`, ModeElement},
		{"selector then val is value mode", `selector("a.detail").val()`, ModeValue},
		{"selector then attr is value mode", `selector("img").attr("src")`, ModeValue},
		{"selector then accessor then transform is value mode", `selector("h1").val().uppercase()`, ModeValue},
		{"selector then accessor then condition is value mode", `selector("span").val().equals("x")`, ModeValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := Parse(tt.text, false)
			assert.NoError(t, err)
			assert.Equal(t, tt.mode, sc.Mode())
		})
	}
}

func TestParseTextModeRequiresOptIn(t *testing.T) {
	_, err := Parse(`uppercase().replace("a", "b")`, false)
	assert.Error(t, err)
	assert.True(t, crawlerr.Is(err, crawlerr.KindCharProcessAlone))

	sc, err := Parse(`uppercase().replace("a", "b")`, true)
	assert.NoError(t, err)
	assert.Equal(t, ModeText, sc.Mode())
}

func TestParseRejectsAccessorBeforeSelector(t *testing.T) {
	_, err := Parse(`val()`, false)
	assert.Error(t, err)
	assert.True(t, crawlerr.Is(err, crawlerr.KindScriptParse))
}

func TestParseRejectsTransformAfterElementChain(t *testing.T) {
	// selector_rule* with no accessor cannot be followed by a transform.
	_, err := Parse(`selector("a").uppercase()`, false)
	assert.Error(t, err)
}

func TestParseIndexArgumentMustBeLiteral(t *testing.T) {
	_, err := Parse(`selector("a").parent(${n})`, false)
	assert.Error(t, err)

	sc, err := Parse(`selector("a").parent(2)`, false)
	assert.NoError(t, err)
	assert.Equal(t, ModeElement, sc.Mode())
}

func TestParseQuotedStringEscaping(t *testing.T) {
	sc, err := Parse(`selector("a[title=\"x\"]").val()`, false)
	assert.NoError(t, err)
	assert.Equal(t, ModeValue, sc.Mode())
}

func TestParseDynamicParam(t *testing.T) {
	sc, err := Parse(`selector("a").attr(${attr_name})`, false)
	assert.NoError(t, err)
	assert.Equal(t, ModeValue, sc.Mode())
}

func TestParseUnknownCommand(t *testing.T) {
	_, err := Parse(`bogus("x")`, false)
	assert.Error(t, err)
	assert.True(t, crawlerr.Is(err, crawlerr.KindScriptParse))
}

func TestParseWrongArgCount(t *testing.T) {
	_, err := Parse(`selector()`, false)
	assert.Error(t, err)

	_, err = Parse(`replace("a")`, true)
	assert.Error(t, err)
}

// TestRoundTrip pins the canonical-reparseability property from spec §8:
// parsing, re-serialising, and re-parsing must yield the same mode and
// canonical form. This is a deliberate divergence from the upstream
// Display impl, which does not re-quote static params.
func TestRoundTrip(t *testing.T) {
	inputs := []string{
		`selector("div.list").selector("a.detail")`,
		`selector("a").val().replace("a", "b").uppercase()`,
		`selector("img").attr("src")`,
		`selector("a").parent(2)`,
		`selector("a").prev(1)`,
		`selector("a").nth(3)`,
		`selector("a").val().regex_extract("[0-9]+")`,
		`selector("a").val().regex_replace("[0-9]+", "#")`,
		`selector("a").val().equals("x")`,
		`selector("a").html()`,
		`selector("a").val().insert(0, "x").prepend("p").append("s").delete("d")`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			first, err := Parse(in, false)
			assert.NoError(t, err)

			second, err := Parse(first.String(), false)
			assert.NoError(t, err)

			assert.Equal(t, first.Mode(), second.Mode())
			assert.Equal(t, first.String(), second.String())
		})
	}
}
