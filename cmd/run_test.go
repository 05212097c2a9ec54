package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParamsSingleValue(t *testing.T) {
	params, err := parseParams([]string{"crawl_name=horror", "page=1"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"crawl_name": {"horror"}, "page": {"1"}}, params)
}

func TestParseParamsRepeatedNameAccumulates(t *testing.T) {
	params, err := parseParams([]string{"tag=a", "tag=b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, params["tag"])
}

func TestParseParamsValueContainingEquals(t *testing.T) {
	params, err := parseParams([]string{"query=a=b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a=b"}, params["query"])
}

func TestParseParamsRejectsMissingEquals(t *testing.T) {
	_, err := parseParams([]string{"no-equals-sign"})
	require.Error(t, err)
}
