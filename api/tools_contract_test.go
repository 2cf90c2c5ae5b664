package api

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acmecorp/docs-mcp/internal/policy"
)

func TestToolsContract_Parses(t *testing.T) {
	catalog, err := policy.NewCatalog(ToolsContract)
	require.NoError(t, err)

	names := make([]string, 0, catalog.Len())
	for _, tool := range catalog.List() {
		names = append(names, tool.Name)
	}
	require.Equal(t, []string{"get_public_info", "get_confidential_info"}, names)

	tool, ok := catalog.Lookup("get_confidential_info")
	require.True(t, ok)
	require.Equal(t, "confidential:read", tool.RequiredScope)
	require.Equal(t, "confidential.md", tool.Document)
}
