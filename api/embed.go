// Package api embeds the MCP tool catalog served by docs-mcp.
package api

import _ "embed"

// ToolsContract contains the raw tool catalog YAML.
//
//go:embed tools.yaml
var ToolsContract []byte
