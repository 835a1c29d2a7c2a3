// Package mcp exposes action item extraction as an MCP tool.
//
// The server registers a single tool, extract_action_items, through the MCP
// SDK (github.com/modelcontextprotocol/go-sdk/mcp). It takes a batch of
// documents and returns the per-document results as structured content,
// with a one-line text summary for clients that only read text.
package mcp
