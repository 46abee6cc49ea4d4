// Package logging provides file-based structured logging with rotation
// for repovec. Logs are written as JSON lines to ~/.repovec/logs/ and
// optionally mirrored to stderr for interactive commands.
//
// MCP server mode must never write to stdout or stderr (both would
// corrupt the JSON-RPC stream), so SetupMCPMode logs to file only.
package logging
