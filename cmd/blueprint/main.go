// Blueprint: requirement-to-structure MCP server.
//
// Turns a plain-language requirement ("create a safety assessment form") into
// a validated module structure, and learns from what users accept, edit or
// reject.
//
// Usage:
//
//	blueprint serve               # Start MCP server (stdio transport)
//	blueprint http                # Start the JSON/HTTP API
//	blueprint predict "<text>"    # One-shot prediction
//	blueprint patterns            # List the pattern catalogue
//	blueprint version
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
