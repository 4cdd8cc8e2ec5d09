package main

import "github.com/mark3labs/mcp-go-paywall/internal/cmd"

func main() {
	cmd.Execute()
}
