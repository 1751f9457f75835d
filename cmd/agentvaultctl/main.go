package main

import "AgentVault/internal/cli"

func main() {
	cli.Execute()
}
