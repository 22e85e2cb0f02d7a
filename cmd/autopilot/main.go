package main

import "github.com/rahul/autopilot/internal/cli"

func main() {
	cli.Execute()
}
