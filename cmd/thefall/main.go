package main

import "github.com/thefall/sessionserver/internal/cli"

func main() {
	cli.Execute()
}
