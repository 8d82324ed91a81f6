package main

import "github.com/coreman2200/funtimes-scorelight/internal/cli"

func main() {
	cli.Execute()
}
