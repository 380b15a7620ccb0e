package main

import "github.com/Wyydra/yamesh/internal/cli"

func main() {
	cli.Execute()
}
