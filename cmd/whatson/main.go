package main

import "whatson/internal/cli"

func main() {
	cli.Execute()
}
