package main

import "github.com/cbout22/repofetch/internal/cli"

func main() {
	cli.Execute()
}
