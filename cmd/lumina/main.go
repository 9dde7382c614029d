package main

import "github.com/fromlifetolines/lumina-ados/internal/cli"

func main() {
	cli.Execute()
}
