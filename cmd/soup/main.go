package main

import "soup/internal/cli"

func main() {
	cli.Execute()
}
