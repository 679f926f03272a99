package main

import "github.com/relay-commerce/relay-inventory/cli"

func main() {
	cli.Execute()
}
