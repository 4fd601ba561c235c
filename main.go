package main

import "github.com/sw33tLie/cardex/cmd"

func main() {
	cmd.Execute()
}
