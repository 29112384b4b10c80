package main

import "priceregistry/cmd/priceregistry/commands"

func main() {
	commands.ExecuteContext(commands.SignalContext())
}
