package main

import "github.com/gatewire/gatewire/cmd/gatewire/cmd"

func main() {
	cmd.Execute()
}
