package main

import "github.com/pfrederiksen/stuwo-offers/internal/cli"

func main() {
	cli.Execute()
}
