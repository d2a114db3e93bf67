package main

import "github.com/predarb/crossvenue-arb/cmd"

func main() {
	cmd.Execute()
}
