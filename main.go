package main

import "github.com/hyperfetch/hyperfetch/cmd"

func main() {
	cmd.Execute()
}
