package main

import "mycelica/notetree/cmd"

func main() {
	cmd.Execute()
}
