package main

import "github.com/sergev/ti99disk/cmd"

func main() {
	cmd.Execute()
}
