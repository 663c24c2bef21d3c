package main

import "github.com/pgrekey/pgrekey/cmd"

func main() {
	cmd.Execute()
}
