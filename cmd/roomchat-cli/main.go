package main

import "github.com/nfrund/roomchat/cmd/roomchat-cli/cmd"

func main() {
	cmd.Execute()
}
