package main

import "github.com/rbholmes/toolchat/cmd"

func main() {
	cmd.Execute()
}
