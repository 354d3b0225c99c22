package main

import "github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/cli"

func main() {
	cli.Execute()
}
