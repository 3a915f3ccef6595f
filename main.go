package main

import "github.com/heavenlabs/scrobbled/cmd"

func main() {
	cmd.Execute()
}
