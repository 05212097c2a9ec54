package main

import "github.com/crawltpl/crawltpl/cmd"

func main() {
	cmd.Execute()
}
