package main

import "github.com/nben/cipofetch/cmd"

func main() {
	cmd.Execute()
}
