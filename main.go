package main

import "github.com/jina-ai/hubble-go/cmd"

func main() {
	cmd.Execute()
}
