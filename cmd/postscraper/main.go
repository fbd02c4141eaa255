package main

import (
	"github.com/JakeFAU/realtime-post-scraper/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
