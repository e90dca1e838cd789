// The main package for the scrapeproxy executable.
package main

import (
	"github.com/JakeFAU/scrape-proxy/cmd"
)

// main defers all execution to the cobra CLI.
func main() {
	cmd.Execute()
}
