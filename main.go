// The main package for the malegislature-crawler executable.
package main

import (
	"os"

	"github.com/JakeFAU/malegislature-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	os.Exit(cmd.Execute())
}
