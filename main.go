// The main package for the review-analyzer executable.
package main

import (
	"github.com/JakeFAU/review-analyzer/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
