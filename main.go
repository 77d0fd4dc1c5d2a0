// The main package for the herostats executable.
package main

import (
	"github.com/ow2stats/herostats/cmd"
)

func main() {
	cmd.Execute()
}
