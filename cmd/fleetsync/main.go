// Command fleetsync runs and operates a fleet state replication node.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/fleetsync/internal/cli"
	"github.com/roach88/fleetsync/internal/config"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCommandError)
	}

	os.Exit(cli.Execute(cli.NewRootCommand()))
}
