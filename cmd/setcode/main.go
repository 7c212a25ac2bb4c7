// Command setcode hosts upgradeable program instances.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/setcode/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "setcode:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
