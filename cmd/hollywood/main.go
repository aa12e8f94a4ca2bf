// Command hollywood is the external dev/test orchestration CLI (spec
// section 6): it reads a declarative config file and shells out to each
// actor's dev or test process descriptor. It never calls into the
// broker/agent APIs directly (spec section 1's "out of scope"
// boundary).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hollywood",
	Short: "Run and test Hollywood actor systems",
	Long:  `hollywood orchestrates actor processes described in a declarative config file.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
