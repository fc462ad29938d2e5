// zweefhulp serves per-party answers to policy questions, drawn from the
// election programs of Dutch political parties.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "zweefhulp",
	Short: "Compare party positions on a policy topic",
	Long: `zweefhulp answers a policy question for every party by retrieving the
closest passages of its election program and summarising them into
positions backed by verbatim quotes.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "zweefhulp.yaml", "path to the YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
