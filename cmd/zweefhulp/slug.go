package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"zweefhulp/internal/slug"
)

var slugReverse bool

var slugCmd = &cobra.Command{
	Use:   "slug [text...]",
	Short: "Print the URL slug of a query, or the query text of a slug",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := strings.Join(args, " ")
		if slugReverse {
			fmt.Fprintln(cmd.OutOrStdout(), slug.Deslugify(slug.Slugify(in)))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), slug.Slugify(in))
		return nil
	},
}

func init() {
	slugCmd.Flags().BoolVarP(&slugReverse, "reverse", "r", false, "turn a slug back into query text")
	rootCmd.AddCommand(slugCmd)
}
