package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/quizgen/internal/sanitize"
)

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize <reply-file|->",
	Short: "Print the JSON the parser would see for an AI reply",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reply, err := readInput(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sanitize.Sanitize(reply))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sanitizeCmd)
}
