package commands

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nomadlabs/nomadlabs/internal/printer"
	"github.com/nomadlabs/nomadlabs/markdown"
)

var renderCmd = &cobra.Command{
	Use:   "render <file.md>",
	Short: "Render a markdown file to HTML on stdout",
	Long:  "Render a markdown file to HTML on stdout. Use - to read from stdin.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return printer.Error("Cannot read input", err.Error())
		}
		_, err = io.WriteString(cmd.OutOrStdout(), markdown.Render(string(data)))
		return err
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
}
