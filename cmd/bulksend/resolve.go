package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/bulksend/internal/recipient"
)

func newResolveCmd(configPath *string) *cobra.Command {
	var (
		numbers string
		file    string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the recipient list a send would use",
		Long: `Normalize and deduplicate numbers from --numbers and/or a spreadsheet
(--file, xlsx or csv) exactly as the web form does, and print one canonical
number per line. Nothing is sent.`,
		Example: `  bulksend resolve --numbers "9723625050, +919723625050"
  bulksend resolve --file contacts.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}

			res := recipient.NewResolver(recipientRules(&cfg.Recipients))

			var sheet []string
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", file, err)
				}
				sheet, err = res.ExtractSheet(filepath.Base(file), data)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", file, err)
				}
			}

			list, err := res.Resolve(recipient.ParseList(numbers), sheet)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, n := range list {
				fmt.Fprintln(out, n)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d recipient(s)\n", len(list))
			return nil
		},
	}

	cmd.Flags().StringVar(&numbers, "numbers", "", "Comma-separated phone numbers")
	cmd.Flags().StringVar(&file, "file", "", "Spreadsheet (xlsx or csv) with one number per row")
	return cmd
}
