package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calembot/calembot/internal/adapters/pundict"
)

func newDictCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dict",
		Short: "Inspect the pun dictionary",
	}

	cmd.AddCommand(newDictCheckCmd(app))

	return cmd
}

func newDictCheckCmd(app *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the pun dictionary and print per-language trigger counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := file
			if path == "" {
				path = app.punsPath
			}

			dict, err := pundict.Load(path)
			if err != nil {
				return fmt.Errorf("load pun dictionary: %w", err)
			}

			out := cmd.OutOrStdout()
			languages := dict.Languages()
			fmt.Fprintf(out, "dictionary: %s\n", path)
			fmt.Fprintf(out, "languages: %d\n", len(languages))
			for _, lang := range languages {
				fmt.Fprintf(out, "  %s: %d triggers\n", lang, dict.TriggerCount(lang))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Dictionary file (defaults to dictionary.path)")

	return cmd
}
