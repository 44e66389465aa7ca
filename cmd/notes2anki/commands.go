package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/notes2anki/internal/ankiconnect"
	"github.com/dgallion1/notes2anki/internal/apkg"
)

func extractCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file>",
		Short: "Print the cards found in a notes file as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := opts.logger(cmd.ErrOrStderr())
			cards, err := opts.loadCards(args[0], log)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"cards": cards})
		},
	}
}

func buildCmd(opts *globalOptions) *cobra.Command {
	var out string
	var deck string

	cmd := &cobra.Command{
		Use:   "build <file>",
		Short: "Write an .apkg deck from a notes file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := opts.logger(cmd.ErrOrStderr())
			cards, err := opts.loadCards(args[0], log)
			if err != nil {
				return err
			}
			if deck == "" {
				deck = fileStem(args[0])
			}
			if out == "" {
				out = fileStem(args[0]) + ".apkg"
			}

			data, err := apkg.Build(cmd.Context(), cards, deck)
			if err != nil {
				return fmt.Errorf("build deck: %w", err)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			log.Info("wrote deck", "path", out, "cards", len(cards))
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"output": out,
				"deck":   deck,
				"cards":  len(cards),
				"bytes":  len(data),
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output .apkg path (default: <file>.apkg)")
	cmd.Flags().StringVar(&deck, "deck", "", "deck name (default: file name)")
	return cmd
}

func pushCmd(opts *globalOptions) *cobra.Command {
	var deck string
	var url string

	cmd := &cobra.Command{
		Use:   "push <file>",
		Short: "Add the cards from a notes file to a running Anki via AnkiConnect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := opts.logger(cmd.ErrOrStderr())
			cards, err := opts.loadCards(args[0], log)
			if err != nil {
				return err
			}
			if deck == "" {
				deck = fileStem(args[0])
			}

			client := ankiconnect.NewClient(url, log)
			defer client.Close()
			if _, err := client.Version(cmd.Context()); err != nil {
				return fmt.Errorf("ankiconnect unreachable at %s: %w", url, err)
			}
			result, err := client.Push(cmd.Context(), cards, deck)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&deck, "deck", "", "deck name (default: file name)")
	cmd.Flags().StringVar(&url, "url", "http://127.0.0.1:8765", "AnkiConnect URL")
	return cmd
}
