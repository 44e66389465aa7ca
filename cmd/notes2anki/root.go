package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/notes2anki/internal/flashcard"
	"github.com/dgallion1/notes2anki/internal/pipeline"
	"github.com/dgallion1/notes2anki/internal/segment"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	orange  []string
	purple  []string
	verbose bool
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "notes2anki",
		Short:         "Turn color-coded study notes into Anki flashcards",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&opts.orange, "orange", segment.OrangeColors, "hex colors marking topic headings")
	root.PersistentFlags().StringSliceVar(&opts.purple, "purple", segment.PurpleColors, "hex colors marking subtopic headings")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(extractCmd(opts), buildCmd(opts), pushCmd(opts))
	return root
}

func (o *globalOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *globalOptions) palette() segment.Palette {
	return segment.NewPalette(o.orange, o.purple)
}

// loadCards reads a notes file and segments it into cards.
func (o *globalOptions) loadCards(path string, log *slog.Logger) ([]flashcard.Card, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	palette := o.palette()
	paragraphs, skipped, err := pipeline.ParseFile(filepath.Base(path), data, palette)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if skipped > 0 {
		log.Debug("skipped images", "file", path, "count", skipped)
	}
	cards := segment.Segment(paragraphs, segment.NewClassifier(palette))
	log.Debug("segmented", "file", path, "paragraphs", len(paragraphs), "cards", len(cards))
	return cards, nil
}

// fileStem returns the file name without directory or extension.
func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
