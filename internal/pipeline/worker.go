package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/notes2anki/internal/apkg"
	"github.com/dgallion1/notes2anki/internal/flashcard"
	"github.com/dgallion1/notes2anki/internal/parser"
	"github.com/dgallion1/notes2anki/internal/segment"
	"github.com/dgallion1/notes2anki/internal/stats"
	"github.com/dgallion1/notes2anki/internal/store"
)

// History records finished decks. *store.DB satisfies it.
type History interface {
	SaveDeck(ctx context.Context, rec store.DeckRecord) error
}

// Worker processes a single document job.
type Worker struct {
	palette segment.Palette
	stats   *stats.Recorder
	history History
	log     *slog.Logger
}

func NewWorker(palette segment.Palette, rec *stats.Recorder, history History, log *slog.Logger) *Worker {
	return &Worker{
		palette: palette,
		stats:   rec,
		history: history,
		log:     log,
	}
}

// Process runs parse, segment and package for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	start := time.Now()
	paragraphs, skipped, err := ParseFile(job.Filename, job.FileData(), w.palette)
	if err != nil {
		log.Error("parse failed", "error", err)
		job.Fail("parsing", fmt.Errorf("parse: %w", err))
		return
	}
	w.stats.Since(stats.StageParse, start)
	job.SetParsed(len(paragraphs), skipped)
	if skipped > 0 {
		job.AddError(fmt.Sprintf("skipped %d images in unsupported encodings", skipped))
	}
	log.Info("parsed document", "paragraphs", len(paragraphs), "skipped_images", skipped)

	if err := ctx.Err(); err != nil {
		job.Fail("parsing", err)
		return
	}

	// Phase 2: Segment
	job.SetStatus(StatusSegmenting, "segmenting")
	start = time.Now()
	cards := segment.Segment(paragraphs, segment.NewClassifier(w.palette))
	w.stats.Since(stats.StageSegment, start)
	job.SetCards(cards)
	log.Info("segmented cards", "cards", len(cards))

	// Phase 3: Package
	job.SetStatus(StatusPackaging, "packaging")
	start = time.Now()
	deck, err := apkg.Build(ctx, cards, job.DeckName)
	if err != nil {
		log.Error("package failed", "error", err)
		job.Fail("packaging", fmt.Errorf("package: %w", err))
		return
	}
	w.stats.Since(stats.StagePackage, start)

	if w.history != nil {
		rec := store.NewDeckRecord(job.ID, job.Filename, job.DeckName, cards, job.ContentHash, len(deck))
		if err := w.history.SaveDeck(ctx, rec); err != nil {
			log.Warn("save deck history failed", "error", err)
			job.AddError(fmt.Sprintf("history: %s", err))
		}
	}

	job.Complete(deck)
	log.Info("job completed", "cards", len(cards), "deck_bytes", len(deck))
}

// ParseFile picks a loader by extension and returns the paragraphs along with
// the number of images the loader had to skip.
func ParseFile(filename string, data []byte, palette segment.Palette) ([]flashcard.Paragraph, int, error) {
	p, err := parser.ForFile(filename, parser.Options{Palette: palette})
	if err != nil {
		return nil, 0, err
	}
	paragraphs, err := p.Parse(bytes.NewReader(data), filename)
	if err != nil {
		return nil, 0, err
	}
	skipped := 0
	if pdf, ok := p.(*parser.PDFParser); ok {
		skipped = pdf.SkippedImages
	}
	return paragraphs, skipped, nil
}
