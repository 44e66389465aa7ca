// Package ankiconnect pushes cards into a running Anki desktop through the
// AnkiConnect add-on's JSON API.
package ankiconnect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgallion1/notes2anki/internal/apkg"
	"github.com/dgallion1/notes2anki/internal/flashcard"
)

const apiVersion = 6

// DefaultModel is the note type present in every Anki profile.
const DefaultModel = "Basic"

// Client communicates with the AnkiConnect HTTP API.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	log        *slog.Logger

	// backoff is swapped out in tests.
	backoff func(attempt int) time.Duration
}

func NewClient(baseURL string, log *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   DefaultModel,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log:     log,
		backoff: Backoff,
	}
}

type request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// Note is one addNotes entry.
type Note struct {
	DeckName  string            `json:"deckName"`
	ModelName string            `json:"modelName"`
	Fields    map[string]string `json:"fields"`
	Tags      []string          `json:"tags"`
	Options   NoteOptions       `json:"options"`
}

// NoteOptions controls duplicate handling.
type NoteOptions struct {
	AllowDuplicate bool   `json:"allowDuplicate"`
	DuplicateScope string `json:"duplicateScope,omitempty"`
}

// PushResult summarizes a Push call.
type PushResult struct {
	Added   int      `json:"added"`
	Skipped int      `json:"skipped"`
	Decks   []string `json:"decks"`
	NoteIDs []int64  `json:"note_ids"`
}

// invoke performs one action, retrying transient failures.
func (c *Client) invoke(ctx context.Context, action string, params, result any) error {
	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		lastErr = c.invokeOnce(ctx, action, params, result)
		if lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
		c.log.Warn("retryable ankiconnect error", "action", action, "attempt", attempt, "error", lastErr)
		if attempt == MaxRetries-1 {
			break
		}
		select {
		case <-time.After(c.backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (c *Client) invokeOnce(ctx context.Context, action string, params, result any) error {
	body, err := json.Marshal(request{Action: action, Version: apiVersion, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", action, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", action, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d: %s", action, resp.StatusCode, truncate(string(respBody), 1024))
	}

	var out response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return fmt.Errorf("decode %s response: %w", action, err)
	}
	if msg, failed := errorMessage(out.Error); failed {
		return fmt.Errorf("ankiconnect %s: %s", action, msg)
	}
	if result != nil && len(out.Result) > 0 {
		if err := json.Unmarshal(out.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", action, err)
		}
	}
	return nil
}

// errorMessage reads the error member. Newer add-on versions report
// per-note addNotes failures as an array next to a result with nulls; those
// are surfaced through the result instead.
func errorMessage(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return msg, true
	}
	return "", false
}

// Version returns the AnkiConnect API version, doubling as a reachability check.
func (c *Client) Version(ctx context.Context) (int, error) {
	var v int
	if err := c.invoke(ctx, "version", nil, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// CreateDeck creates a deck (and its parents). Existing decks are left as is.
func (c *Client) CreateDeck(ctx context.Context, name string) (int64, error) {
	var id int64
	if err := c.invoke(ctx, "createDeck", map[string]string{"deck": name}, &id); err != nil {
		return 0, err
	}
	return id, nil
}

// StoreMediaFile uploads base64 image data under filename.
func (c *Client) StoreMediaFile(ctx context.Context, filename, data string) error {
	return c.invoke(ctx, "storeMediaFile", map[string]string{"filename": filename, "data": data}, nil)
}

// AddNotes adds notes; the result holds nil for each note Anki rejected
// (usually a duplicate).
func (c *Client) AddNotes(ctx context.Context, notes []Note) ([]*int64, error) {
	var ids []*int64
	if err := c.invoke(ctx, "addNotes", map[string]any{"notes": notes}, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Push files cards into deckName and its tag subdecks, the same layout the
// .apkg packager produces. Images are uploaded as media first.
func (c *Client) Push(ctx context.Context, cards []flashcard.Card, deckName string) (*PushResult, error) {
	deckName = strings.TrimSpace(deckName)
	if deckName == "" {
		deckName = apkg.DefaultDeckName
	}

	result := &PushResult{Decks: []string{}, NoteIDs: []int64{}}
	created := map[string]bool{}
	notes := make([]Note, 0, len(cards))

	for ci, card := range cards {
		deck := apkg.DeckNameFor(deckName, card)
		if !created[deck] {
			if _, err := c.CreateDeck(ctx, deck); err != nil {
				return nil, fmt.Errorf("create deck %q: %w", deck, err)
			}
			created[deck] = true
			result.Decks = append(result.Decks, deck)
		}

		back := apkg.TextToHTML(card.Back)
		for i, img := range card.Images {
			data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(img))
			if err != nil {
				return nil, fmt.Errorf("card %d image %d: invalid base64: %w", ci, i, err)
			}
			name := apkg.MediaName(data, i)
			if err := c.StoreMediaFile(ctx, name, strings.TrimSpace(img)); err != nil {
				return nil, fmt.Errorf("store media %s: %w", name, err)
			}
			back += `<br><img src="` + name + `">`
		}

		tags := card.Tags
		if tags == nil {
			tags = []string{}
		}
		notes = append(notes, Note{
			DeckName:  deck,
			ModelName: c.model,
			Fields:    map[string]string{"Front": apkg.TextToHTML(card.Front), "Back": back},
			Tags:      tags,
			Options:   NoteOptions{DuplicateScope: "deck"},
		})
	}

	if len(notes) == 0 {
		return result, nil
	}
	ids, err := c.AddNotes(ctx, notes)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if id == nil {
			result.Skipped++
			continue
		}
		result.Added++
		result.NoteIDs = append(result.NoteIDs, *id)
	}
	c.log.Info("pushed cards to anki", "deck", deckName, "added", result.Added, "skipped", result.Skipped)
	return result, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
