// Package apkg writes flashcards as an Anki package: a zip holding the
// collection database and the media files referenced by card answers.
package apkg

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dgallion1/notes2anki/internal/flashcard"
)

// DefaultDeckName is used when the caller supplies a blank deck name.
const DefaultDeckName = "My Deck"

// MediaFile is one image shipped inside the package.
type MediaFile struct {
	Name string
	Data []byte
}

type note struct {
	id     int64
	deckID int64
	guid   string
	front  string
	back   string
	tags   []string
}

// Build renders cards into .apkg bytes. Cards tagged "Outer::Inner" land in
// the subdeck "<deckName>::Outer::Inner"; untagged cards stay in the root
// deck. An empty card list still produces a valid package.
func Build(ctx context.Context, cards []flashcard.Card, deckName string) ([]byte, error) {
	deckName = strings.TrimSpace(deckName)
	if deckName == "" {
		deckName = DefaultDeckName
	}
	now := time.Now()

	deckIDs := newIDAllocator(defaultDeckID)
	noteIDs := newIDAllocator()
	decks := []deckEntry{newDeckEntry(deckIDs.next(deckName), deckName, now.Unix())}
	deckByName := map[string]int64{deckName: decks[0].ID}

	var media []MediaFile
	mediaSeen := map[string]bool{}
	notes := make([]note, 0, len(cards))

	for ci, c := range cards {
		full := DeckNameFor(deckName, c)
		did, ok := deckByName[full]
		if !ok {
			did = deckIDs.next(full)
			deckByName[full] = did
			decks = append(decks, newDeckEntry(did, full, now.Unix()))
		}

		back := TextToHTML(c.Back)
		for i, img := range c.Images {
			data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(img))
			if err != nil {
				return nil, fmt.Errorf("card %d image %d: invalid base64: %w", ci, i, err)
			}
			name := MediaName(data, i)
			if !mediaSeen[name] {
				mediaSeen[name] = true
				media = append(media, MediaFile{Name: name, Data: data})
			}
			back += `<br><img src="` + name + `">`
		}

		notes = append(notes, note{
			id:     noteIDs.next(c.Front),
			deckID: did,
			guid:   GUIDFor(c.Front),
			front:  TextToHTML(c.Front),
			back:   back,
			tags:   c.Tags,
		})
	}

	collection, err := writeCollection(ctx, now, decks, notes)
	if err != nil {
		return nil, err
	}
	return zipPackage(collection, media)
}

// MediaName names an image by content hash and its position on the card.
func MediaName(data []byte, index int) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("img_%x_%d.%s", h[:6], index, imageExt(data))
}

func imageExt(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return "jpg"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "image/bmp":
		return "bmp"
	default:
		return "png"
	}
}

func writeCollection(ctx context.Context, now time.Time, decks []deckEntry, notes []note) ([]byte, error) {
	dir, err := os.MkdirTemp("", "notes2anki-apkg-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "collection.anki2")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}
	if err := fillCollection(ctx, db, now, decks, notes); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.Close(); err != nil {
		return nil, fmt.Errorf("close collection: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read collection: %w", err)
	}
	return data, nil
}

func fillCollection(ctx context.Context, db *sql.DB, now time.Time, decks []deckEntry, notes []note) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	rootID := decks[0].ID
	models, err := modelJSON(rootID, now.Unix())
	if err != nil {
		return fmt.Errorf("encode models: %w", err)
	}
	all := append([]deckEntry{newDeckEntry(defaultDeckID, "Default", now.Unix())}, decks...)
	decksDoc, err := decksJSON(all)
	if err != nil {
		return fmt.Errorf("encode decks: %w", err)
	}
	conf, err := colConfJSON(rootID)
	if err != nil {
		return fmt.Errorf("encode conf: %w", err)
	}
	dconf, err := dconfJSON()
	if err != nil {
		return fmt.Errorf("encode deck options: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags)
		 VALUES (1, ?, ?, ?, ?, 0, 0, 0, ?, ?, ?, ?, '{}')`,
		now.Unix(), now.UnixMilli(), now.UnixMilli(), schemaVersion, conf, models, decksDoc, dconf)
	if err != nil {
		return fmt.Errorf("insert col: %w", err)
	}

	cardIDs := newIDAllocator()
	for i, n := range notes {
		tags := ""
		if len(n.tags) > 0 {
			tags = " " + strings.Join(n.tags, " ") + " "
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO notes (id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data)
			 VALUES (?, ?, ?, ?, -1, ?, ?, ?, ?, 0, '')`,
			n.id, n.guid, ModelID, now.Unix(), tags, n.front+fieldSeparator+n.back,
			stripHTML(n.front), fieldChecksum(n.front))
		if err != nil {
			return fmt.Errorf("insert note %d: %w", i, err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO cards (id, nid, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, left, odue, odid, flags, data)
			 VALUES (?, ?, ?, 0, ?, -1, 0, 0, ?, 0, 0, 0, 0, 0, 0, 0, 0, '')`,
			cardIDs.next(strconv.FormatInt(n.id, 10)), n.id, n.deckID, now.Unix(), i+1)
		if err != nil {
			return fmt.Errorf("insert card %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// zipPackage writes the collection plus numbered media entries and the
// "media" manifest mapping entry numbers to file names.
func zipPackage(collection []byte, media []MediaFile) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("collection.anki2")
	if err != nil {
		return nil, fmt.Errorf("zip collection: %w", err)
	}
	if _, err := w.Write(collection); err != nil {
		return nil, fmt.Errorf("zip collection: %w", err)
	}

	manifest := make(map[string]string, len(media))
	for i, m := range media {
		key := strconv.Itoa(i)
		manifest[key] = m.Name
		w, err := zw.Create(key)
		if err != nil {
			return nil, fmt.Errorf("zip media %s: %w", m.Name, err)
		}
		if _, err := w.Write(m.Data); err != nil {
			return nil, fmt.Errorf("zip media %s: %w", m.Name, err)
		}
	}

	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("encode media manifest: %w", err)
	}
	w, err = zw.Create("media")
	if err != nil {
		return nil, fmt.Errorf("zip media manifest: %w", err)
	}
	if _, err := w.Write(manifestJSON); err != nil {
		return nil, fmt.Errorf("zip media manifest: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}
