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
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/dgallion1/notes2anki/internal/flashcard"
)

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n0000IHDR")

func openPackage(t *testing.T, data []byte) (*zip.Reader, *sql.DB) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	coll := readEntry(t, zr, "collection.anki2")
	path := filepath.Join(t.TempDir(), "collection.anki2")
	if err := os.WriteFile(path, coll, 0o600); err != nil {
		t.Fatalf("write collection: %v", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open collection: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return zr, db
}

func readEntry(t *testing.T, zr *zip.Reader, name string) []byte {
	t.Helper()
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return data
	}
	t.Fatalf("entry %s not found", name)
	return nil
}

func deckNames(t *testing.T, db *sql.DB) map[string]int64 {
	t.Helper()
	var raw string
	if err := db.QueryRow("SELECT decks FROM col").Scan(&raw); err != nil {
		t.Fatalf("query decks: %v", err)
	}
	var decks map[string]struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(raw), &decks); err != nil {
		t.Fatalf("decode decks: %v", err)
	}
	names := make(map[string]int64, len(decks))
	for _, d := range decks {
		names[d.Name] = d.ID
	}
	return names
}

func TestBuild_NotesDecksAndCards(t *testing.T) {
	cards := []flashcard.Card{
		{Front: "What are the chambers of the heart?", Back: "Two atria\nTwo ventricles", Tags: []string{"Cardiology"}},
		{Front: "Define cardiac output", Back: "CO = HR x SV", Tags: []string{"Cardiology::Physiology-Basics"}},
		{Front: "Untagged?", Back: "Root deck"},
	}
	data, err := Build(context.Background(), cards, "Test Deck")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, db := openPackage(t, data)

	var notes, cardsN int
	if err := db.QueryRow("SELECT COUNT(*) FROM notes").Scan(&notes); err != nil {
		t.Fatalf("count notes: %v", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM cards").Scan(&cardsN); err != nil {
		t.Fatalf("count cards: %v", err)
	}
	if notes != 3 || cardsN != 3 {
		t.Errorf("expected 3 notes and 3 cards, got %d and %d", notes, cardsN)
	}

	names := deckNames(t, db)
	for _, want := range []string{"Default", "Test Deck", "Test Deck::Cardiology", "Test Deck::Cardiology::Physiology Basics"} {
		if _, ok := names[want]; !ok {
			t.Errorf("expected deck %q, got %v", want, names)
		}
	}

	var flds, tags string
	var did int64
	err = db.QueryRow(`SELECT n.flds, n.tags, c.did FROM notes n JOIN cards c ON c.nid = n.id WHERE n.id = ?`,
		StableID("Define cardiac output")).Scan(&flds, &tags, &did)
	if err != nil {
		t.Fatalf("query note: %v", err)
	}
	if flds != "Define cardiac output\x1fCO = HR x SV" {
		t.Errorf("unexpected fields %q", flds)
	}
	if tags != " Cardiology::Physiology-Basics " {
		t.Errorf("unexpected tags %q", tags)
	}
	if did != names["Test Deck::Cardiology::Physiology Basics"] {
		t.Errorf("expected card in subdeck, got deck id %d", did)
	}

	var rootDid int64
	if err := db.QueryRow(`SELECT c.did FROM cards c JOIN notes n ON c.nid = n.id WHERE n.guid = ?`, GUIDFor("Untagged?")).Scan(&rootDid); err != nil {
		t.Fatalf("query untagged: %v", err)
	}
	if rootDid != names["Test Deck"] {
		t.Errorf("expected untagged card in root deck, got %d", rootDid)
	}
}

func TestBuild_Model(t *testing.T) {
	data, err := Build(context.Background(), []flashcard.Card{{Front: "Q", Back: "A"}}, "D")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, db := openPackage(t, data)

	var raw string
	var ver int
	if err := db.QueryRow("SELECT models, ver FROM col").Scan(&raw, &ver); err != nil {
		t.Fatalf("query models: %v", err)
	}
	if ver != 11 {
		t.Errorf("expected schema version 11, got %d", ver)
	}
	var models map[string]struct {
		Name  string `json:"name"`
		CSS   string `json:"css"`
		Tmpls []struct {
			AFmt string `json:"afmt"`
		} `json:"tmpls"`
	}
	if err := json.Unmarshal([]byte(raw), &models); err != nil {
		t.Fatalf("decode models: %v", err)
	}
	m, ok := models[strconv.FormatInt(ModelID, 10)]
	if !ok {
		t.Fatalf("expected model %d, got %v", ModelID, models)
	}
	if m.Name != ModelName || !strings.Contains(m.CSS, "border-collapse") {
		t.Errorf("unexpected model %+v", m)
	}
	if len(m.Tmpls) != 1 || m.Tmpls[0].AFmt != `{{FrontSide}}<hr id="answer">{{Back}}` {
		t.Errorf("unexpected templates %+v", m.Tmpls)
	}
}

func TestBuild_Media(t *testing.T) {
	img := base64.StdEncoding.EncodeToString(pngHeader)
	cards := []flashcard.Card{
		{Front: "Scan?", Back: "See image", Images: []string{img}},
		{Front: "Same scan?", Back: "Again", Images: []string{img}},
	}
	data, err := Build(context.Background(), cards, "Imaging")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	zr, db := openPackage(t, data)

	var manifest map[string]string
	if err := json.Unmarshal(readEntry(t, zr, "media"), &manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	name := MediaName(pngHeader, 0)
	if len(manifest) != 1 || manifest["0"] != name {
		t.Fatalf("expected single deduplicated media entry %q, got %v", name, manifest)
	}
	if got := readEntry(t, zr, "0"); !bytes.Equal(got, pngHeader) {
		t.Errorf("expected media bytes to round-trip")
	}

	var flds string
	if err := db.QueryRow("SELECT flds FROM notes WHERE guid = ?", GUIDFor("Scan?")).Scan(&flds); err != nil {
		t.Fatalf("query note: %v", err)
	}
	if !strings.HasSuffix(flds, `See image<br><img src="`+name+`">`) {
		t.Errorf("expected image reference in back, got %q", flds)
	}
}

func TestBuild_InvalidImage(t *testing.T) {
	cards := []flashcard.Card{{Front: "Q", Back: "A", Images: []string{"not base64!!"}}}
	if _, err := Build(context.Background(), cards, "D"); err == nil {
		t.Error("expected error for invalid base64 image")
	}
}

func TestBuild_Empty(t *testing.T) {
	data, err := Build(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	zr, db := openPackage(t, data)
	if string(readEntry(t, zr, "media")) != "{}" {
		t.Errorf("expected empty media manifest")
	}
	if _, ok := deckNames(t, db)[DefaultDeckName]; !ok {
		t.Errorf("expected default deck name %q", DefaultDeckName)
	}
}

func TestBuild_DuplicateFronts(t *testing.T) {
	cards := []flashcard.Card{
		{Front: "Same?", Back: "one"},
		{Front: "Same?", Back: "two"},
	}
	data, err := Build(context.Background(), cards, "D")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, db := openPackage(t, data)
	var n int
	if err := db.QueryRow("SELECT COUNT(DISTINCT id) FROM notes").Scan(&n); err != nil {
		t.Fatalf("count notes: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 distinct note ids, got %d", n)
	}
}

func TestTextToHTML(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a\n\n b \n", "a<br>b"},
		{"x < y & z", "x &lt; y &amp; z"},
		{"Intro\n<table><tr><td>1</td></tr></table>", "Intro<br><table><tr><td>1</td></tr></table>"},
		{`<img src="a.png">`, `<img src="a.png">`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := TextToHTML(tt.in); got != tt.want {
			t.Errorf("TextToHTML(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestSubdeckName(t *testing.T) {
	if got := SubdeckName("Topic-A::Sub-B"); got != "Topic A::Sub B" {
		t.Errorf("expected %q, got %q", "Topic A::Sub B", got)
	}
	if got := DeckNameFor("Deck", flashcard.Card{}); got != "Deck" {
		t.Errorf("expected root deck, got %q", got)
	}
}

func TestStableID(t *testing.T) {
	text := "What are the chambers of the heart?"
	want, _ := strconv.ParseInt(fmt.Sprintf("%x", sha256.Sum256([]byte(text)))[:8], 16, 64)
	if got := StableID(text); got != want {
		t.Errorf("expected %d, got %d", want, got)
	}
	if StableID("Question one") == StableID("Question two") {
		t.Error("expected different ids for different text")
	}
}

func TestIDAllocator_ProbesOnCollision(t *testing.T) {
	a := newIDAllocator(StableID("x"))
	if got := a.next("x"); got != StableID("x")+1 {
		t.Errorf("expected collision to advance to next id, got %d", got)
	}
}

func TestGUIDFor(t *testing.T) {
	g1, g2 := GUIDFor("front"), GUIDFor("front")
	if g1 != g2 || g1 == "" {
		t.Errorf("expected stable non-empty guid, got %q and %q", g1, g2)
	}
	if GUIDFor("other") == g1 {
		t.Error("expected distinct guids")
	}
	for _, r := range g1 {
		if !strings.ContainsRune(base91Alphabet, r) {
			t.Errorf("unexpected guid character %q", r)
		}
	}
}
