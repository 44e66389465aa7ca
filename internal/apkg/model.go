package apkg

import (
	"encoding/json"
	"strconv"
)

// Note model shared by every generated deck. The id is fixed so re-imports
// update the same note type instead of creating a copy.
const (
	ModelID   int64 = 1607392319
	ModelName       = "Docs to Anki - Basic"

	defaultDeckID int64 = 1
	schemaVersion       = 11
	fieldSeparator      = "\x1f"
)

// CardCSS styles the front/back templates, including answer tables and images.
const CardCSS = `
.card {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
    font-size: 18px;
    text-align: left;
    color: #1a1a1a;
    background-color: #ffffff;
    padding: 20px;
    line-height: 1.5;
}
table {
    border-collapse: collapse;
    margin: 8px 0;
    width: 100%;
}
td, th {
    border: 1px solid #dadce0;
    padding: 6px 10px;
    text-align: left;
    font-size: 16px;
}
th {
    background: #f8f9fa;
    font-weight: 600;
}
img {
    max-width: 100%;
    height: auto;
    margin: 8px 0;
}
`

const (
	frontTemplate = "{{Front}}"
	backTemplate  = `{{FrontSide}}<hr id="answer">{{Back}}`
)

const schemaSQL = `
CREATE TABLE col (
    id     integer primary key,
    crt    integer not null,
    mod    integer not null,
    scm    integer not null,
    ver    integer not null,
    dty    integer not null,
    usn    integer not null,
    ls     integer not null,
    conf   text not null,
    models text not null,
    decks  text not null,
    dconf  text not null,
    tags   text not null
);
CREATE TABLE notes (
    id    integer primary key,
    guid  text not null,
    mid   integer not null,
    mod   integer not null,
    usn   integer not null,
    tags  text not null,
    flds  text not null,
    sfld  integer not null,
    csum  integer not null,
    flags integer not null,
    data  text not null
);
CREATE TABLE cards (
    id     integer primary key,
    nid    integer not null,
    did    integer not null,
    ord    integer not null,
    mod    integer not null,
    usn    integer not null,
    type   integer not null,
    queue  integer not null,
    due    integer not null,
    ivl    integer not null,
    factor integer not null,
    reps   integer not null,
    lapses integer not null,
    left   integer not null,
    odue   integer not null,
    odid   integer not null,
    flags  integer not null,
    data   text not null
);
CREATE TABLE revlog (
    id      integer primary key,
    cid     integer not null,
    usn     integer not null,
    ease    integer not null,
    ivl     integer not null,
    lastIvl integer not null,
    factor  integer not null,
    time    integer not null,
    type    integer not null
);
CREATE TABLE graves (
    usn  integer not null,
    oid  integer not null,
    type integer not null
);
CREATE INDEX ix_notes_usn on notes (usn);
CREATE INDEX ix_cards_usn on cards (usn);
CREATE INDEX ix_revlog_usn on revlog (usn);
CREATE INDEX ix_cards_nid on cards (nid);
CREATE INDEX ix_cards_sched on cards (did, queue, due);
CREATE INDEX ix_revlog_cid on revlog (cid);
CREATE INDEX ix_notes_csum on notes (csum);
`

type modelField struct {
	Name   string   `json:"name"`
	Ord    int      `json:"ord"`
	Font   string   `json:"font"`
	Size   int      `json:"size"`
	Media  []string `json:"media"`
	RTL    bool     `json:"rtl"`
	Sticky bool     `json:"sticky"`
}

type modelTemplate struct {
	Name  string `json:"name"`
	Ord   int    `json:"ord"`
	QFmt  string `json:"qfmt"`
	AFmt  string `json:"afmt"`
	BQFmt string `json:"bqfmt"`
	BAFmt string `json:"bafmt"`
	Did   *int64 `json:"did"`
}

type noteModel struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Type      int             `json:"type"`
	Mod       int64           `json:"mod"`
	Usn       int             `json:"usn"`
	Sortf     int             `json:"sortf"`
	Did       int64           `json:"did"`
	Tmpls     []modelTemplate `json:"tmpls"`
	Flds      []modelField    `json:"flds"`
	CSS       string          `json:"css"`
	LatexPre  string          `json:"latexPre"`
	LatexPost string          `json:"latexPost"`
	Req       []any           `json:"req"`
	Tags      []string        `json:"tags"`
	Vers      []int           `json:"vers"`
}

type deckEntry struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Desc             string `json:"desc"`
	Mod              int64  `json:"mod"`
	Usn              int    `json:"usn"`
	Collapsed        bool   `json:"collapsed"`
	BrowserCollapsed bool   `json:"browserCollapsed"`
	Conf             int64  `json:"conf"`
	Dyn              int    `json:"dyn"`
	ExtendNew        int    `json:"extendNew"`
	ExtendRev        int    `json:"extendRev"`
	NewToday         [2]int `json:"newToday"`
	RevToday         [2]int `json:"revToday"`
	LrnToday         [2]int `json:"lrnToday"`
	TimeToday        [2]int `json:"timeToday"`
}

func newDeckEntry(id int64, name string, mod int64) deckEntry {
	return deckEntry{ID: id, Name: name, Mod: mod, Usn: -1, Conf: 1, ExtendRev: 50}
}

func modelJSON(deckID, mod int64) (string, error) {
	m := noteModel{
		ID:    ModelID,
		Name:  ModelName,
		Mod:   mod,
		Usn:   -1,
		Did:   deckID,
		Tmpls: []modelTemplate{{Name: "Card 1", QFmt: frontTemplate, AFmt: backTemplate}},
		Flds: []modelField{
			{Name: "Front", Ord: 0, Font: "Arial", Size: 20, Media: []string{}},
			{Name: "Back", Ord: 1, Font: "Arial", Size: 20, Media: []string{}},
		},
		CSS:       CardCSS,
		LatexPre:  "\\documentclass[12pt]{article}\n\\special{papersize=3in,5in}\n\\usepackage[utf8]{inputenc}\n\\usepackage{amssymb,amsmath}\n\\pagestyle{empty}\n\\setlength{\\parindent}{0in}\n\\begin{document}\n",
		LatexPost: "\\end{document}",
		Req:       []any{[]any{0, "all", []int{0}}},
		Tags:      []string{},
		Vers:      []int{},
	}
	data, err := json.Marshal(map[string]noteModel{strconv.FormatInt(ModelID, 10): m})
	return string(data), err
}

func decksJSON(decks []deckEntry) (string, error) {
	byID := make(map[string]deckEntry, len(decks))
	for _, d := range decks {
		byID[strconv.FormatInt(d.ID, 10)] = d
	}
	data, err := json.Marshal(byID)
	return string(data), err
}

func colConfJSON(deckID int64) (string, error) {
	data, err := json.Marshal(map[string]any{
		"activeDecks":   []int64{deckID},
		"curDeck":       deckID,
		"newSpread":     0,
		"collapseTime":  1200,
		"timeLim":       0,
		"estTimes":      true,
		"dueCounts":     true,
		"curModel":      strconv.FormatInt(ModelID, 10),
		"nextPos":       1,
		"sortType":      "noteFld",
		"sortBackwards": false,
		"addToCur":      true,
	})
	return string(data), err
}

func dconfJSON() (string, error) {
	data, err := json.Marshal(map[string]any{
		"1": map[string]any{
			"id":       1,
			"name":     "Default",
			"mod":      0,
			"usn":      0,
			"maxTaken": 60,
			"autoplay": true,
			"timer":    0,
			"replayq":  true,
			"dyn":      false,
			"new": map[string]any{
				"bury":          true,
				"delays":        []float64{1, 10},
				"initialFactor": 2500,
				"ints":          []int{1, 4, 7},
				"order":         1,
				"perDay":        20,
				"separate":      true,
			},
			"lapse": map[string]any{
				"delays":      []float64{10},
				"leechAction": 0,
				"leechFails":  8,
				"minInt":      1,
				"mult":        0,
			},
			"rev": map[string]any{
				"bury":     true,
				"ease4":    1.3,
				"fuzz":     0.05,
				"ivlFct":   1,
				"maxIvl":   36500,
				"minSpace": 1,
				"perDay":   100,
			},
		},
	})
	return string(data), err
}
