package apkg

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
)

// StableID derives a deterministic id from text: the first 8 hex digits of
// its SHA-256.
func StableID(text string) int64 {
	h := sha256.Sum256([]byte(text))
	return int64(binary.BigEndian.Uint32(h[:4]))
}

// idAllocator hands out stable ids, moving to the next free value when two
// inputs hash to the same id.
type idAllocator struct {
	used map[int64]bool
}

func newIDAllocator(reserved ...int64) *idAllocator {
	a := &idAllocator{used: make(map[int64]bool)}
	for _, id := range reserved {
		a.used[id] = true
	}
	return a
}

func (a *idAllocator) next(text string) int64 {
	id := StableID(text)
	for a.used[id] {
		id++
	}
	a.used[id] = true
	return id
}

const base91Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!#$%&()*+,-./:;<=>?@[]^_`{|}~"

// GUIDFor returns the note GUID for a card front, so re-importing a deck
// updates existing notes instead of duplicating them.
func GUIDFor(front string) string {
	h := sha256.Sum256([]byte(front))
	n := binary.BigEndian.Uint64(h[:8])
	if n == 0 {
		return string(base91Alphabet[0])
	}
	var out []byte
	for n > 0 {
		out = append(out, base91Alphabet[n%91])
		n /= 91
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

// fieldChecksum is the duplicate-detection checksum Anki stores per note.
func fieldChecksum(sortField string) int64 {
	h := sha1.Sum([]byte(stripHTML(sortField)))
	return int64(binary.BigEndian.Uint32(h[:4]))
}
