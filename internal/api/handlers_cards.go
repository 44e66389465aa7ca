package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgallion1/notes2anki/internal/ankiconnect"
	"github.com/dgallion1/notes2anki/internal/apkg"
	"github.com/dgallion1/notes2anki/internal/flashcard"
	"github.com/dgallion1/notes2anki/internal/parser"
	"github.com/dgallion1/notes2anki/internal/pipeline"
	"github.com/dgallion1/notes2anki/internal/segment"
	"github.com/dgallion1/notes2anki/internal/stats"
)

type extractRequest struct {
	Paragraphs []flashcard.Paragraph `json:"paragraphs"`
}

type cardsResponse struct {
	Cards         []flashcard.Card `json:"cards"`
	SkippedImages int              `json:"skipped_images,omitempty"`
}

type deckRequest struct {
	Cards    []flashcard.Card `json:"cards"`
	DeckName string           `json:"deck_name"`
}

// handleExtract segments pre-parsed paragraphs into cards for preview.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, cardsResponse{Cards: s.segment(req.Paragraphs)})
}

// handlePDFUpload extracts cards from an uploaded PDF.
func (s *Server) handlePDFUpload(w http.ResponseWriter, r *http.Request) {
	up, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	isPDF := strings.EqualFold(filepath.Ext(up.filename), ".pdf")
	if ct, _, err := mime.ParseMediaType(up.contentType); err == nil && ct == "application/pdf" {
		isPDF = true
	}
	if !isPDF {
		jsonError(w, "file must be a PDF", http.StatusBadRequest)
		return
	}

	p := &parser.PDFParser{Palette: s.palette}
	start := time.Now()
	paragraphs, err := p.Parse(bytes.NewReader(up.data), up.filename)
	if err != nil {
		s.log.Warn("pdf parse failed", "filename", up.filename, "error", err)
		jsonError(w, "could not read PDF: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.stats.Since(stats.StageParse, start)
	if p.SkippedImages > 0 {
		s.log.Debug("skipped pdf images", "filename", up.filename, "count", p.SkippedImages)
	}
	writeJSON(w, http.StatusOK, cardsResponse{Cards: s.segment(paragraphs), SkippedImages: p.SkippedImages})
}

// handleDocumentUpload extracts cards from any supported document type.
func (s *Server) handleDocumentUpload(w http.ResponseWriter, r *http.Request) {
	up, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	if !parser.IsSupportedExtension(up.filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(up.filename)), http.StatusBadRequest)
		return
	}

	start := time.Now()
	paragraphs, skipped, err := pipeline.ParseFile(up.filename, up.data, s.palette)
	if err != nil {
		s.log.Warn("document parse failed", "filename", up.filename, "error", err)
		jsonError(w, "could not read document: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.stats.Since(stats.StageParse, start)
	writeJSON(w, http.StatusOK, cardsResponse{Cards: s.segment(paragraphs), SkippedImages: skipped})
}

// handleGenerate packages approved cards into an .apkg download.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req deckRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := validateImages(req.Cards); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	deckName := s.deckName(req.DeckName)

	start := time.Now()
	data, err := apkg.Build(r.Context(), req.Cards, deckName)
	if err != nil {
		s.log.Error("package failed", "deck", deckName, "error", err)
		jsonError(w, "could not build deck: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.stats.Since(stats.StagePackage, start)
	writeDeck(w, deckName, data)
}

// handlePush sends cards to AnkiConnect.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	if s.pusher == nil {
		jsonError(w, "ankiconnect push is disabled", http.StatusServiceUnavailable)
		return
	}
	var req deckRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := validateImages(req.Cards); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	deckName := s.deckName(req.DeckName)

	start := time.Now()
	result, err := s.pusher.Push(r.Context(), req.Cards, deckName)
	if err != nil {
		s.log.Error("push failed", "deck", deckName, "error", err, "retryable", ankiconnect.IsRetryable(err))
		jsonError(w, "push failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	s.stats.Since(stats.StagePush, start)
	writeJSON(w, http.StatusOK, result)
}

// validateImages rejects cards whose images are not valid base64.
func validateImages(cards []flashcard.Card) error {
	for ci, c := range cards {
		for i, img := range c.Images {
			if _, err := base64.StdEncoding.DecodeString(strings.TrimSpace(img)); err != nil {
				return fmt.Errorf("card %d image %d: invalid base64", ci, i)
			}
		}
	}
	return nil
}

func (s *Server) segment(paragraphs []flashcard.Paragraph) []flashcard.Card {
	start := time.Now()
	cards := segment.Segment(paragraphs, segment.NewClassifier(s.palette))
	s.stats.Since(stats.StageSegment, start)
	return cards
}

func (s *Server) deckName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return s.cfg.DefaultDeckName
	}
	return name
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, fmt.Sprintf("request exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return false
		}
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

type upload struct {
	filename    string
	contentType string
	data        []byte
}

// readUpload reads the multipart "file" field, enforcing the size cap.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (upload, bool) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return upload{}, false
		}
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return upload{}, false
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return upload{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return upload{}, false
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return upload{}, false
	}
	return upload{
		filename:    sanitizeFilename(header.Filename),
		contentType: header.Header.Get("Content-Type"),
		data:        data,
	}, true
}

func writeDeck(w http.ResponseWriter, deckName string, data []byte) {
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": deckName + ".apkg"})
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", disposition)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
