package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
	"github.com/Escorpio024/scribe-ia-aurora/internal/suggest"
)

// readBody reads a request body bounded by the configured message size
func (h *HTTPServer) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.Server.MaxMessageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	return data, nil
}

// decodeRecord parses a record payload; an absent payload is an empty record
func decodeRecord(raw json.RawMessage) (*record.Record, error) {
	if isAbsent(raw) {
		return record.New(), nil
	}
	return record.Parse(raw)
}

func decodeSuggestions(raw json.RawMessage) ([]suggest.Suggestion, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	return suggest.Parse(raw)
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func (h *HTTPServer) section(w http.ResponseWriter, r *http.Request) (record.Section, bool) {
	s, err := record.ParseSection(r.PathValue("key"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return "", false
	}
	return s, true
}

// handleRenderSection implements POST /sections/{key}/render. The body is
// the record JSON.
func (h *HTTPServer) handleRenderSection(w http.ResponseWriter, r *http.Request) {
	s, ok := h.section(w, r)
	if !ok {
		return
	}
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	rec, err := decodeRecord(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	text, err := record.ToText(rec, s)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"section": s,
		"text":    text,
	})
}

type parseSectionRequest struct {
	Record json.RawMessage `json:"record"`
	Text   string          `json:"text"`
}

// handleParseSection implements POST /sections/{key}/parse
func (h *HTTPServer) handleParseSection(w http.ResponseWriter, r *http.Request) {
	s, ok := h.section(w, r)
	if !ok {
		return
	}
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	var req parseSectionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request: %w", err))
		return
	}
	rec, err := decodeRecord(req.Record)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := record.FromText(rec, s, req.Text); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	h.metrics.RecordSectionEdit(string(s))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"section": s,
		"record":  rec,
	})
}

type compactRequest struct {
	Text      string `json:"text"`
	MaxLength int    `json:"max_length"`
}

// handleCompactNarrative implements POST /narrative/compact
func (h *HTTPServer) handleCompactNarrative(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	var req compactRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request: %w", err))
		return
	}
	if req.MaxLength <= 0 {
		req.MaxLength = h.config.Record.NarrativeLimit
	}

	out := record.CompactNarrative(req.Text, req.MaxLength)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"text":       out,
		"compacted":  out != req.Text,
		"length":     utf8.RuneCountInString(out),
		"max_length": req.MaxLength,
	})
}

type mergeRequest struct {
	BuiltIn  json.RawMessage `json:"built_in"`
	External json.RawMessage `json:"external"`
}

// handleMergeSuggestions implements POST /suggestions/merge
func (h *HTTPServer) handleMergeSuggestions(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	var req mergeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request: %w", err))
		return
	}
	builtIn, err := decodeSuggestions(req.BuiltIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("built_in: %w", err))
		return
	}
	external, err := decodeSuggestions(req.External)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("external: %w", err))
		return
	}

	merged := suggest.MergeSets(builtIn, external)
	for i := range merged {
		merged[i].Actions = suggest.InferActions(merged[i])
	}
	h.metrics.RecordSuggestions(suggest.SourceBuiltIn, len(builtIn))
	h.metrics.RecordSuggestions(suggest.SourceExternal, len(external))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"suggestions": merged,
	})
}

type applyRequest struct {
	Record     json.RawMessage    `json:"record"`
	Suggestion suggest.Suggestion `json:"suggestion"`
	Action     string             `json:"action"`
}

// handleApplySuggestion implements POST /suggestions/apply
func (h *HTTPServer) handleApplySuggestion(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	var req applyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request: %w", err))
		return
	}
	rec, err := decodeRecord(req.Record)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	action, ok := suggest.ParseAction(req.Action)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown action %q", req.Action))
		return
	}
	res, err := suggest.Apply(rec, req.Suggestion, action)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, suggest.ErrActionNotApplicable) || errors.Is(err, suggest.ErrEmptyText) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err)
		return
	}
	h.metrics.RecordAction(string(res.Action), string(res.Outcome))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"record": rec,
		"result": res,
	})
}
