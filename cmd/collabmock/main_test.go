package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Escorpio024/scribe-ia-aurora/internal/audio"
	"github.com/Escorpio024/scribe-ia-aurora/internal/collab"
	"github.com/Escorpio024/scribe-ia-aurora/internal/consult"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMockDrivesConsultation(t *testing.T) {
	srv := httptest.NewServer(newMux(testLogger(), 0))
	defer srv.Close()

	client, err := collab.NewClient(collab.Config{BaseURL: srv.URL}, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	ws := consult.New(consult.Options{
		EncounterID:  "enc_20240102_030405",
		Collaborator: client,
		UsePubMed:    true,
		PubMedMax:    2,
		Logger:       testLogger(),
	})

	wav, err := audio.NewEncodedAudio(make([]int16, 16000), 16000)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	res, err := ws.Transcribe(ctx, wav)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if len(res.Transcript) != 2 || res.StoredWAV != "mock/enc_20240102_030405.wav" {
		t.Errorf("Unexpected upload result %+v", res)
	}
	if end := res.Transcript[1].End; end == nil || *end != 1 {
		t.Errorf("Expected transcript to end at 1s, got %v", end)
	}

	if err := ws.Generate(ctx); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	snap := ws.Snapshot()
	if snap.Record.ChiefComplaint != "Tengo dolor de cabeza desde hace tres días. Empeora en la tarde." {
		t.Errorf("Unexpected chief complaint %q", snap.Record.ChiefComplaint)
	}
	if len(snap.Record.Diagnoses) != 1 || snap.Record.Diagnoses[0] != "Cefalea tensional" {
		t.Errorf("Unexpected diagnoses %v", snap.Record.Diagnoses)
	}
	if len(snap.Suggestions) != 1 {
		t.Fatalf("Expected 1 built-in suggestion, got %d", len(snap.Suggestions))
	}

	n, err := ws.FetchSuggestions(ctx)
	if err != nil {
		t.Fatalf("FetchSuggestions failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 new suggestion, got %d", n)
	}
	for _, s := range ws.Snapshot().Suggestions {
		if s.Kind == "order" && len(s.Refs) != 2 {
			t.Errorf("Expected refs capped at 2, got %v", s.Refs)
		}
	}
}

func TestMockRejectsInvalidAudio(t *testing.T) {
	srv := httptest.NewServer(newMux(testLogger(), 0))
	defer srv.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("wav", "broken.wav")
	_, _ = fw.Write([]byte("not a wav file"))
	_ = mw.Close()

	resp, err := http.Post(srv.URL+"/ingest/upload?encounter_id=enc_web_1", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/nlp/generate")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET, got %d", resp.StatusCode)
	}
}
