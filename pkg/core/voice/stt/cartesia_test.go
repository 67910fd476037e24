package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewCartesia_ConstructorsAndName(t *testing.T) {
	client := &http.Client{}
	p := NewCartesiaWithClient("api-key", client)
	if p.httpClient != client {
		t.Fatal("expected custom http client to be set")
	}
	if p.Name() != "cartesia" {
		t.Fatalf("name = %q, want cartesia", p.Name())
	}

	defaultProvider := NewCartesia("api-key")
	if defaultProvider.httpClient == nil {
		t.Fatal("default provider should initialize http client")
	}
}

func TestTranscribe_SendsMultipartAndParsesResponse(t *testing.T) {
	lang := "en"
	duration := 1.9
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stt" {
			t.Errorf("path = %q, want /stt", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer api-key" {
			t.Errorf("Authorization = %q, want Bearer api-key", got)
		}
		if got := r.Header.Get("Cartesia-Version"); got == "" {
			t.Error("Cartesia-Version header missing")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "ink-whisper" {
			t.Errorf("model = %q, want ink-whisper", got)
		}
		_ = json.NewEncoder(w).Encode(cartesiaTranscriptionResponse{
			Text:     "I need two units of X",
			Language: &lang,
			Duration: &duration,
		})
	}))
	defer srv.Close()

	p := NewCartesia("api-key").WithBaseURL(srv.URL)
	got, err := p.Transcribe(context.Background(), bytes.NewReader([]byte("RIFFdata")), TranscribeOptions{Format: "wav"})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got.Text != "I need two units of X" {
		t.Errorf("Text = %q, want %q", got.Text, "I need two units of X")
	}
	if got.Language != "en" {
		t.Errorf("Language = %q, want en", got.Language)
	}
	if got.Duration != 1.9 {
		t.Errorf("Duration = %v, want 1.9", got.Duration)
	}
}

func TestTranscribe_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad audio", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	p := NewCartesia("api-key").WithBaseURL(srv.URL)
	_, err := p.Transcribe(context.Background(), strings.NewReader("x"), TranscribeOptions{})
	if err == nil {
		t.Fatal("Transcribe() error = nil, want non-nil")
	}
	if !strings.Contains(err.Error(), "422") {
		t.Errorf("error = %v, want status code mentioned", err)
	}
}

func TestGetExtensionAndEncoding(t *testing.T) {
	tests := []struct {
		format        string
		wantExtension string
		wantEncoding  string
	}{
		{format: "wav", wantExtension: "wav", wantEncoding: ""},
		{format: "mp3", wantExtension: "mp3", wantEncoding: ""},
		{format: "pcm_s16le", wantExtension: "wav", wantEncoding: "pcm_s16le"},
		{format: "unknown", wantExtension: "wav", wantEncoding: ""},
	}

	for _, tc := range tests {
		if got := getExtension(tc.format); got != tc.wantExtension {
			t.Fatalf("getExtension(%q) = %q, want %q", tc.format, got, tc.wantExtension)
		}
		if got := getEncoding(tc.format); got != tc.wantEncoding {
			t.Fatalf("getEncoding(%q) = %q, want %q", tc.format, got, tc.wantEncoding)
		}
	}
}
