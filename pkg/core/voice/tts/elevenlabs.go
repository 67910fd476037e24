package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	elevenLabsDefaultBaseURL = "https://api.elevenlabs.io"
	elevenLabsDefaultModel   = "eleven_multilingual_v2"
)

// ElevenLabsProvider implements the TTS Provider interface using the
// ElevenLabs batch synthesis API.
type ElevenLabsProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewElevenLabs creates a new ElevenLabs TTS provider.
func NewElevenLabs(apiKey string) *ElevenLabsProvider {
	return &ElevenLabsProvider{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    elevenLabsDefaultBaseURL,
		httpClient: &http.Client{},
	}
}

// NewElevenLabsWithClient creates a new ElevenLabs TTS provider with a custom HTTP client.
func NewElevenLabsWithClient(apiKey string, client *http.Client) *ElevenLabsProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &ElevenLabsProvider{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    elevenLabsDefaultBaseURL,
		httpClient: client,
	}
}

// WithBaseURL overrides the API base URL, mainly for tests.
func (e *ElevenLabsProvider) WithBaseURL(base string) *ElevenLabsProvider {
	if e == nil {
		return e
	}
	base = strings.TrimSpace(base)
	if base != "" {
		e.baseURL = strings.TrimSuffix(base, "/")
	}
	return e
}

// Name returns the provider identifier.
func (e *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

type elevenLabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id,omitempty"`
}

// Synthesize converts text to audio bytes.
func (e *ElevenLabsProvider) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	if e == nil || e.apiKey == "" {
		return nil, fmt.Errorf("elevenlabs api key is required")
	}
	voiceID := strings.TrimSpace(opts.Voice)
	if voiceID == "" {
		return nil, fmt.Errorf("voice id is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text is required")
	}

	body, err := json.Marshal(elevenLabsRequest{
		Text:    text,
		ModelID: elevenLabsDefaultModel,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	reqURL := e.baseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID)
	if of := outputFormat(opts); of != "" {
		reqURL += "?output_format=" + url.QueryEscape(of)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("elevenlabs error %d: %s", resp.StatusCode, string(msg))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("elevenlabs returned empty audio")
	}

	return &Synthesis{
		Audio:  audio,
		Format: getFormat(opts.Format),
	}, nil
}

// outputFormat maps a generic format request onto an ElevenLabs
// output_format parameter.
func outputFormat(opts SynthesizeOptions) string {
	switch getFormat(opts.Format) {
	case "mp3":
		return "mp3_44100_128"
	case "pcm":
		if opts.SampleRate > 0 {
			return fmt.Sprintf("pcm_%d", opts.SampleRate)
		}
		return "pcm_16000"
	default:
		return ""
	}
}

func getFormat(format string) string {
	switch format {
	case "wav", "mp3", "pcm":
		return format
	default:
		return "mp3"
	}
}
