package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("TWILIO_PHONE_NUMBER", "+15550001111")
	t.Setenv("VOICEBRIDGE_PUBLIC_BASE_URL", "https://example.ngrok.app")
	t.Setenv("CARTESIA_API_KEY", "ck")
	t.Setenv("ELEVENLABS_API_KEY", "ek")
	t.Setenv("GEMINI_API_KEY", "gk")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.ConfirmKeyword != "confirm" {
		t.Errorf("ConfirmKeyword = %q, want confirm", cfg.ConfirmKeyword)
	}
	if cfg.MaxRecordingSeconds != 10 {
		t.Errorf("MaxRecordingSeconds = %d, want 10", cfg.MaxRecordingSeconds)
	}
	if cfg.FetchRetries != 3 {
		t.Errorf("FetchRetries = %d, want 3", cfg.FetchRetries)
	}
	if cfg.FetchRetryDelay != 2*time.Second {
		t.Errorf("FetchRetryDelay = %v, want 2s", cfg.FetchRetryDelay)
	}
	if cfg.Voice != "alice" {
		t.Errorf("Voice = %q, want alice", cfg.Voice)
	}
	if cfg.UpdateWebhook {
		t.Error("UpdateWebhook = true, want false by default")
	}
}

func TestLoadFromEnv_MissingRequired(t *testing.T) {
	required := []string{
		"TWILIO_ACCOUNT_SID",
		"TWILIO_AUTH_TOKEN",
		"TWILIO_PHONE_NUMBER",
		"VOICEBRIDGE_PUBLIC_BASE_URL",
		"CARTESIA_API_KEY",
		"ELEVENLABS_API_KEY",
		"GEMINI_API_KEY",
	}
	for _, key := range required {
		t.Run(key, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(key, "")
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatalf("LoadFromEnv() error = nil, want failure for missing %s", key)
			}
			if !strings.Contains(err.Error(), key) {
				t.Errorf("error = %v, want mention of %s", err, key)
			}
		})
	}
}

func TestLoadFromEnv_BaseURLValidation(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VOICEBRIDGE_PUBLIC_BASE_URL", "not-a-url")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv() error = nil, want absolute URL failure")
	}
}

func TestLoadFromEnv_TrimsTrailingSlash(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VOICEBRIDGE_PUBLIC_BASE_URL", "https://example.ngrok.app/")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.PublicBaseURL != "https://example.ngrok.app" {
		t.Errorf("PublicBaseURL = %q, want trailing slash removed", cfg.PublicBaseURL)
	}
	if got := cfg.MediaBaseURL(); got != "https://example.ngrok.app/media/" {
		t.Errorf("MediaBaseURL() = %q", got)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VOICEBRIDGE_ADDR", ":9999")
	t.Setenv("VOICEBRIDGE_CONFIRM_KEYWORD", "approve")
	t.Setenv("VOICEBRIDGE_FETCH_RETRY_DELAY", "50ms")
	t.Setenv("VOICEBRIDGE_UPDATE_WEBHOOK", "true")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Errorf("Addr = %q, want :9999", cfg.Addr)
	}
	if cfg.ConfirmKeyword != "approve" {
		t.Errorf("ConfirmKeyword = %q, want approve", cfg.ConfirmKeyword)
	}
	if cfg.FetchRetryDelay != 50*time.Millisecond {
		t.Errorf("FetchRetryDelay = %v, want 50ms", cfg.FetchRetryDelay)
	}
	if !cfg.UpdateWebhook {
		t.Error("UpdateWebhook = false, want true")
	}
}

func TestLoadFromEnv_RejectsNonPositiveBudgets(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VOICEBRIDGE_MAX_RECORDING_SECONDS", "0")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv() error = nil, want failure for zero recording budget")
	}
}
