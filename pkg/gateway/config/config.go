package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// Telephony gateway credentials. All three are required; the process
	// refuses to start without them.
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	// PublicBaseURL is the externally reachable root of this service. The
	// gateway fetches synthesized audio and posts callbacks against it, so
	// a local address is almost always wrong in production.
	PublicBaseURL string

	// UpdateWebhook repoints the configured Twilio number's voice URL at
	// PublicBaseURL/call/start during startup.
	UpdateWebhook bool

	// Provider credentials.
	CartesiaAPIKey   string
	ElevenLabsAPIKey string
	GeminiAPIKey     string

	// Conversation behavior.
	ConfirmKeyword      string
	Voice               string
	MaxRecordingSeconds int
	MaxReplyTokens      int
	STTModel            string
	LLMModel            string
	TTSVoice            string
	IdleCallTTL         time.Duration

	// Recording fetch policy.
	FetchRetries        int
	FetchRetryDelay     time.Duration
	FetchAttemptTimeout time.Duration

	// Per-adapter call budgets. The webhook response must land inside the
	// gateway's own timeout, so every stage gets a hard bound.
	STTTimeout time.Duration
	LLMTimeout time.Duration
	TTSTimeout time.Duration

	// Media storage.
	MediaDir string

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("VOICEBRIDGE_ADDR", ":8080"),
		TwilioAccountSID:    strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID")),
		TwilioAuthToken:     strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN")),
		TwilioPhoneNumber:   strings.TrimSpace(os.Getenv("TWILIO_PHONE_NUMBER")),
		PublicBaseURL:       strings.TrimSuffix(strings.TrimSpace(os.Getenv("VOICEBRIDGE_PUBLIC_BASE_URL")), "/"),
		UpdateWebhook:       envBoolOr("VOICEBRIDGE_UPDATE_WEBHOOK", false),
		CartesiaAPIKey:      strings.TrimSpace(os.Getenv("CARTESIA_API_KEY")),
		ElevenLabsAPIKey:    strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
		GeminiAPIKey:        strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		ConfirmKeyword:      envOr("VOICEBRIDGE_CONFIRM_KEYWORD", "confirm"),
		Voice:               envOr("VOICEBRIDGE_VOICE", "alice"),
		MaxRecordingSeconds: envIntOr("VOICEBRIDGE_MAX_RECORDING_SECONDS", 10),
		MaxReplyTokens:      envIntOr("VOICEBRIDGE_MAX_REPLY_TOKENS", 128),
		STTModel:            envOr("VOICEBRIDGE_STT_MODEL", "ink-whisper"),
		LLMModel:            envOr("VOICEBRIDGE_LLM_MODEL", "gemini-2.0-flash"),
		TTSVoice:            envOr("VOICEBRIDGE_TTS_VOICE", "21m00Tcm4TlvDq8ikWAM"),
		IdleCallTTL:         envDurationOr("VOICEBRIDGE_IDLE_CALL_TTL", 10*time.Minute),
		FetchRetries:        envIntOr("VOICEBRIDGE_FETCH_RETRIES", 3),
		FetchRetryDelay:     envDurationOr("VOICEBRIDGE_FETCH_RETRY_DELAY", 2*time.Second),
		FetchAttemptTimeout: envDurationOr("VOICEBRIDGE_FETCH_TIMEOUT", 10*time.Second),
		STTTimeout:          envDurationOr("VOICEBRIDGE_STT_TIMEOUT", 15*time.Second),
		LLMTimeout:          envDurationOr("VOICEBRIDGE_LLM_TIMEOUT", 20*time.Second),
		TTSTimeout:          envDurationOr("VOICEBRIDGE_TTS_TIMEOUT", 20*time.Second),
		MediaDir:            envOr("VOICEBRIDGE_MEDIA_DIR", "uploads"),
		ReadHeaderTimeout:   envDurationOr("VOICEBRIDGE_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("VOICEBRIDGE_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod: envDurationOr("VOICEBRIDGE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	if cfg.TwilioAccountSID == "" {
		return Config{}, fmt.Errorf("TWILIO_ACCOUNT_SID must be set")
	}
	if cfg.TwilioAuthToken == "" {
		return Config{}, fmt.Errorf("TWILIO_AUTH_TOKEN must be set")
	}
	if cfg.TwilioPhoneNumber == "" {
		return Config{}, fmt.Errorf("TWILIO_PHONE_NUMBER must be set")
	}
	if cfg.PublicBaseURL == "" {
		return Config{}, fmt.Errorf("VOICEBRIDGE_PUBLIC_BASE_URL must be set")
	}
	if u, err := url.Parse(cfg.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return Config{}, fmt.Errorf("VOICEBRIDGE_PUBLIC_BASE_URL must be an absolute URL")
	}
	if cfg.CartesiaAPIKey == "" {
		return Config{}, fmt.Errorf("CARTESIA_API_KEY must be set")
	}
	if cfg.ElevenLabsAPIKey == "" {
		return Config{}, fmt.Errorf("ELEVENLABS_API_KEY must be set")
	}
	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.ConfirmKeyword) == "" {
		return Config{}, fmt.Errorf("VOICEBRIDGE_CONFIRM_KEYWORD must not be empty")
	}
	if cfg.MaxRecordingSeconds <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_MAX_RECORDING_SECONDS must be > 0")
	}
	if cfg.MaxReplyTokens <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_MAX_REPLY_TOKENS must be > 0")
	}
	if cfg.IdleCallTTL <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_IDLE_CALL_TTL must be > 0")
	}
	if cfg.FetchRetries < 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_FETCH_RETRIES must be >= 0")
	}
	if cfg.FetchRetryDelay <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_FETCH_RETRY_DELAY must be > 0")
	}
	if cfg.FetchAttemptTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_FETCH_TIMEOUT must be > 0")
	}
	if cfg.STTTimeout <= 0 || cfg.LLMTimeout <= 0 || cfg.TTSTimeout <= 0 {
		return Config{}, fmt.Errorf("adapter timeouts must be > 0")
	}
	if strings.TrimSpace(cfg.MediaDir) == "" {
		return Config{}, fmt.Errorf("VOICEBRIDGE_MEDIA_DIR must not be empty")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

// MediaBaseURL is the public prefix synthesized audio is served under.
func (c Config) MediaBaseURL() string {
	return c.PublicBaseURL + "/media/"
}

// TurnActionURL is the callback the gateway posts finished recordings to.
func (c Config) TurnActionURL() string {
	return "/call/turn"
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
