// Package media stores synthesized audio so the telephony gateway can
// fetch it back over HTTP.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store writes synthesized audio under a single directory. Names embed the
// call ID, turn index, and a random suffix so concurrent calls and webhook
// replays can never overwrite each other's audio.
type Store struct {
	dir     string
	baseURL string
}

// NewStore creates the backing directory if needed. baseURL is the public
// prefix served by the media handler, e.g. "https://host/media/".
func NewStore(dir, baseURL string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("media dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Store{dir: dir, baseURL: baseURL}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes one synthesized reply and returns its public URL.
func (s *Store) Save(callID string, turnIndex int, format string, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio")
	}
	name := fmt.Sprintf("%s-%d-%s.%s", sanitize(callID), turnIndex, uuid.NewString()[:8], extension(format))
	if err := os.WriteFile(filepath.Join(s.dir, name), audio, 0o644); err != nil {
		return "", fmt.Errorf("write media file: %w", err)
	}
	return s.baseURL + name, nil
}

// Open resolves a public name back to a file path, refusing anything that
// would escape the store directory.
func (s *Store) Open(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid media name %q", name)
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

// sanitize keeps call SIDs filesystem-safe.
func sanitize(callID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, callID)
}

func extension(format string) string {
	switch format {
	case "wav", "mp3", "pcm", "ogg":
		return format
	default:
		return "mp3"
	}
}
