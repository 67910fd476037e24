package handlers

import (
	"net/http"

	"github.com/voicebridge/voicebridge/pkg/gateway/media"
)

// Media serves GET /media/{name}: synthesized audio files the telephony
// gateway fetches to play back to the caller.
type Media struct {
	Store *media.Store
}

func (h *Media) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	path, err := h.Store.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}
