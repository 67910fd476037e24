// Package handlers contains the HTTP surface of the gateway: call
// webhooks, outbound dialing, media serving, the event feed, and
// health probes.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/voicebridge/voicebridge/pkg/gateway/callflow"
	"github.com/voicebridge/voicebridge/pkg/gateway/twiml"
)

// Call serves the two conversation webhooks the telephony gateway
// invokes: the incoming-call entry point and the per-turn recording
// callback.
type Call struct {
	Orchestrator *callflow.Orchestrator
	Logger       *slog.Logger
}

// Start handles POST /call/start, the voice webhook for a new call.
func (h *Call) Start(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.write(w, twiml.InvalidRequest("Malformed callback form."))
		return
	}
	callID := r.PostFormValue("CallSid")
	if callID == "" {
		h.write(w, twiml.InvalidRequest("No call SID received."))
		return
	}
	h.write(w, h.Orchestrator.HandleStart(callID))
}

// Turn handles POST /call/turn, invoked once per finished recording.
func (h *Call) Turn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.write(w, twiml.InvalidRequest("Malformed callback form."))
		return
	}
	callID := r.PostFormValue("CallSid")
	if callID == "" {
		h.write(w, twiml.InvalidRequest("No call SID received."))
		return
	}
	recordingURL := r.PostFormValue("RecordingUrl")
	if recordingURL == "" {
		h.write(w, twiml.InvalidRequest("No recording URL received."))
		return
	}

	inst := h.Orchestrator.HandleTurn(r.Context(), callflow.Event{
		CallID:       callID,
		RecordingURL: recordingURL,
	})
	h.write(w, inst)
}

func (h *Call) write(w http.ResponseWriter, inst twiml.Instruction) {
	if err := inst.Write(w); err != nil {
		h.Logger.Error("write callback response", "err", err)
	}
}
