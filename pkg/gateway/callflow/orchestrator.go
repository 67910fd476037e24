// Package callflow owns conversation state across stateless webhook
// callbacks and sequences the transcription, generation, and synthesis
// pipeline for each call turn.
package callflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voicebridge/voicebridge/pkg/core"
	"github.com/voicebridge/voicebridge/pkg/core/llm"
	"github.com/voicebridge/voicebridge/pkg/core/voice/stt"
	"github.com/voicebridge/voicebridge/pkg/core/voice/tts"
	"github.com/voicebridge/voicebridge/pkg/gateway/events"
	"github.com/voicebridge/voicebridge/pkg/gateway/metrics"
	"github.com/voicebridge/voicebridge/pkg/gateway/twiml"
)

const systemPrompt = "You are a courteous phone ordering assistant. " +
	"Answer the caller briefly in plain spoken language, at most three sentences."

// Event identifies one callback invocation from the telephony gateway.
type Event struct {
	CallID       string
	RecordingURL string // empty on the initial turn
}

// RecordingFetcher downloads a finished recording, absorbing the
// gateway's upload latency.
type RecordingFetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// MediaSaver stores synthesized audio and hands back a URL the gateway
// can fetch on its own.
type MediaSaver interface {
	Save(callID string, turnIndex int, format string, audio []byte) (string, error)
}

// Options configures an Orchestrator. Fetcher, STT, LLM, TTS, and Media
// are required; Hub, Metrics, and Logger are optional.
type Options struct {
	Fetcher RecordingFetcher
	STT     stt.Provider
	LLM     llm.Provider
	TTS     tts.Provider
	Media   MediaSaver

	Builder        twiml.Builder
	ConfirmKeyword string

	STTModel       string
	LLMModel       string
	TTSVoice       string
	MaxReplyTokens int32

	STTTimeout time.Duration
	LLMTimeout time.Duration
	TTSTimeout time.Duration

	Hub     *events.Hub
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Orchestrator drives one pipeline pass per callback and owns the only
// copy of per-call memory.
type Orchestrator struct {
	opts  Options
	store *StateStore
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("recording fetcher is required")
	}
	if opts.STT == nil || opts.LLM == nil || opts.TTS == nil {
		return nil, fmt.Errorf("stt, llm, and tts providers are required")
	}
	if opts.Media == nil {
		return nil, fmt.Errorf("media saver is required")
	}
	if opts.ConfirmKeyword == "" {
		opts.ConfirmKeyword = "confirm"
	}
	if opts.STTTimeout <= 0 {
		opts.STTTimeout = 15 * time.Second
	}
	if opts.LLMTimeout <= 0 {
		opts.LLMTimeout = 20 * time.Second
	}
	if opts.TTSTimeout <= 0 {
		opts.TTSTimeout = 20 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		opts:  opts,
		store: NewStateStore(),
	}, nil
}

// Store exposes the state store for sweeping and introspection.
func (o *Orchestrator) Store() *StateStore {
	return o.store
}

// HandleStart begins a conversation: it creates state for the call and
// returns the greeting prompt.
func (o *Orchestrator) HandleStart(callID string) twiml.Instruction {
	_, release := o.store.Acquire(callID)
	release()
	o.opts.Metrics.SetActiveCalls(o.store.Len())

	o.opts.Hub.Publish(events.TurnEvent{CallID: callID, Kind: events.KindGreeting})
	o.opts.Logger.Info("call started", "call_id", callID)
	return o.opts.Builder.Greeting()
}

// HandleTurn processes one recorded utterance. It always returns a
// well-formed instruction: adapter failures degrade to a spoken apology
// and hangup, never to a dropped callback.
func (o *Orchestrator) HandleTurn(ctx context.Context, ev Event) twiml.Instruction {
	conv, release := o.store.Acquire(ev.CallID)
	defer release()

	if conv.Terminated {
		// A replayed webhook after confirmation; repeat the farewell.
		return o.opts.Builder.FromOutcome(twiml.ConfirmedOutcome(""))
	}

	outcome := o.runPipeline(ctx, ev, conv)

	switch outcome.Kind {
	case twiml.OutcomeConfirmed:
		// Keep the terminated entry so a replayed callback repeats the
		// farewell; the idle sweep reclaims it later.
		conv.Terminated = true
		o.opts.Metrics.CountTurn("confirmed")
		o.opts.Hub.Publish(events.TurnEvent{
			CallID: ev.CallID,
			Turn:   conv.TurnIndex,
			Kind:   events.KindConfirmed,
		})
	case twiml.OutcomeContinue:
		o.opts.Metrics.CountTurn("continue")
		o.opts.Hub.Publish(events.TurnEvent{
			CallID:     ev.CallID,
			Turn:       conv.TurnIndex,
			Kind:       events.KindContinued,
			Transcript: lastUser(conv),
			Reply:      outcome.SpokenText,
			AudioURL:   outcome.AudioURL,
		})
	default:
		o.opts.Metrics.CountTurn("failed")
		o.opts.Hub.Publish(events.TurnEvent{
			CallID: ev.CallID,
			Turn:   conv.TurnIndex,
			Kind:   events.KindFailed,
			Reason: outcome.Reason,
		})
		o.opts.Logger.Error("turn failed", "call_id", ev.CallID, "reason", outcome.Reason)
	}
	o.opts.Metrics.SetActiveCalls(o.store.Len())

	return o.opts.Builder.FromOutcome(outcome)
}

// runPipeline performs fetch, transcribe, termination check, generate, and
// synthesize for one turn, mutating conv only on success paths.
func (o *Orchestrator) runPipeline(ctx context.Context, ev Event, conv *Conversation) twiml.TurnOutcome {
	audio, err := o.fetchRecording(ctx, ev.RecordingURL)
	if err != nil {
		if isUnavailable(err) {
			return twiml.FailedOutcome("recording unavailable")
		}
		o.opts.Logger.Error("recording fetch", "call_id", ev.CallID, "err", err)
		return twiml.FailedOutcome("recording fetch failed")
	}

	transcript, err := o.transcribe(ctx, audio)
	if err != nil || strings.TrimSpace(transcript) == "" {
		if err != nil {
			o.opts.Logger.Error("transcription", "call_id", ev.CallID, "err", err)
		}
		return twiml.FailedOutcome("transcription error")
	}
	o.opts.Logger.Info("transcript", "call_id", ev.CallID, "text", transcript)

	// Short-circuit before generation: a confirmed turn's outcome is
	// already decided, so no generation or synthesis cost is spent.
	if strings.Contains(strings.ToLower(transcript), strings.ToLower(o.opts.ConfirmKeyword)) {
		return twiml.ConfirmedOutcome(twiml.ConfirmedText)
	}

	reply, err := o.generate(ctx, transcript, conv.History)
	if err != nil {
		o.opts.Logger.Error("generation", "call_id", ev.CallID, "err", err)
		return twiml.FailedOutcome("generation error")
	}

	audioURL, err := o.synthesize(ctx, ev.CallID, conv.TurnIndex+1, reply)
	if err != nil {
		o.opts.Logger.Error("synthesis", "call_id", ev.CallID, "err", err)
		return twiml.FailedOutcome("synthesis error")
	}

	conv.History = append(conv.History, llm.Exchange{User: transcript, Assistant: reply})
	conv.TurnIndex++

	return twiml.ContinueOutcome(reply, audioURL)
}

func (o *Orchestrator) fetchRecording(ctx context.Context, uri string) ([]byte, error) {
	start := time.Now()
	defer func() { o.opts.Metrics.ObserveStage("fetch", time.Since(start)) }()
	return o.opts.Fetcher.Fetch(ctx, uri)
}

func (o *Orchestrator) transcribe(ctx context.Context, audio []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.STTTimeout)
	defer cancel()

	start := time.Now()
	defer func() { o.opts.Metrics.ObserveStage("stt", time.Since(start)) }()

	transcript, err := o.opts.STT.Transcribe(ctx, bytes.NewReader(audio), stt.TranscribeOptions{
		Model:  o.opts.STTModel,
		Format: "wav",
	})
	if err != nil {
		return "", core.NewTranscriptionError("transcribe audio", err)
	}
	return transcript.Text, nil
}

func (o *Orchestrator) generate(ctx context.Context, transcript string, history []llm.Exchange) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.LLMTimeout)
	defer cancel()

	start := time.Now()
	defer func() { o.opts.Metrics.ObserveStage("llm", time.Since(start)) }()

	reply, err := o.opts.LLM.Generate(ctx, transcript, history, llm.GenerateOptions{
		Model:           o.opts.LLMModel,
		MaxOutputTokens: o.opts.MaxReplyTokens,
		SystemPrompt:    systemPrompt,
	})
	if err != nil {
		return "", core.NewGenerationError("generate reply", err)
	}
	return reply, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, callID string, turnIndex int, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.TTSTimeout)
	defer cancel()

	start := time.Now()
	defer func() { o.opts.Metrics.ObserveStage("tts", time.Since(start)) }()

	syn, err := o.opts.TTS.Synthesize(ctx, text, tts.SynthesizeOptions{
		Voice:  o.opts.TTSVoice,
		Format: "mp3",
	})
	if err != nil {
		return "", core.NewSynthesisError("synthesize reply", err)
	}

	url, err := o.opts.Media.Save(callID, turnIndex, syn.Format, syn.Audio)
	if err != nil {
		return "", core.NewSynthesisError("store synthesized audio", err)
	}
	return url, nil
}

func isUnavailable(err error) bool {
	var typed *core.Error
	return errors.As(err, &typed) && typed.Type == core.ErrRecordingUnavailable
}

func lastUser(conv *Conversation) string {
	if len(conv.History) == 0 {
		return ""
	}
	return conv.History[len(conv.History)-1].User
}
