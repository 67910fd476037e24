package callflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/voicebridge/voicebridge/pkg/core"
	"github.com/voicebridge/voicebridge/pkg/core/llm"
	"github.com/voicebridge/voicebridge/pkg/core/voice/stt"
	"github.com/voicebridge/voicebridge/pkg/core/voice/tts"
	"github.com/voicebridge/voicebridge/pkg/gateway/events"
	"github.com/voicebridge/voicebridge/pkg/gateway/twiml"
)

type stubFetcher struct {
	calls atomic.Int64
	audio []byte
	err   error
}

func (f *stubFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

type stubSTT struct {
	text string
	err  error
}

func (s *stubSTT) Name() string { return "stub-stt" }

func (s *stubSTT) Transcribe(ctx context.Context, audio io.Reader, opts stt.TranscribeOptions) (*stt.Transcript, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &stt.Transcript{Text: s.text}, nil
}

type stubLLM struct {
	reply       string
	err         error
	lastHistory []llm.Exchange
	lastPrompt  string
}

func (s *stubLLM) Name() string { return "stub-llm" }

func (s *stubLLM) Generate(ctx context.Context, prompt string, history []llm.Exchange, opts llm.GenerateOptions) (string, error) {
	s.lastPrompt = prompt
	s.lastHistory = append([]llm.Exchange(nil), history...)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

type stubTTS struct {
	err error
}

func (s *stubTTS) Name() string { return "stub-tts" }

func (s *stubTTS) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOptions) (*tts.Synthesis, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &tts.Synthesis{Audio: []byte("mp3-bytes"), Format: "mp3"}, nil
}

type stubMedia struct {
	saves int
	err   error
}

func (s *stubMedia) Save(callID string, turnIndex int, format string, audio []byte) (string, error) {
	s.saves++
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("http://media.test/%s-%d.%s", callID, turnIndex, format), nil
}

type fixture struct {
	orch    *Orchestrator
	fetcher *stubFetcher
	sttProv *stubSTT
	llmProv *stubLLM
	ttsProv *stubTTS
	media   *stubMedia
	hub     *events.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		fetcher: &stubFetcher{audio: []byte("wav-bytes")},
		sttProv: &stubSTT{text: "I would like two pizzas"},
		llmProv: &stubLLM{reply: "Two pizzas, coming right up."},
		ttsProv: &stubTTS{},
		media:   &stubMedia{},
		hub:     events.NewHub(),
	}
	orch, err := New(Options{
		Fetcher:        f.fetcher,
		STT:            f.sttProv,
		LLM:            f.llmProv,
		TTS:            f.ttsProv,
		Media:          f.media,
		Hub:            f.hub,
		Logger:         slog.New(slog.DiscardHandler),
		ConfirmKeyword: "confirm",
		Builder: twiml.Builder{
			Voice:               "alice",
			RecordAction:        "/call/turn",
			MaxRecordingSeconds: 10,
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.orch = orch
	return f
}

func TestNewRequiresProviders(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for missing fetcher")
	}
	if _, err := New(Options{Fetcher: &stubFetcher{}}); err == nil {
		t.Fatal("expected error for missing providers")
	}
}

func TestHandleStartReturnsGreeting(t *testing.T) {
	f := newFixture(t)

	inst := f.orch.HandleStart("CA100")

	if inst.Kind != twiml.InstructionSayRecord {
		t.Fatalf("Kind = %q, want say_record", inst.Kind)
	}
	if inst.Say != twiml.GreetingText {
		t.Errorf("Say = %q, want greeting", inst.Say)
	}
	if !inst.PlayBeep {
		t.Error("PlayBeep = false, want true")
	}
	if f.orch.Store().Len() != 1 {
		t.Errorf("Len = %d, want 1", f.orch.Store().Len())
	}
}

func TestHandleTurnContinues(t *testing.T) {
	f := newFixture(t)
	f.orch.HandleStart("CA100")

	inst := f.orch.HandleTurn(context.Background(), Event{
		CallID:       "CA100",
		RecordingURL: "http://gateway.test/rec/1",
	})

	if inst.Kind != twiml.InstructionSayRecord {
		t.Fatalf("Kind = %q, want say_record", inst.Kind)
	}
	if inst.Say != twiml.ContinuePreText {
		t.Errorf("Say = %q, want continue preamble", inst.Say)
	}
	if !strings.Contains(inst.PlayURL, "CA100-1") {
		t.Errorf("PlayURL = %q, want synthesized audio URL", inst.PlayURL)
	}
	if f.media.saves != 1 {
		t.Errorf("media saves = %d, want 1", f.media.saves)
	}
	if f.llmProv.lastPrompt != "I would like two pizzas" {
		t.Errorf("prompt = %q", f.llmProv.lastPrompt)
	}
}

func TestHandleTurnCarriesHistory(t *testing.T) {
	f := newFixture(t)
	f.orch.HandleStart("CA100")

	ev := Event{CallID: "CA100", RecordingURL: "http://gateway.test/rec/1"}
	f.orch.HandleTurn(context.Background(), ev)

	f.sttProv.text = "make one of them pepperoni"
	f.orch.HandleTurn(context.Background(), ev)

	if len(f.llmProv.lastHistory) != 1 {
		t.Fatalf("history len = %d, want 1", len(f.llmProv.lastHistory))
	}
	got := f.llmProv.lastHistory[0]
	if got.User != "I would like two pizzas" || got.Assistant != "Two pizzas, coming right up." {
		t.Errorf("history[0] = %+v", got)
	}
}

func TestHandleTurnConfirms(t *testing.T) {
	f := newFixture(t)
	f.orch.HandleStart("CA100")
	f.sttProv.text = "yes I Confirm the order"

	inst := f.orch.HandleTurn(context.Background(), Event{
		CallID:       "CA100",
		RecordingURL: "http://gateway.test/rec/1",
	})

	if inst.Kind != twiml.InstructionSayHangup {
		t.Fatalf("Kind = %q, want say_hangup", inst.Kind)
	}
	if inst.Say != twiml.ConfirmedText {
		t.Errorf("Say = %q, want confirmation farewell", inst.Say)
	}
	// Generation and synthesis must be short-circuited.
	if f.media.saves != 0 {
		t.Errorf("media saves = %d, want 0", f.media.saves)
	}
}

func TestHandleTurnReplayAfterConfirm(t *testing.T) {
	f := newFixture(t)
	f.orch.HandleStart("CA100")
	f.sttProv.text = "confirm"
	ev := Event{CallID: "CA100", RecordingURL: "http://gateway.test/rec/1"}

	f.orch.HandleTurn(context.Background(), ev)
	fetches := f.fetcher.calls.Load()

	inst := f.orch.HandleTurn(context.Background(), ev)

	if inst.Kind != twiml.InstructionSayHangup {
		t.Fatalf("Kind = %q, want say_hangup", inst.Kind)
	}
	if inst.Say != twiml.ConfirmedText {
		t.Errorf("Say = %q, want confirmation farewell", inst.Say)
	}
	if f.fetcher.calls.Load() != fetches {
		t.Error("replay ran the pipeline again")
	}
}

func TestHandleTurnRecordingUnavailable(t *testing.T) {
	f := newFixture(t)
	f.orch.HandleStart("CA100")
	f.fetcher.err = core.NewRecordingUnavailableError("recording unavailable", errors.New("not ready"))

	inst := f.orch.HandleTurn(context.Background(), Event{
		CallID:       "CA100",
		RecordingURL: "http://gateway.test/rec/1",
	})

	if inst.Kind != twiml.InstructionSayHangup {
		t.Fatalf("Kind = %q, want say_hangup", inst.Kind)
	}
	if inst.Say != twiml.ApologyText {
		t.Errorf("Say = %q, want apology", inst.Say)
	}
}

func TestHandleTurnStageFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*fixture)
	}{
		{"stt error", func(f *fixture) { f.sttProv.err = errors.New("stt down") }},
		{"empty transcript", func(f *fixture) { f.sttProv.text = "   " }},
		{"llm error", func(f *fixture) { f.llmProv.err = errors.New("llm down") }},
		{"tts error", func(f *fixture) { f.ttsProv.err = errors.New("tts down") }},
		{"media error", func(f *fixture) { f.media.err = errors.New("disk full") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.orch.HandleStart("CA100")
			tc.mutate(f)

			inst := f.orch.HandleTurn(context.Background(), Event{
				CallID:       "CA100",
				RecordingURL: "http://gateway.test/rec/1",
			})

			if inst.Kind != twiml.InstructionSayHangup {
				t.Fatalf("Kind = %q, want say_hangup", inst.Kind)
			}
			if inst.Say != twiml.ApologyText {
				t.Errorf("Say = %q, want apology", inst.Say)
			}
		})
	}
}

func TestHandleTurnFailureLeavesHistoryUntouched(t *testing.T) {
	f := newFixture(t)
	f.orch.HandleStart("CA100")
	ev := Event{CallID: "CA100", RecordingURL: "http://gateway.test/rec/1"}
	f.orch.HandleTurn(context.Background(), ev)

	f.ttsProv.err = errors.New("tts down")
	f.orch.HandleTurn(context.Background(), ev)

	f.ttsProv.err = nil
	f.orch.HandleTurn(context.Background(), ev)
	f.orch.HandleTurn(context.Background(), ev)

	// The fourth turn sees exchanges from the first and third turns only;
	// the failed turn must not have been recorded.
	if len(f.llmProv.lastHistory) != 2 {
		t.Errorf("history len = %d, want 2", len(f.llmProv.lastHistory))
	}
}

func TestHandleTurnPublishesEvents(t *testing.T) {
	f := newFixture(t)
	ch, cancel := f.hub.Subscribe(8)
	defer cancel()

	f.orch.HandleStart("CA100")
	f.orch.HandleTurn(context.Background(), Event{
		CallID:       "CA100",
		RecordingURL: "http://gateway.test/rec/1",
	})

	first := <-ch
	if first.Kind != events.KindGreeting {
		t.Errorf("first event kind = %q, want greeting", first.Kind)
	}
	second := <-ch
	if second.Kind != events.KindContinued {
		t.Fatalf("second event kind = %q, want continued", second.Kind)
	}
	if second.Transcript != "I would like two pizzas" {
		t.Errorf("Transcript = %q", second.Transcript)
	}
	if second.Reply != "Two pizzas, coming right up." {
		t.Errorf("Reply = %q", second.Reply)
	}
}
