// Command voicebridge runs the webhook-driven voice conversation
// service: it answers telephony callbacks, runs each recorded turn
// through transcription, reply generation, and synthesis, and answers
// with call-control XML.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voicebridge/voicebridge/pkg/core/llm"
	"github.com/voicebridge/voicebridge/pkg/core/voice/stt"
	"github.com/voicebridge/voicebridge/pkg/core/voice/tts"
	"github.com/voicebridge/voicebridge/pkg/gateway/callflow"
	"github.com/voicebridge/voicebridge/pkg/gateway/config"
	"github.com/voicebridge/voicebridge/pkg/gateway/events"
	"github.com/voicebridge/voicebridge/pkg/gateway/fetcher"
	"github.com/voicebridge/voicebridge/pkg/gateway/media"
	"github.com/voicebridge/voicebridge/pkg/gateway/metrics"
	gatewayserver "github.com/voicebridge/voicebridge/pkg/gateway/server"
	"github.com/voicebridge/voicebridge/pkg/gateway/twilio"
	"github.com/voicebridge/voicebridge/pkg/gateway/twiml"
)

type serviceDeps struct {
	loadConfig   func() (config.Config, error)
	buildGateway func(context.Context, config.Config, *slog.Logger) (*gatewayserver.Server, *callflow.Orchestrator, webhookUpdater, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

type webhookUpdater interface {
	UpdateVoiceWebhook(ctx context.Context, webhookURL string) error
}

func defaultServiceDeps() serviceDeps {
	return serviceDeps{
		loadConfig:   config.LoadFromEnv,
		buildGateway: buildGateway,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// buildGateway wires providers, state, and routes into a ready server.
func buildGateway(ctx context.Context, cfg config.Config, logger *slog.Logger) (*gatewayserver.Server, *callflow.Orchestrator, webhookUpdater, error) {
	httpClient := gatewayserver.NewHTTPClient()

	geminiProvider, err := llm.NewGemini(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create llm provider: %w", err)
	}

	store, err := media.NewStore(cfg.MediaDir, cfg.MediaBaseURL())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create media store: %w", err)
	}

	twilioClient, err := twilio.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken,
		cfg.TwilioPhoneNumber, twilio.WithHTTPClient(httpClient))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create twilio client: %w", err)
	}

	hub := events.NewHub()
	m := metrics.New("voicebridge")

	orch, err := callflow.New(callflow.Options{
		Fetcher: fetcher.New(fetcher.Options{
			Retries:        uint64(cfg.FetchRetries),
			Delay:          cfg.FetchRetryDelay,
			AttemptTimeout: cfg.FetchAttemptTimeout,
			Username:       cfg.TwilioAccountSID,
			Password:       cfg.TwilioAuthToken,
			HTTPClient:     httpClient,
		}),
		STT:            stt.NewCartesiaWithClient(cfg.CartesiaAPIKey, httpClient),
		LLM:            geminiProvider,
		TTS:            tts.NewElevenLabsWithClient(cfg.ElevenLabsAPIKey, httpClient),
		Media:          store,
		ConfirmKeyword: cfg.ConfirmKeyword,
		STTModel:       cfg.STTModel,
		LLMModel:       cfg.LLMModel,
		TTSVoice:       cfg.TTSVoice,
		MaxReplyTokens: int32(cfg.MaxReplyTokens),
		STTTimeout:     cfg.STTTimeout,
		LLMTimeout:     cfg.LLMTimeout,
		TTSTimeout:     cfg.TTSTimeout,
		Hub:            hub,
		Metrics:        m,
		Logger:         logger,
		Builder: twiml.Builder{
			Voice:               cfg.Voice,
			RecordAction:        cfg.TurnActionURL(),
			MaxRecordingSeconds: cfg.MaxRecordingSeconds,
		},
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create orchestrator: %w", err)
	}

	gw := gatewayserver.New(cfg, gatewayserver.Deps{
		Logger:       logger,
		Orchestrator: orch,
		Dialer:       twilioClient,
		Media:        store,
		Hub:          hub,
		Metrics:      m,
	})
	return gw, orch, twilioClient, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

// sweepIdleCalls drops conversation state for calls with no activity
// inside the TTL. It returns when ctx is cancelled.
func sweepIdleCalls(ctx context.Context, orch *callflow.Orchestrator, ttl time.Duration, logger *slog.Logger) {
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := orch.Store().SweepIdle(ttl); n > 0 {
				logger.Info("swept idle calls", "count", n)
			}
		}
	}
}

func runService(ctx context.Context, logger *slog.Logger, deps serviceDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.buildGateway == nil {
		return errors.New("missing buildGateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gw, orch, twilioClient, err := deps.buildGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if cfg.UpdateWebhook {
		webhookURL := cfg.PublicBaseURL + "/call/start"
		updateCtx, updateCancel := context.WithTimeout(ctx, 30*time.Second)
		err := twilioClient.UpdateVoiceWebhook(updateCtx, webhookURL)
		updateCancel()
		if err != nil {
			return fmt.Errorf("update voice webhook: %w", err)
		}
		logger.Info("voice webhook updated", "url", webhookURL)
	}

	go sweepIdleCalls(ctx, orch, cfg.IdleCallTTL, logger)

	httpSrv := buildHTTPServer(cfg, gw.Handler())
	logger.Info("starting voicebridge", "addr", cfg.Addr, "public_base_url", cfg.PublicBaseURL)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.SetDraining()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("voicebridge stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps serviceDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "voicebridge: load .env: %v\n", err)
		return 1
	}

	if err := runService(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "voicebridge: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultServiceDeps()))
}
