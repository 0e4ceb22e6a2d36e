// Command workerhost runs a single process hosting many concurrent
// interpreted-room jobs, driven by LiveKit room webhooks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/livekit/protocol/auth"
	lksdk "github.com/livekit/server-sdk-go"
	"github.com/spf13/cobra"

	"github.com/lookatitude/vox-interpret/buffer"
	"github.com/lookatitude/vox-interpret/config"
	"github.com/lookatitude/vox-interpret/core"
	"github.com/lookatitude/vox-interpret/internal/httputil"
	"github.com/lookatitude/vox-interpret/lang"
	"github.com/lookatitude/vox-interpret/o11y"
	"github.com/lookatitude/vox-interpret/o11y/providers/langfuse"
	"github.com/lookatitude/vox-interpret/pipeline"
	"github.com/lookatitude/vox-interpret/provider"
	"github.com/lookatitude/vox-interpret/provider/providers/anthropic"
	"github.com/lookatitude/vox-interpret/provider/providers/ollama"
	"github.com/lookatitude/vox-interpret/provider/providers/openai"
	"github.com/lookatitude/vox-interpret/resilience"
	"github.com/lookatitude/vox-interpret/room"
	"github.com/lookatitude/vox-interpret/router"
	"github.com/lookatitude/vox-interpret/transport"
	"github.com/lookatitude/vox-interpret/workerhost"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "workerhost",
		Short: "Runs the vox-interpret worker host: one process, many interpreted rooms",
		RunE:  run,
	}
	root.Flags().StringVar(&configPath, "config", "", "additional config search path")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(workerhost.ExitConfigError)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	logger := o11y.NewLogger(o11y.WithJSON())

	var paths []string
	if configPath != "" {
		paths = append(paths, configPath)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		logger.Error(cmd.Context(), "workerhost: config load failed", "error", err)
		os.Exit(workerhost.ExitConfigError)
	}

	lkClient := lksdk.NewRoomServiceClient(cfg.Transport.URL, cfg.Transport.APIKey, cfg.Transport.APISecret)

	translators, err := buildTranslators(cfg)
	if err != nil {
		logger.Error(cmd.Context(), "workerhost: provider setup failed", "error", err)
		os.Exit(workerhost.ExitProviderOutage)
	}

	if cfg.Observability.Enabled() {
		exporter, err := langfuse.New(
			langfuse.WithBaseURL(cfg.Observability.LangfuseBaseURL),
			langfuse.WithPublicKey(cfg.Observability.LangfusePublicKey),
			langfuse.WithSecretKey(cfg.Observability.LangfuseSecretKey),
		)
		if err != nil {
			logger.Error(cmd.Context(), "workerhost: langfuse exporter setup failed", "error", err)
		} else {
			translators.primary = provider.NewObservedTranslator(translators.primary, exporter, cfg.Providers.OpenAI.Model)
		}
	}

	host := workerhost.New(coordinatorFactory(cfg, logger, lkClient, translators), logger)

	webhookHandler := workerhost.NewWebhookHandler(host, cfg.Transport.APIKey, cfg.Transport.APISecret, "interpreted-room")

	httpRouter := mux.NewRouter()
	webhookHandler.Register(httpRouter)
	workerhost.RegisterStatsRoute(httpRouter, host)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var lifecycle httputil.ServerLifecycle
	serveErr := make(chan error, 1)
	go func() {
		logger.Info(cmd.Context(), "workerhost: listening", "addr", cfg.Server.Addr)
		serveErr <- lifecycle.Serve(ctx, cfg.Server.Addr, httpRouter, 0, 0, 0, "workerhost")
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && ctx.Err() == nil {
			logger.Error(cmd.Context(), "workerhost: http server failed", "error", err)
			os.Exit(workerhost.ExitTransportAuthFailure)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return host.Shutdown(shutdownCtx)
}

// translatorSet bundles the hedged translator and STT/TTS factories every
// Pipeline in a room is built from.
type translatorSet struct {
	primary provider.Translator
	stt     func(pair lang.Pair) (provider.StreamingSTT, error)
	tts     provider.StreamingTTS
}

func buildTranslators(cfg *config.Config) (*translatorSet, error) {
	openaiTranslator := openai.NewTranslator(openai.Config{
		APIKey: cfg.Providers.OpenAI.APIKey,
		Model:  cfg.Providers.OpenAI.Model,
	})
	anthropicTranslator := anthropic.NewTranslator(anthropic.Config{
		APIKey:  cfg.Providers.Anthropic.APIKey,
		Model:   cfg.Providers.Anthropic.Model,
		Version: cfg.Providers.Anthropic.Version,
	})

	primary := provider.NewResilientTranslator(openaiTranslator, resilience.ProviderLimits{RPM: 500, MaxConcurrent: 32}, 5, 30*time.Second)
	secondary := provider.NewResilientTranslator(anthropicTranslator, resilience.ProviderLimits{RPM: 300, MaxConcurrent: 16}, 5, 30*time.Second)

	transcriber := openai.NewTranscriber(openai.Config{
		APIKey: cfg.Providers.OpenAI.APIKey,
		Model:  "whisper-1",
	})
	tts := openai.NewTTS(openai.Config{
		APIKey: cfg.Providers.OpenAI.APIKey,
	})

	// Ollama is the local fallback: it starts when the cloud pair has not
	// answered within 300ms or has failed, and the first success wins.
	ollamaTranslator, err := ollama.NewTranslator(ollama.Config{
		BaseURL: cfg.Providers.Ollama.BaseURL,
		Model:   cfg.Providers.Ollama.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama setup: %w", err)
	}
	cloudHedge := provider.NewHedgedTranslator(primary, secondary, 150*time.Millisecond)
	hedged := provider.NewHedgedTranslator(cloudHedge, ollamaTranslator, 300*time.Millisecond)

	return &translatorSet{
		primary: hedged,
		stt: func(lang.Pair) (provider.StreamingSTT, error) {
			return provider.NewVADChunker(transcriber, provider.VADConfig{}), nil
		},
		tts: tts,
	}, nil
}

func coordinatorFactory(cfg *config.Config, logger *o11y.Logger, lkClient *lksdk.RoomServiceClient, translators *translatorSet) workerhost.CoordinatorFactory {
	return func(job workerhost.Job) (*room.Coordinator, error) {
		rt := router.New(router.NewLiveKitTransport(lkClient, job.RoomID), logger)
		sinks := newListenerSinkPool(cfg.Transport.URL, cfg.Transport.APIKey, cfg.Transport.APISecret, job.RoomID)

		pipelinePolicy := buffer.Policy{
			InterimTrigger: cfg.Buffer.InterimTrigger(),
			MaxDelay:       cfg.Buffer.MaxDelay(),
			SilenceGap:     cfg.Buffer.SilenceGap(),
			MaxPending:     cfg.Buffer.MaxPendingPerBuf,
		}

		newPipeline := func(listenerID, speakerID string, pair lang.Pair, onFailure func(error)) (room.Pipeline, error) {
			stt, err := translators.stt(pair)
			if err != nil {
				return nil, err
			}
			sink, err := sinks.forListener(listenerID, speakerID)
			if err != nil {
				logger.Error(context.Background(), "workerhost: listener track publish failed, interpretation will be silent", "listener_id", listenerID, "speaker_id", speakerID, "error", err)
				sink = noopSink{}
			}
			return pipeline.New(pipeline.Config{
				ListenerID:   listenerID,
				SpeakerID:    speakerID,
				Pair:         pair,
				STT:          stt,
				Translator:   translators.primary,
				TTS:          translators.tts,
				Sink:         sink,
				AudioIn:      make(chan []byte),
				BufferPolicy: pipelinePolicy,
				Logger:       logger,
			}, onFailure), nil
		}

		return room.New(room.Config{
			RoomID:            job.RoomID,
			Router:            rt,
			NewPipeline:       newPipeline,
			ReconcileInterval: cfg.Room.ReconcileInterval(),
			EmptyRoomTimeout:  cfg.Room.EmptyRoomTimeout(),
			Logger:            logger,
			ControlChannel:    sinks,
		}), nil
	}
}

// noopSink is the AudioSink used when a listener's real LiveKit local track
// could not be published (e.g. transport outage); it exists so Pipeline
// construction never has to special-case a nil sink.
type noopSink struct{}

func (noopSink) WriteFrame(context.Context, []byte) error { return nil }

// listenerSinkPool connects one interpreter bot participant per listener to
// a room and publishes one interpreted track per (speaker, listener) pair
// on it, so N pipelines targeting the same listener share a single LiveKit
// connection instead of opening one per speaker.
type listenerSinkPool struct {
	url, apiKey, apiSecret, roomName string

	mu     sync.Mutex
	rooms  map[string]*lksdk.Room
	tracks map[string]*transport.ListenerTrack
}

func newListenerSinkPool(url, apiKey, apiSecret, roomName string) *listenerSinkPool {
	return &listenerSinkPool{
		url: url, apiKey: apiKey, apiSecret: apiSecret, roomName: roomName,
		rooms:  map[string]*lksdk.Room{},
		tracks: map[string]*transport.ListenerTrack{},
	}
}

func (p *listenerSinkPool) forListener(listenerID, speakerID string) (pipeline.AudioSink, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	trackID := router.InterpretedTrackID(speakerID, listenerID)
	if track, ok := p.tracks[trackID]; ok {
		return track, nil
	}

	lkRoom, err := p.connectLocked(listenerID)
	if err != nil {
		return nil, err
	}

	track, err := transport.NewListenerTrack(lkRoom, trackID)
	if err != nil {
		return nil, fmt.Errorf("publish interpreted track %s: %w", trackID, err)
	}
	p.tracks[trackID] = track
	return track, nil
}

// connectLocked returns the interpreter bot's room connection for
// listenerID, connecting it on first use. Callers must hold p.mu.
func (p *listenerSinkPool) connectLocked(listenerID string) (*lksdk.Room, error) {
	if lkRoom, ok := p.rooms[listenerID]; ok {
		return lkRoom, nil
	}
	identity := "interpreter-" + listenerID
	token, err := auth.NewAccessToken(p.apiKey, p.apiSecret).
		AddGrant(&auth.VideoGrant{RoomJoin: true, Room: p.roomName}).
		SetIdentity(identity).
		SetValidFor(24 * time.Hour).
		ToJWT()
	if err != nil {
		return nil, fmt.Errorf("mint interpreter bot token for listener %s: %w", listenerID, err)
	}
	lkRoom, err := lksdk.ConnectToRoomWithToken(p.url, token, &lksdk.RoomCallback{})
	if err != nil {
		return nil, fmt.Errorf("connect interpreter bot for listener %s: %w", listenerID, err)
	}
	p.rooms[listenerID] = lkRoom
	return lkRoom, nil
}

// PublishDiagnostic implements room.ControlChannelPublisher, reusing the
// same interpreter bot connection forListener establishes for the
// listener's audio track so a permanently-blocked pipeline doesn't need a
// second LiveKit connection just to report itself.
func (p *listenerSinkPool) PublishDiagnostic(ctx context.Context, d room.Diagnostic) error {
	p.mu.Lock()
	lkRoom, err := p.connectLocked(d.ListenerID)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("connect for diagnostic publish: %w", err)
	}
	return transport.NewControlChannel(lkRoom).PublishDiagnostic(ctx, d)
}

var _ core.Lifecycle = (*pipeline.Pipeline)(nil)
