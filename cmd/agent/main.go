package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/chadiek/voice-agent/internal/agent"
	"github.com/chadiek/voice-agent/internal/audio"
	"github.com/chadiek/voice-agent/internal/barge"
	"github.com/chadiek/voice-agent/internal/config"
	"github.com/chadiek/voice-agent/internal/contextdoc"
	"github.com/chadiek/voice-agent/internal/httpserver"
	"github.com/chadiek/voice-agent/internal/llm"
	"github.com/chadiek/voice-agent/internal/logging"
	"github.com/chadiek/voice-agent/internal/memory"
	"github.com/chadiek/voice-agent/internal/playback"
	"github.com/chadiek/voice-agent/internal/transcript"
	"github.com/chadiek/voice-agent/internal/tts"
)

const captureSampleRate = 16000

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel)
	defer func() { _ = logging.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logging.Infow("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	document := loadDocument(ctx, cfg.ContextURL)

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatalf("audio: init capture context: %v", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()
	mic := audio.NewMicrophone(mctx.Context, captureSampleRate, transcript.FrameSize)

	speaker, err := audio.NewSpeaker(cfg.PlaybackSampleRate)
	if err != nil {
		log.Fatalf("audio: init playback: %v", err)
	}

	listener := transcript.NewListener(mic, transcript.Options{
		APIKey:         cfg.DeepgramKey,
		URL:            cfg.STTURL,
		SampleRate:     captureSampleRate,
		ConnectTimeout: cfg.STTConnectTimeout,
	}, cfg.STTMaxSession, cfg.STTIdleTimeout)

	synth := tts.NewDeepgramClient(cfg.DeepgramKey, cfg.VoiceModel, cfg.PlaybackSampleRate, cfg.TTSTimeout)
	engine := playback.New(synth, speaker)
	voice := barge.NewSpeaker(engine, barge.NewWatcher(listener, cfg.TriggerWord))

	groq := llm.NewGroqClient(cfg.GroqKey, cfg.LLMModel, cfg.LLMTemperature, cfg.LLMTimeout)
	groq.Endpoint = cfg.LLMURL

	convo := memory.NewLog(cfg.LogFile, cfg.MemoryLines)

	loop := agent.NewLoop(listener, groq, voice, convo, agent.Options{
		Document:   document,
		ExitWords:  cfg.ExitWords,
		Farewell:   cfg.FarewellText,
		LLMTimeout: cfg.LLMTimeout,
		Console:    os.Stdout,
	})

	var server *http.Server
	if cfg.StatusAddress != "" {
		server = &http.Server{
			Addr:              cfg.StatusAddress,
			Handler:           httpserver.New(loop, convo),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			logging.Infow("status server listening", "addr", cfg.StatusAddress)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Errorw("status server failed", "err", err)
			}
		}()
	}

	fmt.Println("Ask me about Deepgram's privacy & data policy.")
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Errorw("conversation loop stopped", "err", err)
	}
	fmt.Println("Exiting...")

	if server != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Warnw("graceful shutdown failed", "err", err)
			_ = server.Close()
		}
	}
}

// loadDocument fetches the reference page; the agent still runs without it.
func loadDocument(ctx context.Context, url string) string {
	fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	doc, err := contextdoc.Fetch(fetchCtx, http.DefaultClient, url)
	if err != nil {
		logging.Warnw("context: fetch failed, continuing without reference text", "url", url, "err", err)
		return ""
	}
	logging.Infow("context: loaded reference text", "url", url, "chars", len(doc))
	return doc
}
