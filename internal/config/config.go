package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DeepgramKey string
	GroqKey     string
	VoiceModel  string

	LLMURL         string
	LLMModel       string
	LLMTemperature float64
	LLMTimeout     time.Duration

	ContextURL   string
	TriggerWord  string
	ExitWords    []string
	FarewellText string

	LogFile     string
	MemoryLines int

	STTURL            string
	STTConnectTimeout time.Duration
	STTMaxSession     time.Duration
	STTIdleTimeout    time.Duration

	TTSTimeout         time.Duration
	PlaybackSampleRate int

	StatusAddress string
	LogLevel      string
}

// Load reads .env (when present) and environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: error loading .env file: %v", err)
	}

	cfg := Config{
		DeepgramKey: os.Getenv("DEEPGRAM_API_KEY"),
		GroqKey:     os.Getenv("GROQ_API_KEY"),
		VoiceModel:  getEnv("VOICE_MODEL", "aura-asteria-en"),

		LLMURL:         getEnv("LLM_URL", "https://api.groq.com/openai/v1/chat/completions"),
		LLMModel:       getEnv("LLM_MODEL", "llama-3.1-8b-instant"),
		LLMTemperature: getFloat("LLM_TEMPERATURE", 0.3),
		LLMTimeout:     getDuration("LLM_TIMEOUT", 30*time.Second),

		ContextURL:   getEnv("CONTEXT_URL", "https://developers.deepgram.com/trust-security/data-privacy-compliance"),
		TriggerWord:  strings.ToLower(getEnv("TRIGGER_WORD", "alexa")),
		ExitWords:    getList("EXIT_WORDS", []string{"exit", "goodbye", "stop"}),
		FarewellText: getEnv("FAREWELL_TEXT", "Goodbye!"),

		LogFile:     getEnv("LOG_FILE", "conversation_log.txt"),
		MemoryLines: getInt("MEMORY_LINES", 6),

		STTURL:            getEnv("STT_URL", "wss://api.deepgram.com/v1/listen"),
		STTConnectTimeout: getDuration("STT_CONNECT_TIMEOUT", 10*time.Second),
		STTMaxSession:     getDuration("STT_MAX_SESSION", 60*time.Second),
		STTIdleTimeout:    getDuration("STT_IDLE_TIMEOUT", 0),

		TTSTimeout:         getDuration("TTS_TIMEOUT", 20*time.Second),
		PlaybackSampleRate: getInt("PLAYBACK_SAMPLE_RATE", 24000),

		StatusAddress: os.Getenv("STATUS_ADDRESS"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	if cfg.DeepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - transcription and speech will not work")
	}
	if cfg.GroqKey == "" {
		log.Println("Warning: GROQ_API_KEY not set - LLM will not work")
	}
	return cfg
}

// Validate reports configuration the agent cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.DeepgramKey == "" {
		errs = append(errs, errors.New("DEEPGRAM_API_KEY is required"))
	}
	if c.GroqKey == "" {
		errs = append(errs, errors.New("GROQ_API_KEY is required"))
	}
	if c.TriggerWord == "" {
		errs = append(errs, errors.New("TRIGGER_WORD must not be empty"))
	}
	if c.MemoryLines < 0 {
		errs = append(errs, errors.New("MEMORY_LINES must not be negative"))
	}
	if c.PlaybackSampleRate <= 0 {
		errs = append(errs, errors.New("PLAYBACK_SAMPLE_RATE must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		log.Printf("config: invalid %s=%q, using %d", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getFloat(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %v", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || v < 0 {
		log.Printf("config: invalid %s=%q, using %s", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

// getList splits a comma separated value into lower-cased, non-empty entries.
func getList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
