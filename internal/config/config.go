package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

type Config struct {
	Mode Mode

	Port string

	GCPProjectID string
	GCPLocation  string
	ModelName    string

	StorageBackend string // "memory" or "firestore"
	UseMockLLM     bool   // true = use mock even on GCP

	// Recognition policy. The threshold is on the embedding distance scale:
	// a roster match closer than this counts as trusted. A trusted match must
	// also win a majority of the last SmoothWindow frames before the engine
	// acts on it.
	RecognitionThreshold float64
	SmoothWindow         int

	// Escalation policy parameters. Kept out of the state machine itself so
	// the engine stays pure and testable.
	DebounceWindow time.Duration
	Level1Timeout  time.Duration
	Level2Timeout  time.Duration
	Level3Timeout  time.Duration

	LLMTimeout   time.Duration
	ContextTurns int

	ScoreCooperative int
	ScoreEvasive     int
	ScoreHostile     int

	// Level 3 gate: alarm when the score stays below CooperationGate after
	// InterrogationExchanges spoken exchanges at level 3.
	CooperationGate        int
	InterrogationExchanges int

	// Level 1 time-based acceptance bounds.
	GrantMinCooperative int
	GrantMinElapsed     time.Duration

	// Trusted chat ends after this much silence.
	ChatSilenceTimeout time.Duration
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("%s must be an integer, got %q", key, v)
	}
	return n
}

func getFloatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("%s must be a number, got %q", key, v)
	}
	return f
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("%s must be a duration like 30s, got %q", key, v)
	}
	return d
}

// Load reads all env vars and builds the config
func Load() *Config {
	modeStr := getEnv("GUARD_MODE", "local")
	var mode Mode
	switch modeStr {
	case "gcp":
		mode = ModeGCP
	default:
		mode = ModeLocal
	}

	cfg := &Config{
		Mode: mode,

		Port: getEnv("GUARD_PORT", "8080"),

		GCPProjectID: getEnv("GUARD_GCP_PROJECT", ""),
		GCPLocation:  getEnv("GUARD_GCP_LOCATION", "us-central1"),
		ModelName:    getEnv("GUARD_MODEL_NAME", "gemini-2.5-flash-lite"),

		StorageBackend: getEnv("GUARD_STORAGE_BACKEND", "memory"),
		UseMockLLM:     getBoolEnv("GUARD_USE_MOCK_LLM", mode == ModeLocal),

		RecognitionThreshold: getFloatEnv("GUARD_RECOGNITION_THRESHOLD", 0.4),
		SmoothWindow:         getIntEnv("GUARD_SMOOTH_WINDOW", 5),

		DebounceWindow: getDurationEnv("GUARD_DEBOUNCE_WINDOW", 2*time.Second),
		Level1Timeout:  getDurationEnv("GUARD_LEVEL1_TIMEOUT", 30*time.Second),
		Level2Timeout:  getDurationEnv("GUARD_LEVEL2_TIMEOUT", 20*time.Second),
		Level3Timeout:  getDurationEnv("GUARD_LEVEL3_TIMEOUT", 45*time.Second),

		LLMTimeout:   getDurationEnv("GUARD_LLM_TIMEOUT", 5*time.Second),
		ContextTurns: getIntEnv("GUARD_CONTEXT_TURNS", 20),

		ScoreCooperative: getIntEnv("GUARD_SCORE_COOPERATIVE", 1),
		ScoreEvasive:     getIntEnv("GUARD_SCORE_EVASIVE", -1),
		ScoreHostile:     getIntEnv("GUARD_SCORE_HOSTILE", -2),

		CooperationGate:        getIntEnv("GUARD_COOPERATION_GATE", 1),
		InterrogationExchanges: getIntEnv("GUARD_INTERROGATION_EXCHANGES", 3),

		GrantMinCooperative: getIntEnv("GUARD_GRANT_MIN_COOPERATIVE", 5),
		GrantMinElapsed:     getDurationEnv("GUARD_GRANT_MIN_ELAPSED", 60*time.Second),

		ChatSilenceTimeout: getDurationEnv("GUARD_CHAT_SILENCE_TIMEOUT", 30*time.Second),
	}

	// Minimal validation in GCP mode
	if cfg.Mode == ModeGCP && cfg.GCPProjectID == "" {
		log.Fatal("GUARD_GCP_PROJECT must be set in gcp mode")
	}

	return cfg
}
