package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds runtime settings for the story engine. Everything here is
// environment-driven; scenario files carry the per-story knobs.
type Config struct {
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	Model        string `env:"STORYLOOP_MODEL" envDefault:"gpt-5-2025-08-07"`

	// Aggregate budget for one logical decision, inclusive of retries and
	// the normalizer's repair round-trip.
	DecisionTimeout time.Duration `env:"STORYLOOP_DECISION_TIMEOUT" envDefault:"120s"`

	Debug       bool   `env:"DEBUG"`
	DebugLog    string `env:"STORYLOOP_DEBUG_LOG" envDefault:"debug.log"`
	TelemetryDB string `env:"STORYLOOP_TELEMETRY_DB" envDefault:"storyloop.db"`

	Pacing PacingConfig
}

// PacingConfig tunes the multi-stage force-act rules. The thresholds are
// turn fractions in [0,1]; see director.ComputePacing for how each stage
// fires.
type PacingConfig struct {
	StallTurns          int     `env:"STORYLOOP_PACING_STALL_TURNS" envDefault:"2"`
	MidpointFraction    float64 `env:"STORYLOOP_PACING_MIDPOINT" envDefault:"0.5"`
	LateFraction        float64 `env:"STORYLOOP_PACING_LATE" envDefault:"0.7"`
	EndgameFraction     float64 `env:"STORYLOOP_PACING_ENDGAME" envDefault:"0.8"`
	CountdownSlack      int     `env:"STORYLOOP_PACING_COUNTDOWN_SLACK" envDefault:"1"`
	MaxConsecutiveTurns int     `env:"STORYLOOP_MAX_CONSECUTIVE_TURNS" envDefault:"2"`
}

// Load reads a .env file if one exists, then parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
