package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// GameConfig holds the engine timing knobs. Durations accept Go syntax
// ("60s", "24h").
type GameConfig struct {
	Countdown       time.Duration `env:"GAME_COUNTDOWN" envDefault:"60s"`
	Inactivity      time.Duration `env:"GAME_INACTIVITY" envDefault:"24h"`
	PollTimeout     time.Duration `env:"POLL_TIMEOUT" envDefault:"300s"`
	InternalPoll    time.Duration `env:"INTERNAL_POLL_TIMEOUT" envDefault:"30s"`
	IdleUnloadAfter time.Duration `env:"GAME_IDLE_UNLOAD_AFTER" envDefault:"1h"`
}

func LoadGame() (GameConfig, error) {
	var cfg GameConfig
	err := env.Parse(&cfg)
	return cfg, err
}
