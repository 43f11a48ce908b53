package app

import (
	"time"

	"fractald/internal/config"
	"fractald/internal/runtime/supervisor"
)

// ---- Config ----

type Config = config.Config

var NewConfigManager = config.NewManager

var SummarizeConfigChange = config.SummarizeConfigChange

func parseDurationField(path, raw string) (time.Duration, error) {
	return config.ParseDurationField(path, raw)
}

func parseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	return config.ParseDurationOrDefault(path, raw, def)
}

// ---- Runtime ----

type Supervisor = supervisor.Supervisor

var (
	NewSupervisor     = supervisor.New
	WithLogger        = supervisor.WithLogger
	WithCancelOnError = supervisor.WithCancelOnError
)
