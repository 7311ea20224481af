package main

import (
	"context"
	"fmt"

	"storyloop/internal/config"
	"storyloop/internal/debug"
	"storyloop/internal/llm"
	"storyloop/internal/observability"
	"storyloop/internal/story/director"
	"storyloop/internal/telemetry"
)

// app holds the shared wiring every command builds on: config, logging,
// tracing, the model adapter, and the telemetry sink.
type app struct {
	cfg       *config.Config
	debug     *debug.Logger
	tracer    *observability.TracerProvider
	completer llm.Completer
	sink      telemetry.Sink
}

func newApp(ctx context.Context, needModel bool) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	dbg := debug.NewLogger(cfg.Debug, cfg.DebugLog)

	tracer, err := observability.InitTracing(ctx, observability.LoadConfigFromEnv())
	if err != nil {
		dbg.Printf("tracing init failed: %v", err)
	} else if tracer.IsEnabled() {
		dbg.Println("OpenTelemetry tracing initialized and enabled")
	}

	a := &app{cfg: cfg, debug: dbg, tracer: tracer}

	if needModel {
		if cfg.OpenAIAPIKey == "" {
			return nil, nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		svc := llm.NewService(cfg.OpenAIAPIKey, cfg.Model, dbg)
		a.completer = llm.NewAdapter(svc, cfg.DecisionTimeout)
	}

	sink, err := telemetry.NewSQLiteSink(cfg.TelemetryDB, dbg)
	if err != nil {
		dbg.Printf("telemetry sink unavailable: %v", err)
		a.sink = telemetry.NopSink{}
	} else {
		a.sink = sink
	}

	cleanup := func() {
		a.sink.Close()
		if a.tracer != nil {
			a.tracer.Shutdown(context.Background())
		}
	}
	return a, cleanup, nil
}

func (a *app) pacingRules() director.PacingRules {
	return director.PacingRules{
		StallTurns:          a.cfg.Pacing.StallTurns,
		MidpointFraction:    a.cfg.Pacing.MidpointFraction,
		LateFraction:        a.cfg.Pacing.LateFraction,
		EndgameFraction:     a.cfg.Pacing.EndgameFraction,
		CountdownSlack:      a.cfg.Pacing.CountdownSlack,
		MaxConsecutiveTurns: a.cfg.Pacing.MaxConsecutiveTurns,
	}
}
