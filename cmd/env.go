package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/breitband-atlas/coverage-cli/internal/config"
	"github.com/breitband-atlas/coverage-cli/internal/pipeline"
	"github.com/breitband-atlas/coverage-cli/internal/store"
)

// env bundles the dependencies every command needs.
type env struct {
	rules    *config.Rules
	store    store.Store
	pipeline *pipeline.Pipeline
}

func (e *env) Close() {
	if e.store != nil {
		e.store.Close()
	}
}

func initEnv(ctx context.Context) (*env, error) {
	rules, err := config.LoadRules(cfg.Rules)
	if err != nil {
		return nil, eris.Wrap(err, "load rules")
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	return &env{
		rules:    rules,
		store:    st,
		pipeline: pipeline.New(cfg, rules, st),
	}, nil
}
