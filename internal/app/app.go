package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/ucdpipe/internal/cache"
	"github.com/vk/ucdpipe/internal/config"
	"github.com/vk/ucdpipe/internal/ctxlog"
	"github.com/vk/ucdpipe/internal/dag"
	"github.com/vk/ucdpipe/internal/engine"
	"github.com/vk/ucdpipe/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	logger     *slog.Logger
	config     *Config
	registry   *registry.Registry
	model      *config.Model
	engine     *engine.Engine
	closers    []func() error
	httpServer *http.Server
}

// NewApp loads the pipeline declaration, validates it against the registered
// modules, and builds the engine. Logs are written to logW. When no modules
// are given the core modules are registered.
func NewApp(logW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, cfg.PipelinePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Debug("Configuration loaded and translated into unified model.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules))

	if err := reg.ValidateModel(ctx, model); err != nil {
		return nil, err
	}
	logger.Debug("Registry validation passed.")

	a := &App{ctx: ctx, logger: logger, config: cfg, registry: reg, model: model}

	pipeline, closers, err := buildPipeline(ctx, model, reg, cfg.WorkerCount)
	a.closers = append(a.closers, closers...)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}

	var opts []engine.Option
	store, closeStore, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}
	if store != nil {
		opts = append(opts, engine.WithCache(store))
	}

	a.engine, err = engine.New(ctx, pipeline, opts...)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	logger.Debug("Engine ready.", "layers", len(a.engine.Graph().Layers()))
	return a, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Model returns the loaded declaration.
func (a *App) Model() *config.Model {
	return a.model
}

// Graph returns the validated route graph.
func (a *App) Graph() *dag.Graph {
	return a.engine.Graph()
}

// Close releases backends, the cache, and the health check server.
func (a *App) Close() error {
	var errs []error
	if err := a.closeHealthCheckServer(); err != nil {
		errs = append(errs, err)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openCache opens the store a cache setting names. A nil store means caching
// is off.
func openCache(ctx context.Context, spec string) (cache.Store, func() error, error) {
	mode, path, err := parseCacheSpec(spec)
	if err != nil {
		return nil, nil, err
	}
	switch mode {
	case CacheOff:
		return nil, nil, nil
	case CacheMemory:
		return cache.NewMemory(), nil, nil
	default:
		store, err := cache.OpenSQLite(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
}
