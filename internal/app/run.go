package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/ucdpipe/internal/ctxlog"
	"github.com/vk/ucdpipe/internal/engine"
	"github.com/vk/ucdpipe/internal/event"
	"github.com/vk/ucdpipe/internal/provenance"
	"github.com/vk/ucdpipe/internal/result"
	"github.com/vk/ucdpipe/internal/source"
)

// ErrNoLocalSource is returned when watch mode is requested for a pipeline
// without a local mirror.
var ErrNoLocalSource = errors.New("watch mode needs a local source")

// Run executes the pipeline once. In watch mode it then keeps running the
// pipeline for every new version directory until ctx is done; the result of
// the initial run is returned. Run-time failures are reported in the result;
// the error covers setup problems only.
func (a *App) Run(ctx context.Context) (*result.RunResult, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 && a.httpServer == nil {
		a.startHealthCheckServer(a.config.HealthcheckPort)
	}

	observers := []event.Observer{event.LogObserver}
	if a.config.EventsURL != "" {
		fwd, err := event.DialForwarder(ctx, event.ForwarderConfig{URL: a.config.EventsURL})
		if err != nil {
			return nil, fmt.Errorf("failed to connect event forwarder: %w", err)
		}
		defer fwd.Close()
		observers = append(observers, fwd.Observe)
	}

	var watched *source.Local
	if a.config.Watch {
		for _, s := range a.engine.Pipeline().Sources {
			if local, ok := s.Backend.(*source.Local); ok {
				watched = local
			}
		}
		if watched == nil {
			return nil, ErrNoLocalSource
		}
	}

	res := a.runOnce(ctx, a.config.Versions, observers)

	if watched != nil {
		err := watched.WatchVersions(ctx, func(ctx context.Context, version string) {
			a.runOnce(ctx, []string{version}, observers)
		})
		if err != nil {
			return res, err
		}
	}

	a.logger.Debug("App.Run method finished.")
	return res, nil
}

func (a *App) runOnce(ctx context.Context, versions []string, observers []event.Observer) *result.RunResult {
	logger := ctxlog.FromContext(ctx)

	res := a.engine.Run(ctx, engine.RunOptions{
		NoCache:   a.config.NoCache,
		Versions:  versions,
		Observers: observers,
	})

	if a.config.ProvenanceDB != "" {
		if err := provenance.SaveSQLite(ctx, res.Provenance, a.config.ProvenanceDB, res.Summary.RunID); err != nil {
			logger.Error("Failed to export provenance.", "path", a.config.ProvenanceDB, "error", err)
			res.Errors = append(res.Errors, &result.RunError{
				Scope:   result.ScopePipeline,
				Message: fmt.Sprintf("failed to export provenance: %v", err),
				Cause:   err,
			})
			res.Summary.ErrorCount = len(res.Errors)
		} else {
			logger.Info("Provenance exported.", "path", a.config.ProvenanceDB, "run_id", res.Summary.RunID)
		}
	}

	s := res.Summary
	logger.Info("Run finished.",
		"run_id", s.RunID,
		"outputs", s.TotalOutputs,
		"errors", s.ErrorCount,
		"cache_hits", s.CacheHits,
		"duration", s.Duration,
	)
	return res
}
