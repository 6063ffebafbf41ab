package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/ucdpipe/internal/ctxlog"
	"github.com/vk/ucdpipe/internal/model"
	"github.com/vk/ucdpipe/internal/registry"
	"github.com/vk/ucdpipe/internal/source"
	"github.com/vk/ucdpipe/internal/stream"
)

// linesParser yields one point record per line.
func linesParser(_ context.Context, in registry.ParseInput) stream.Seq {
	return stream.Once(func(yield func(model.Record, error) bool) {
		for line, err := range stream.Lines(in.Reader) {
			if err != nil {
				yield(model.Record{}, err)
				return
			}
			if !yield(model.Record{SourceFile: in.File, Kind: model.KindPoint, Value: line}, nil) {
				return
			}
		}
	})
}

// failingParser yields one record, then an error.
func failingParser(_ context.Context, in registry.ParseInput) stream.Seq {
	return func(yield func(model.Record, error) bool) {
		if !yield(model.Record{SourceFile: in.File, Value: "first"}, nil) {
			return
		}
		yield(model.Record{}, errors.New("malformed line 2"))
	}
}

// upper is a transform that upper-cases record values.
func upper(_ context.Context, in stream.Seq, _ map[string]any) stream.Seq {
	return stream.Map(in, func(r model.Record) (model.Record, error) {
		r.Value = strings.ToUpper(r.Value)
		return r, nil
	})
}

// dropErrors is a transform that stops at the first upstream error without
// passing it on.
func dropErrors(_ context.Context, in stream.Seq, _ map[string]any) stream.Seq {
	return func(yield func(model.Record, error) bool) {
		for rec, err := range in {
			if err != nil {
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// valuesResolver returns every record value as its own output.
func valuesResolver(_ context.Context, _ registry.ResolveContext, seq stream.Seq) (any, error) {
	var out registry.Outputs
	for rec, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, rec.Value)
	}
	return out, nil
}

// joinResolver returns all record values joined into one output.
func joinResolver(_ context.Context, _ registry.ResolveContext, seq stream.Seq) (any, error) {
	records, err := stream.Collect(seq)
	if err != nil {
		return nil, err
	}
	values := make([]string, len(records))
	for i, r := range records {
		values[i] = r.Value
	}
	return strings.Join(values, ","), nil
}

func memorySource(id string, files map[string]map[string]string) source.Source {
	return source.Source{ID: id, Backend: source.NewMemory(files)}
}

func newEngine(t *testing.T, p *registry.Pipeline, opts ...Option) *Engine {
	t.Helper()
	e, err := New(ctxlog.Discard(context.Background()), p, opts...)
	require.NoError(t, err)
	return e
}
