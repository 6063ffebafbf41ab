package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/ucdpipe/internal/cache"
	"github.com/vk/ucdpipe/internal/ctxlog"
	"github.com/vk/ucdpipe/internal/dag"
	"github.com/vk/ucdpipe/internal/event"
	"github.com/vk/ucdpipe/internal/filter"
	"github.com/vk/ucdpipe/internal/model"
	"github.com/vk/ucdpipe/internal/provenance"
	"github.com/vk/ucdpipe/internal/registry"
	"github.com/vk/ucdpipe/internal/result"
	"github.com/vk/ucdpipe/internal/source"
	"github.com/vk/ucdpipe/internal/stream"
	"github.com/vk/ucdpipe/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

func TestRun_SingleRoute(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	rec := &event.Recorder{}
	p := &registry.Pipeline{
		ID:       "basic",
		Versions: []string{"1"},
		Sources:  []source.Source{memorySource("mem", map[string]map[string]string{"1": {"Blocks.txt": "a\nb"}})},
		Routes: []*registry.Route{{
			ID:         "blocks",
			Filter:     filter.Name("Blocks.txt"),
			Parser:     linesParser,
			Transforms: []registry.TransformFunc{upper},
			Resolver:   valuesResolver,
		}},
		Observers: []registry.Observer{rec.Observe},
	}

	res := newEngine(t, p, WithRunID(func() string { return "run-1" })).Run(ctx, RunOptions{})

	require.Empty(t, res.Errors)
	require.Len(t, res.Outputs, 2)
	assert.Equal(t, "A", res.Outputs[0].Value)
	assert.Equal(t, "B", res.Outputs[1].Value)
	assert.Equal(t, "blocks", res.Outputs[0].RouteID)
	assert.Equal(t, "run-1", res.Summary.RunID)
	assert.Equal(t, 1, res.Summary.RouteTasks)
	assert.Equal(t, 1, res.Summary.MatchedFiles)

	var types []event.Type
	for _, ev := range rec.Events() {
		types = append(types, ev.Type)
		assert.Equal(t, "run-1", ev.RunID)
	}
	want := []event.Type{
		event.PipelineStart,
		event.VersionStart,
		event.RouteStart,
		event.FileMatched,
		event.ParseStart,
		event.ResolveStart,
		event.ParseEnd,
		event.ResolveEnd,
		event.RouteEnd,
		event.VersionEnd,
		event.PipelineEnd,
	}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Errorf("event sequence mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, rec.OfType(event.ParseEnd)[0].Records)
	assert.Equal(t, []string{"1"}, rec.OfType(event.PipelineStart)[0].Versions)
}

// twoPass declares a producer X and a consumer Y that both match the same
// file; Y enriches its output with X's artifact.
func twoPass(order []string, observed *atomic.Int32, missing *atomic.Int32) []*registry.Route {
	x := &registry.Route{
		ID:     "x",
		Parser: linesParser,
		Emits:  []registry.ArtifactDecl{{Name: "count"}},
		Resolver: func(_ context.Context, rc registry.ResolveContext, seq stream.Seq) (any, error) {
			records, err := stream.Collect(seq)
			if err != nil {
				return nil, err
			}
			time.Sleep(2 * time.Millisecond)
			return nil, rc.EmitArtifact("count", len(records))
		},
	}
	y := &registry.Route{
		ID:        "y",
		Parser:    linesParser,
		DependsOn: []string{"route:x", "artifact:x:count"},
		Resolver: func(_ context.Context, rc registry.ResolveContext, seq stream.Seq) (any, error) {
			count, ok := registry.GetArtifact[int](rc, "x:count")
			if !ok {
				missing.Add(1)
				return nil, nil
			}
			observed.Add(1)
			return fmt.Sprintf("%s has %d lines", rc.File().Name, count), nil
		},
	}
	byID := map[string]*registry.Route{"x": x, "y": y}
	routes := make([]*registry.Route, len(order))
	for i, id := range order {
		routes[i] = byID[id]
	}
	return routes
}

func TestRun_OrderIsGraphDerived(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	files := map[string]map[string]string{"1": {"a.txt": "1\n2\n3", "b.txt": "1"}}

	for _, order := range [][]string{{"x", "y"}, {"y", "x"}} {
		t.Run(strings.Join(order, ","), func(t *testing.T) {
			var observed, missing atomic.Int32
			p := &registry.Pipeline{
				ID:          "two-pass",
				Versions:    []string{"1"},
				Sources:     []source.Source{memorySource("mem", files)},
				Routes:      twoPass(order, &observed, &missing),
				Concurrency: 4,
			}
			e := newEngine(t, p)
			assert.Equal(t, [][]string{{"x"}, {"y"}}, e.Graph().LayerIDs())

			res := e.Run(ctx, RunOptions{})
			require.Empty(t, res.Errors)
			assert.Equal(t, int32(2), observed.Load())
			assert.Equal(t, int32(0), missing.Load(), "y must never run before x emitted")

			var values []string
			for _, o := range res.OutputsOfRoute("y") {
				values = append(values, o.Value.(string))
			}
			sort.Strings(values)
			assert.Equal(t, []string{"a.txt has 3 lines", "b.txt has 1 lines"}, values)
		})
	}
}

func TestRun_ArtifactsInvisibleWithinLayer(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	var sawPeer atomic.Bool

	p := &registry.Pipeline{
		ID:          "same-layer",
		Versions:    []string{"1"},
		Sources:     []source.Source{memorySource("mem", map[string]map[string]string{"1": {"a.txt": "x"}})},
		Concurrency: 1,
		Routes: []*registry.Route{
			{
				ID:     "producer",
				Parser: linesParser,
				Emits:  []registry.ArtifactDecl{{Name: "v"}},
				Resolver: func(_ context.Context, rc registry.ResolveContext, _ stream.Seq) (any, error) {
					return nil, rc.EmitArtifact("v", "value")
				},
			},
			{
				ID:     "peer",
				Parser: linesParser,
				Resolver: func(_ context.Context, rc registry.ResolveContext, _ stream.Seq) (any, error) {
					_, ok := rc.GetArtifact("producer:v")
					sawPeer.Store(ok)
					return nil, nil
				},
			},
		},
	}

	res := newEngine(t, p).Run(ctx, RunOptions{})
	require.Empty(t, res.Errors)
	assert.False(t, sawPeer.Load(), "a route must not read artifacts of its own layer even after they were emitted")
}

func TestRun_ConcurrencyOneNeverOverlaps(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	spans := testutil.NewSpanRecorder()

	var routes []*registry.Route
	for i := 0; i < 6; i++ {
		routes = append(routes, &registry.Route{
			ID:     fmt.Sprintf("r%d", i),
			Parser: linesParser,
			Resolver: func(context.Context, registry.ResolveContext, stream.Seq) (any, error) {
				time.Sleep(3 * time.Millisecond)
				return "done", nil
			},
		})
	}
	p := &registry.Pipeline{
		ID:          "serial",
		Versions:    []string{"1", "2"},
		Sources:     []source.Source{memorySource("mem", map[string]map[string]string{"1": {"a.txt": "x"}, "2": {"a.txt": "y"}})},
		Routes:      routes,
		Concurrency: 1,
		Observers:   []registry.Observer{spans.Observe},
	}

	res := newEngine(t, p).Run(ctx, RunOptions{})
	require.Empty(t, res.Errors)
	require.Len(t, spans.Spans(), 12)
	if a, b, overlap := spans.Overlapping(); overlap {
		t.Fatalf("route tasks overlapped: %+v and %+v", a, b)
	}
}

func TestRun_UnmatchedFiles(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	files := map[string]map[string]string{"1": {"Blocks.txt": "x", "Unknown.txt": "a\nb"}}
	blocks := &registry.Route{ID: "blocks", Filter: filter.Name("Blocks.txt"), Parser: linesParser, Resolver: joinResolver}

	t.Run("fallback", func(t *testing.T) {
		rec := &event.Recorder{}
		p := &registry.Pipeline{
			ID:        "fb",
			Versions:  []string{"1"},
			Sources:   []source.Source{memorySource("mem", files)},
			Routes:    []*registry.Route{blocks},
			Fallback:  &registry.Fallback{Parser: linesParser, Resolver: joinResolver},
			Observers: []registry.Observer{rec.Observe},
		}
		res := newEngine(t, p).Run(ctx, RunOptions{})
		require.Empty(t, res.Errors)

		var fallback []result.Output
		for _, o := range res.Outputs {
			if o.Fallback {
				fallback = append(fallback, o)
			}
		}
		require.Len(t, fallback, 1)
		assert.Equal(t, "a,b", fallback[0].Value)
		assert.Equal(t, "Unknown.txt", fallback[0].File.Path)

		fbEvents := rec.OfType(event.FileFallback)
		require.Len(t, fbEvents, 1)
		assert.Equal(t, "Unknown.txt", fbEvents[0].File.Path)
		assert.Equal(t, 1, res.Summary.FallbackFiles)

		// The fallback output hangs off the file node, not a route node.
		edges := res.Provenance.EdgesFrom(provenance.FileID("1", "Unknown.txt"))
		require.Len(t, edges, 1)
		assert.Equal(t, provenance.EdgeResolved, edges[0].Kind)
	})

	t.Run("strict", func(t *testing.T) {
		p := &registry.Pipeline{
			ID:       "strict",
			Versions: []string{"1"},
			Sources:  []source.Source{memorySource("mem", map[string]map[string]string{"1": {"Unknown.txt": "a"}})},
			Routes:   []*registry.Route{blocks},
			Strict:   true,
		}
		res := newEngine(t, p).Run(ctx, RunOptions{})
		assert.Empty(t, res.Outputs)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, result.ScopeFile, res.Errors[0].Scope)
		assert.Equal(t, "no matching route for file Unknown.txt", res.Errors[0].Message)
	})

	t.Run("fallback filter rejects", func(t *testing.T) {
		rec := &event.Recorder{}
		p := &registry.Pipeline{
			ID:        "skip",
			Versions:  []string{"1"},
			Sources:   []source.Source{memorySource("mem", files)},
			Routes:    []*registry.Route{blocks},
			Fallback:  &registry.Fallback{Filter: filter.Extension(".html"), Parser: linesParser, Resolver: joinResolver},
			Observers: []registry.Observer{rec.Observe},
		}
		res := newEngine(t, p).Run(ctx, RunOptions{})
		require.Empty(t, res.Errors)

		skipped := rec.OfType(event.FileSkipped)
		require.Len(t, skipped, 1)
		assert.Equal(t, event.ReasonNoMatch, skipped[0].Reason)
		assert.Equal(t, 1, res.Summary.SkippedFiles)
	})

	t.Run("include filter", func(t *testing.T) {
		rec := &event.Recorder{}
		p := &registry.Pipeline{
			ID:        "include",
			Versions:  []string{"1"},
			Sources:   []source.Source{memorySource("mem", files)},
			Routes:    []*registry.Route{blocks},
			Include:   filter.Name("Blocks.txt"),
			Strict:    true,
			Observers: []registry.Observer{rec.Observe},
		}
		res := newEngine(t, p).Run(ctx, RunOptions{})
		require.Empty(t, res.Errors, "filtered files never reach the strict check")

		skipped := rec.OfType(event.FileSkipped)
		require.Len(t, skipped, 1)
		assert.Equal(t, event.ReasonFiltered, skipped[0].Reason)
		assert.Equal(t, "Unknown.txt", skipped[0].File.Path)
		assert.Equal(t, 1, res.Summary.FilteredFiles)
	})
}

func TestRun_CacheRoundTrip(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	store := cache.NewMemory()
	files := map[string]map[string]string{
		"1": {"a.txt": "1\n2", "b.txt": "3"},
		"2": {"a.txt": "4"},
	}
	var resolves atomic.Int32
	p := &registry.Pipeline{
		ID:       "cached",
		Versions: []string{"1", "2"},
		Sources:  []source.Source{memorySource("mem", files)},
		Routes: []*registry.Route{{
			ID:     "join",
			Parser: linesParser,
			Resolver: func(ctx context.Context, rc registry.ResolveContext, seq stream.Seq) (any, error) {
				resolves.Add(1)
				return joinResolver(ctx, rc, seq)
			},
		}},
		Concurrency: 1,
	}
	e := newEngine(t, p, WithCache(store))

	first := e.Run(ctx, RunOptions{})
	require.Empty(t, first.Errors)
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, cache.Stats{Entries: 3, Hits: 0, Misses: 3}, stats)
	assert.Equal(t, int32(3), resolves.Load())

	second := e.Run(ctx, RunOptions{})
	require.Empty(t, second.Errors)
	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, cache.Stats{Entries: 3, Hits: 3, Misses: 3}, stats, "second run is all hits")
	assert.Equal(t, int32(3), resolves.Load(), "nothing is resolved again")
	assert.Equal(t, 0, second.Summary.CacheMisses)
	assert.Equal(t, 3, second.Summary.CacheHits)

	values := func(res *result.RunResult) []any {
		var out []any
		for _, o := range res.Outputs {
			out = append(out, o.Value)
		}
		return out
	}
	assert.Equal(t, values(first), values(second))

	third := e.Run(ctx, RunOptions{NoCache: true})
	require.Empty(t, third.Errors)
	after, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats, after, "a run without cache leaves statistics untouched")
	assert.Equal(t, values(first), values(third))
	assert.Equal(t, int32(6), resolves.Load())
}

func TestRun_CacheReplaysArtifacts(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	store := cache.NewMemory()
	var observed, missing atomic.Int32
	routes := twoPass([]string{"x", "y"}, &observed, &missing)
	routes[1].NoCache = true
	p := &registry.Pipeline{
		ID:       "replay",
		Versions: []string{"1"},
		Sources:  []source.Source{memorySource("mem", map[string]map[string]string{"1": {"a.txt": "1\n2"}})},
		Routes:   routes,
	}
	rec := &event.Recorder{}
	e := newEngine(t, p, WithCache(store))

	e.Run(ctx, RunOptions{})
	second := e.Run(ctx, RunOptions{Observers: []event.Observer{rec.Observe}})
	require.Empty(t, second.Errors)

	require.Len(t, rec.OfType(event.CacheHit), 1)
	assert.Equal(t, "x", rec.OfType(event.CacheHit)[0].RouteID)
	assert.Len(t, rec.OfType(event.ArtifactEmit), 1, "the cached artifact is published again")
	assert.Equal(t, int32(2), observed.Load(), "the consumer sees the artifact on the warm run too")
	assert.Equal(t, int32(0), missing.Load())

	require.Len(t, second.OutputsOfRoute("y"), 1)
	assert.Equal(t, "a.txt has 2 lines", second.OutputsOfRoute("y")[0].Value)
}

func TestRun_ContentChangeMissesCache(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	store := cache.NewMemory()
	backend := source.NewMemory(map[string]map[string]string{"1": {"a.txt": "old"}})
	p := &registry.Pipeline{
		ID:       "content",
		Versions: []string{"1"},
		Sources:  []source.Source{{ID: "mem", Backend: backend}},
		Routes:   []*registry.Route{{ID: "join", Parser: linesParser, Resolver: joinResolver}},
	}
	e := newEngine(t, p, WithCache(store))

	e.Run(ctx, RunOptions{})
	backend.Put("1", "a.txt", "new")
	res := e.Run(ctx, RunOptions{})

	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "new", res.Outputs[0].Value)
	assert.False(t, res.Outputs[0].Cached)
}

func TestRun_NoCacheRoute(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	store := cache.NewMemory()
	p := &registry.Pipeline{
		ID:       "opt-out",
		Versions: []string{"1"},
		Sources:  []source.Source{memorySource("mem", map[string]map[string]string{"1": {"a.txt": "x"}})},
		Routes:   []*registry.Route{{ID: "live", Parser: linesParser, Resolver: joinResolver, NoCache: true}},
	}
	newEngine(t, p, WithCache(store)).Run(ctx, RunOptions{})

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, cache.Stats{}, stats)
}

func TestRun_FailureIsolation(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	files := map[string]map[string]string{"1": {"bad.txt": "x", "good.txt": "y\nz"}}
	p := &registry.Pipeline{
		ID:       "isolation",
		Versions: []string{"1"},
		Sources:  []source.Source{memorySource("mem", files)},
		Routes: []*registry.Route{
			{
				ID:     "picky",
				Parser: linesParser,
				Resolver: func(ctx context.Context, rc registry.ResolveContext, seq stream.Seq) (any, error) {
					if rc.File().Name == "bad.txt" {
						return nil, errors.New("unexpected column count")
					}
					return joinResolver(ctx, rc, seq)
				},
			},
			{
				ID:     "panicky",
				Filter: filter.Name("bad.txt"),
				Parser: linesParser,
				Resolver: func(context.Context, registry.ResolveContext, stream.Seq) (any, error) {
					panic("index out of range")
				},
			},
			{ID: "broken-stream", Filter: filter.Name("good.txt"), Parser: failingParser, Resolver: joinResolver},
			{
				ID:         "lossy-transform",
				Filter:     filter.Name("good.txt"),
				Parser:     failingParser,
				Transforms: []registry.TransformFunc{dropErrors},
				Resolver:   joinResolver,
			},
			{ID: "steady", Parser: linesParser, Resolver: joinResolver},
		},
	}

	res := newEngine(t, p).Run(ctx, RunOptions{})

	routeErrs := res.ErrorsOfScope(result.ScopeRoute)
	require.Len(t, routeErrs, 4)
	byRoute := map[string]*result.RunError{}
	for _, e := range routeErrs {
		byRoute[e.RouteID] = e
	}
	assert.Contains(t, byRoute["picky"].Message, "unexpected column count")
	assert.Equal(t, "bad.txt", byRoute["picky"].File.Path)
	assert.Contains(t, byRoute["panicky"].Message, "panic while processing bad.txt")
	assert.Contains(t, byRoute["broken-stream"].Message, "malformed line 2")
	assert.Contains(t, byRoute["lossy-transform"].Message, "malformed line 2", "a parse error swallowed by a transform still fails the file")
	assert.Empty(t, res.OutputsOfRoute("lossy-transform"))

	assert.Len(t, res.OutputsOfRoute("steady"), 2)
	require.Len(t, res.OutputsOfRoute("picky"), 1)
	assert.Equal(t, "y,z", res.OutputsOfRoute("picky")[0].Value)
}

type flakyBackend struct {
	source.Backend
	failVersion string
}

func (f flakyBackend) ListFiles(ctx context.Context, version string) ([]model.FileIdentity, error) {
	if version == f.failVersion {
		return nil, errors.New("mirror unavailable")
	}
	return f.Backend.ListFiles(ctx, version)
}

func TestRun_VersionFailureContinues(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	rec := &event.Recorder{}
	backend := flakyBackend{
		Backend:     source.NewMemory(map[string]map[string]string{"1": {"a.txt": "x"}, "2": {"a.txt": "y"}}),
		failVersion: "1",
	}
	p := &registry.Pipeline{
		ID:        "versions",
		Versions:  []string{"1", "2"},
		Sources:   []source.Source{{ID: "flaky", Backend: backend}},
		Routes:    []*registry.Route{{ID: "join", Parser: linesParser, Resolver: joinResolver}},
		Observers: []registry.Observer{rec.Observe},
	}

	res := newEngine(t, p).Run(ctx, RunOptions{})

	require.Len(t, res.Errors, 1)
	assert.Equal(t, result.ScopeVersion, res.Errors[0].Scope)
	assert.Equal(t, "1", res.Errors[0].Version)
	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "y", res.Outputs[0].Value)
	assert.Len(t, rec.OfType(event.VersionEnd), 2)
	assert.Len(t, rec.OfType(event.Error), 1)
}

func TestRun_ArtifactValidation(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	var consumerSaw atomic.Value
	p := &registry.Pipeline{
		ID:       "schema",
		Versions: []string{"1"},
		Sources:  []source.Source{memorySource("mem", map[string]map[string]string{"1": {"a.txt": "x"}})},
		Routes: []*registry.Route{
			{
				ID:     "producer",
				Parser: linesParser,
				Emits:  []registry.ArtifactDecl{{Name: "names", Schema: cty.Map(cty.String)}},
				Resolver: func(_ context.Context, rc registry.ResolveContext, _ stream.Seq) (any, error) {
					_ = rc.EmitArtifact("names", []int{1, 2})
					_ = rc.EmitArtifact("undeclared", "x")
					return "produced", nil
				},
			},
			{
				ID:        "consumer",
				Parser:    linesParser,
				DependsOn: []string{"artifact:producer:names"},
				Resolver: func(_ context.Context, rc registry.ResolveContext, _ stream.Seq) (any, error) {
					_, ok := rc.GetArtifact("producer:names")
					consumerSaw.Store(ok)
					return nil, nil
				},
			},
		},
	}

	res := newEngine(t, p).Run(ctx, RunOptions{})

	artifactErrs := res.ErrorsOfScope(result.ScopeArtifact)
	require.Len(t, artifactErrs, 2)
	assert.Equal(t, "producer:names", artifactErrs[0].ArtifactID)
	assert.Contains(t, artifactErrs[1].Message, "does not declare artifact 'undeclared'")
	assert.Equal(t, false, consumerSaw.Load(), "rejected values are dropped")
	assert.Len(t, res.OutputsOfRoute("producer"), 1, "the resolver's output survives")
}

func TestRun_GlobalArtifactsCrossVersions(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		writerFirst bool
		concurrency int
	}{
		{name: "Success: reader declared first", concurrency: 1},
		{name: "Success: writer declared first", writerFirst: true, concurrency: 1},
		{name: "Success: reader declared first, parallel", concurrency: 4},
		{name: "Success: writer declared first, parallel", writerFirst: true, concurrency: 4},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctx := ctxlog.Discard(context.Background())

			var seen []string
			reader := &registry.Route{
				ID:     "reader",
				Parser: linesParser,
				Resolver: func(_ context.Context, rc registry.ResolveContext, _ stream.Seq) (any, error) {
					v, ok := registry.GetArtifact[string](rc, "writer:last")
					seen = append(seen, fmt.Sprintf("%s:%v:%s", rc.Version(), ok, v))
					return nil, nil
				},
			}
			writer := &registry.Route{
				ID:     "writer",
				Parser: linesParser,
				Emits:  []registry.ArtifactDecl{{Name: "last", Scope: registry.ScopeGlobal, Schema: cty.String}},
				Resolver: func(_ context.Context, rc registry.ResolveContext, _ stream.Seq) (any, error) {
					return nil, rc.EmitArtifact("last", "from "+rc.Version())
				},
			}
			routes := []*registry.Route{reader, writer}
			if tc.writerFirst {
				routes = []*registry.Route{writer, reader}
			}

			p := &registry.Pipeline{
				ID:          "global",
				Versions:    []string{"1", "2", "3"},
				Sources:     []source.Source{memorySource("mem", map[string]map[string]string{"1": {"a.txt": "x"}, "2": {"a.txt": "y"}, "3": {"a.txt": "z"}})},
				Concurrency: tc.concurrency,
				Routes:      routes,
			}

			res := newEngine(t, p).Run(ctx, RunOptions{})
			require.Empty(t, res.Errors)
			assert.Equal(t, []string{"1:false:", "2:true:from 1", "3:true:from 2"}, seen)
		})
	}
}

func TestRun_GlobalArtifactsFollowLayers(t *testing.T) {
	t.Parallel()
	ctx := ctxlog.Discard(context.Background())

	var seen []string
	p := &registry.Pipeline{
		ID:          "global-layers",
		Versions:    []string{"1", "2"},
		Sources:     []source.Source{memorySource("mem", map[string]map[string]string{"1": {"a.txt": "x"}, "2": {"a.txt": "y"}})},
		Concurrency: 4,
		Routes: []*registry.Route{
			{
				ID:        "reader",
				Parser:    linesParser,
				DependsOn: []string{"artifact:writer:last"},
				Resolver: func(_ context.Context, rc registry.ResolveContext, _ stream.Seq) (any, error) {
					v, ok := registry.GetArtifact[string](rc, "writer:last")
					seen = append(seen, fmt.Sprintf("%s:%v:%s", rc.Version(), ok, v))
					return nil, nil
				},
			},
			{
				ID:     "writer",
				Parser: linesParser,
				Emits:  []registry.ArtifactDecl{{Name: "last", Scope: registry.ScopeGlobal, Schema: cty.String}},
				Resolver: func(_ context.Context, rc registry.ResolveContext, _ stream.Seq) (any, error) {
					return nil, rc.EmitArtifact("last", "from "+rc.Version())
				},
			},
		},
	}

	res := newEngine(t, p).Run(ctx, RunOptions{})
	require.Empty(t, res.Errors)
	assert.Equal(t, []string{"1:true:from 1", "2:true:from 2"}, seen)
}

func TestRun_Provenance(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	var observed, missing atomic.Int32
	p := &registry.Pipeline{
		ID:       "prov",
		Versions: []string{"1"},
		Sources: []source.Source{
			memorySource("a", map[string]map[string]string{"1": {"f.txt": "from a"}}),
			memorySource("b", map[string]map[string]string{"1": {"f.txt": "from b"}}),
		},
		Routes: twoPass([]string{"x", "y"}, &observed, &missing),
	}

	res := newEngine(t, p).Run(ctx, RunOptions{})
	require.Empty(t, res.Errors)
	g := res.Provenance

	fileID := provenance.FileID("1", "f.txt")
	provides := 0
	for _, e := range g.Edges() {
		if e.Kind == provenance.EdgeProvides {
			provides++
			assert.Equal(t, provenance.SourceID("b"), e.From, "the last source wins attribution")
			assert.Equal(t, fileID, e.To)
		}
	}
	assert.Equal(t, 1, provides)

	var matched []string
	for _, e := range g.EdgesFrom(fileID) {
		if e.Kind == provenance.EdgeMatched {
			matched = append(matched, e.To)
		}
	}
	assert.ElementsMatch(t, []string{provenance.RouteID("x"), provenance.RouteID("y")}, matched)

	xEdges := g.EdgesFrom(provenance.RouteID("x"))
	require.Len(t, xEdges, 1)
	assert.Equal(t, provenance.ArtifactID("1", "x:count"), xEdges[0].To)

	require.Len(t, g.NodesOfKind(provenance.NodeOutput), 1)
	yEdges := g.EdgesFrom(provenance.RouteID("y"))
	require.Len(t, yEdges, 1)
	assert.Equal(t, provenance.OutputID(0), yEdges[0].To)
}

func TestRun_ResolveContextClock(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	fixed := time.Date(2024, 9, 10, 12, 30, 0, 500_000_000, time.FixedZone("CEST", 2*3600))
	p := &registry.Pipeline{
		ID:       "clock",
		Versions: []string{"1"},
		Sources:  []source.Source{memorySource("mem", map[string]map[string]string{"1": {"a.txt": "x"}})},
		Routes: []*registry.Route{{
			ID:     "stamp",
			Parser: linesParser,
			Resolver: func(_ context.Context, rc registry.ResolveContext, _ stream.Seq) (any, error) {
				return rc.Now(), nil
			},
		}},
	}

	res := newEngine(t, p, WithClock(func() time.Time { return fixed })).Run(ctx, RunOptions{})
	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "2024-09-10T10:30:00.500Z", res.Outputs[0].Value)
}

func TestRun_VersionOverride(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	p := &registry.Pipeline{
		ID:       "override",
		Versions: []string{"1", "2"},
		Sources:  []source.Source{memorySource("mem", map[string]map[string]string{"1": {"a.txt": "x"}, "2": {"a.txt": "y"}})},
		Routes:   []*registry.Route{{ID: "join", Parser: linesParser, Resolver: joinResolver}},
	}

	res := newEngine(t, p).Run(ctx, RunOptions{Versions: []string{"2"}})
	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "y", res.Outputs[0].Value)
	assert.Equal(t, 1, res.Summary.Versions)
}

func TestNew_InvalidPipeline(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())

	t.Run("cycle", func(t *testing.T) {
		p := &registry.Pipeline{
			ID:       "cyclic",
			Versions: []string{"1"},
			Routes: []*registry.Route{
				{ID: "a", DependsOn: []string{"route:b"}, Parser: linesParser, Resolver: joinResolver},
				{ID: "b", DependsOn: []string{"route:a"}, Parser: linesParser, Resolver: joinResolver},
			},
		}
		_, err := New(ctx, p)
		require.Error(t, err)
		assert.ErrorIs(t, err, dag.ErrCycle)
		var be *dag.BuildError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, []string{"a", "b", "a"}, be.OfKind(dag.ErrCycle)[0].Cycle)
	})

	t.Run("declaration", func(t *testing.T) {
		_, err := New(ctx, &registry.Pipeline{ID: "empty"})
		assert.ErrorContains(t, err, "no versions declared")
	})
}

func TestRun_NormalizeEntries(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	p := &registry.Pipeline{
		ID:       "normalize",
		Versions: []string{"1"},
		Sources:  []source.Source{memorySource("mem", map[string]map[string]string{"1": {"a.txt": "2000\n10000\n0041"}})},
		Routes: []*registry.Route{{
			ID:     "entries",
			Parser: linesParser,
			Resolver: func(_ context.Context, rc registry.ResolveContext, seq stream.Seq) (any, error) {
				var entries []model.Entry
				for rec, err := range seq {
					if err != nil {
						return nil, err
					}
					entries = append(entries, model.Entry{CodePoint: rec.Value, Value: rec.Value})
				}
				return rc.NormalizeEntries(entries), nil
			},
		}},
	}

	res := newEngine(t, p).Run(ctx, RunOptions{})
	require.Len(t, res.Outputs, 1)
	entries := res.Outputs[0].Value.([]model.Entry)
	assert.Equal(t, []string{"0041", "10000", "2000"}, []string{entries[0].CodePoint, entries[1].CodePoint, entries[2].CodePoint})
}

func TestRun_LinkLogsDroppedEdges(t *testing.T) {
	t.Parallel()
	logs := &testutil.SafeBuffer{}
	ctx := testutil.LoggedContext(logs)

	r := &run{prov: provenance.New()}
	r.prov.AddNode(provenance.Node{ID: provenance.RouteID("x"), Kind: provenance.NodeRoute, Label: "x"})

	r.link(ctx, provenance.RouteID("x"), provenance.OutputID(1), provenance.EdgeResolved)

	assert.Empty(t, r.prov.Edges())
	assert.Contains(t, logs.String(), "Provenance edge dropped.")
	assert.Contains(t, logs.String(), "destination node not found: output:1")
}
