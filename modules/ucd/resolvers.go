package ucd

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/vk/ucdpipe/internal/ctxlog"
	"github.com/vk/ucdpipe/internal/model"
	"github.com/vk/ucdpipe/internal/registry"
	"github.com/vk/ucdpipe/internal/stream"
)

// DefaultAliasArtifact is the artifact name the aliases resolver emits under
// unless the "artifact" option names another.
const DefaultAliasArtifact = "aliases"

// ResolveRaw turns every record into an entry and returns the normalized
// list as a single output.
func ResolveRaw(_ context.Context, rc registry.ResolveContext, in stream.Seq) (any, error) {
	var entries []model.Entry
	for rec, err := range in {
		if err != nil {
			return nil, err
		}
		entries = append(entries, toEntry(rec))
	}
	return rc.NormalizeEntries(entries), nil
}

func toEntry(r model.Record) model.Entry {
	e := model.Entry{
		Start:     r.Start,
		End:       r.End,
		CodePoint: r.CodePoint,
		Property:  r.Property,
		Value:     r.Value,
	}
	if r.Kind == model.KindSequence {
		e.CodePoint = r.FirstCodePoint()
		e.Value = map[string]any{"sequence": r.Sequence, "value": r.Value}
	}
	return e
}

// ResolvePropertyRanges merges point and range records carrying the same
// value into maximal contiguous ranges. Sequence and alias records are
// ignored. The result is a single normalized entry list.
func ResolvePropertyRanges(_ context.Context, rc registry.ResolveContext, in stream.Seq) (any, error) {
	type span struct {
		lo, hi   int64
		property string
		value    string
	}
	var spans []span
	for rec, err := range in {
		if err != nil {
			return nil, err
		}
		switch rec.Kind {
		case model.KindPoint:
			v := codePointValue(rec)
			spans = append(spans, span{lo: v, hi: v, property: rec.Property, value: rec.Value})
		case model.KindRange:
			lo := codePointValue(rec)
			hi, err := strconv.ParseInt(rec.End, 16, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid range end %q: %w", rec.End, err)
			}
			spans = append(spans, span{lo: lo, hi: hi, property: rec.Property, value: rec.Value})
		}
	}

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].lo < spans[j].lo })

	var merged []span
	for _, s := range spans {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if last.value == s.value && last.property == s.property && s.lo <= last.hi+1 {
				last.hi = max(last.hi, s.hi)
				continue
			}
		}
		merged = append(merged, s)
	}

	entries := make([]model.Entry, len(merged))
	for i, s := range merged {
		e := model.Entry{Property: s.property, Value: s.value}
		if s.lo == s.hi {
			e.CodePoint = formatCodePoint(s.lo)
		} else {
			e.Start, e.End = formatCodePoint(s.lo), formatCodePoint(s.hi)
		}
		entries[i] = e
	}
	return rc.NormalizeEntries(entries), nil
}

func formatCodePoint(v int64) string {
	return fmt.Sprintf("%04X", v)
}

// ResolveAliases collects alias records into a table keyed by
// "<property>:<name>", where every name of a row maps to the full list of
// that row's names. The table is returned and published as an artifact.
func ResolveAliases(ctx context.Context, rc registry.ResolveContext, in stream.Seq) (any, error) {
	table := make(map[string][]string)
	for rec, err := range in {
		if err != nil {
			return nil, err
		}
		if rec.Kind != model.KindAlias {
			continue
		}
		for _, name := range rec.Sequence {
			key := rec.Property + ":" + name
			if _, exists := table[key]; !exists {
				table[key] = append([]string(nil), rec.Sequence...)
			}
		}
	}

	name := registry.OptString(rc.Options(), "artifact", DefaultAliasArtifact)
	if err := rc.EmitArtifact(name, table); err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Alias table published.", "artifact", name, "keys", len(table))
	return table, nil
}

// ResolveAliasEnrich replaces the value of every code point record with the
// alias names found in the artifact named by the "aliases_from" option. The
// "property" option selects the alias property and defaults to the record's
// own property. Values without an alias are kept as they are.
func ResolveAliasEnrich(ctx context.Context, rc registry.ResolveContext, in stream.Seq) (any, error) {
	logger := ctxlog.FromContext(ctx)
	opts := rc.Options()
	from := registry.OptString(opts, "aliases_from", "")
	if from == "" {
		return nil, fmt.Errorf("option 'aliases_from' is required")
	}
	property := registry.OptString(opts, "property", "")

	raw, found := rc.GetArtifact(from)
	table, ok := aliasTable(raw)
	if found && !ok {
		return nil, fmt.Errorf("artifact '%s' has unexpected type %T", from, raw)
	}
	if !found {
		logger.Warn("Alias artifact not available; values are not enriched.", "artifact", from)
	}

	var entries []model.Entry
	for rec, err := range in {
		if err != nil {
			return nil, err
		}
		if rec.Kind == model.KindAlias {
			continue
		}
		e := toEntry(rec)
		prop := property
		if prop == "" {
			prop = rec.Property
		}
		if names, ok := table[prop+":"+rec.Value]; ok {
			e.Value = names
		}
		entries = append(entries, e)
	}
	return rc.NormalizeEntries(entries), nil
}

// aliasTable accepts the table as published, or in the generic shape it has
// after a round trip through a persistent cache.
func aliasTable(v any) (map[string][]string, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case map[string][]string:
		return t, true
	case map[string]any:
		out := make(map[string][]string, len(t))
		for k, raw := range t {
			list, ok := raw.([]any)
			if !ok {
				return nil, false
			}
			names := make([]string, 0, len(list))
			for _, n := range list {
				s, ok := n.(string)
				if !ok {
					return nil, false
				}
				names = append(names, s)
			}
			out[k] = names
		}
		return out, true
	default:
		return nil, false
	}
}
