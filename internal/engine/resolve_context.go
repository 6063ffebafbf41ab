package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/ucdpipe/internal/cache"
	"github.com/vk/ucdpipe/internal/dag"
	"github.com/vk/ucdpipe/internal/depref"
	"github.com/vk/ucdpipe/internal/event"
	"github.com/vk/ucdpipe/internal/model"
	"github.com/vk/ucdpipe/internal/provenance"
	"github.com/vk/ucdpipe/internal/registry"
	"github.com/vk/ucdpipe/internal/result"
)

// resolveContext implements registry.ResolveContext for one (route, file)
// processing unit. route and node are nil for the fallback handler.
type resolveContext struct {
	ctx     context.Context
	v       *versionRun
	route   *registry.Route
	node    *dag.RouteNode
	file    model.FileIdentity
	options map[string]any

	mu      sync.Mutex
	emitted []cache.Artifact
}

var _ registry.ResolveContext = (*resolveContext)(nil)

func (rc *resolveContext) Version() string          { return rc.v.version }
func (rc *resolveContext) File() model.FileIdentity { return rc.file }
func (rc *resolveContext) Options() map[string]any  { return rc.options }

func (rc *resolveContext) RouteID() string {
	if rc.route == nil {
		return ""
	}
	return rc.route.ID
}

func (rc *resolveContext) NormalizeEntries(entries []model.Entry) []model.Entry {
	return model.NormalizeEntries(entries)
}

func (rc *resolveContext) Now() string {
	return rc.v.engine.now().UTC().Format(isoLayout)
}

// GetArtifact returns an artifact only when its producer runs in an earlier
// layer than the caller. Global artifacts published by an earlier version
// are always visible; a same-version global value follows the layer rule.
func (rc *resolveContext) GetArtifact(key string) (any, bool) {
	producer, ok := rc.v.engine.graph.ArtifactProducer(key)
	if !ok {
		return nil, false
	}
	earlier := rc.node != nil && producer.Layer < rc.node.Layer
	if rc.node == nil {
		// The fallback sweep runs after every layer.
		earlier = true
	}

	if earlier {
		if v, ok := rc.v.artifacts.get(key); ok {
			return v.value, true
		}
		if v, ok := rc.v.global.get(key); ok {
			return v.value, true
		}
	}
	if v, ok := rc.v.prior.get(key); ok {
		return v.value, true
	}
	return nil, false
}

// EmitArtifact validates and publishes an artifact. Rejected values are
// recorded as artifact errors and dropped.
func (rc *resolveContext) EmitArtifact(name string, value any) error {
	if rc.route == nil {
		err := fmt.Errorf("the fallback handler cannot emit artifacts")
		rc.v.fail(rc.ctx, &result.RunError{
			Scope:      result.ScopeArtifact,
			Message:    err.Error(),
			File:       &rc.file,
			ArtifactID: name,
			Version:    rc.v.version,
		})
		return err
	}

	key := depref.ArtifactKey(rc.route.ID, name)
	decl, ok := rc.route.Artifact(name)
	var err error
	if !ok {
		err = fmt.Errorf("route '%s' does not declare artifact '%s'", rc.route.ID, name)
	} else {
		err = decl.Validate(value)
	}
	if err != nil {
		rc.v.fail(rc.ctx, &result.RunError{
			Scope:      result.ScopeArtifact,
			Message:    err.Error(),
			Cause:      err,
			File:       &rc.file,
			RouteID:    rc.route.ID,
			ArtifactID: key,
			Version:    rc.v.version,
		})
		return err
	}

	rc.v.publish(rc.ctx, rc.route, rc.node, decl, value)

	rc.mu.Lock()
	rc.emitted = append(rc.emitted, cache.Artifact{Name: name, Value: value})
	rc.mu.Unlock()
	return nil
}

// publish stores an artifact in the table of its scope and records it.
func (v *versionRun) publish(ctx context.Context, route *registry.Route, node *dag.RouteNode, decl registry.ArtifactDecl, value any) {
	key := depref.ArtifactKey(route.ID, decl.Name)
	table := v.artifacts
	if decl.Scope == registry.ScopeGlobal {
		table = v.global
	}
	table.put(key, artifactValue{value: value, version: v.version, layer: node.Layer})

	artifactID := provenance.ArtifactID(v.version, key)
	v.prov.AddNode(provenance.Node{ID: artifactID, Kind: provenance.NodeArtifact, Label: key})
	v.link(ctx, provenance.RouteID(route.ID), artifactID, provenance.EdgeResolved)

	v.emit(ctx, event.Event{Type: event.ArtifactEmit, Version: v.version, RouteID: route.ID, ArtifactKey: key})
}
