package registry

import (
	"fmt"
	"log/slog"
	"sort"
)

// Module is the interface that all handler modules must implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the named handlers available to pipeline declarations.
type Registry struct {
	parsers    map[string]ParserFunc
	transforms map[string]TransformFunc
	resolvers  map[string]ResolverFunc
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		parsers:    make(map[string]ParserFunc),
		transforms: make(map[string]TransformFunc),
		resolvers:  make(map[string]ResolverFunc),
	}
}

// RegisterParser adds a parser. It panics if the name is already taken.
func (r *Registry) RegisterParser(name string, fn ParserFunc) {
	if _, exists := r.parsers[name]; exists {
		panic(fmt.Sprintf("parser with name '%s' already registered", name))
	}
	slog.Debug("Registering parser", "name", name)
	r.parsers[name] = fn
}

// RegisterTransform adds a transform. It panics if the name is already taken.
func (r *Registry) RegisterTransform(name string, fn TransformFunc) {
	if _, exists := r.transforms[name]; exists {
		panic(fmt.Sprintf("transform with name '%s' already registered", name))
	}
	slog.Debug("Registering transform", "name", name)
	r.transforms[name] = fn
}

// RegisterResolver adds a resolver. It panics if the name is already taken.
func (r *Registry) RegisterResolver(name string, fn ResolverFunc) {
	if _, exists := r.resolvers[name]; exists {
		panic(fmt.Sprintf("resolver with name '%s' already registered", name))
	}
	slog.Debug("Registering resolver", "name", name)
	r.resolvers[name] = fn
}

// Parser looks up a parser by name.
func (r *Registry) Parser(name string) (ParserFunc, bool) {
	fn, ok := r.parsers[name]
	return fn, ok
}

// Transform looks up a transform by name.
func (r *Registry) Transform(name string) (TransformFunc, bool) {
	fn, ok := r.transforms[name]
	return fn, ok
}

// Resolver looks up a resolver by name.
func (r *Registry) Resolver(name string) (ResolverFunc, bool) {
	fn, ok := r.resolvers[name]
	return fn, ok
}

// Names lists the registered handler names per kind, sorted.
func (r *Registry) Names() (parsers, transforms, resolvers []string) {
	return sortedKeys(r.parsers), sortedKeys(r.transforms), sortedKeys(r.resolvers)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
