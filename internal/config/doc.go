// Package config defines the format-agnostic pipeline declaration model and
// the Loader interface that fills it.
//
// The config.Model only carries names and plain values: which parser,
// transforms, and resolver a route uses are strings that the application
// binds to registered Go handlers. Concrete loaders, such as the HCL one,
// live in separate packages.
package config
