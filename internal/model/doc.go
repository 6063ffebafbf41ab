// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model provides the Go representation of the data that flows
// through an ingestion run: the identity of an input file inside one corpus
// version, the records a parser produces from it, and the code point entries
// a resolver hands back.
//
// # Core Concepts
//
//   - FileIdentity: The immutable address of one input file within one
//     version. After source merging, Path is unique within a version.
//
//   - Record: One parsed row. Records are ephemeral; they only live for the
//     duration of a single (route, file) processing unit and are handed from
//     the parser, through the transform chain, to the resolver as a lazy
//     sequence.
//
//   - Entry: The common shape of resolver output that can be ordered by code
//     point. NormalizeEntries sorts entries the same way historical output
//     was ordered.
//
// Why a separate model package?
//
// Every other package (sources, routes, the engine, the cache) speaks in
// these types. Keeping them in a leaf package with no dependencies keeps the
// import graph acyclic and lets handler modules depend on the model without
// pulling in the engine.
package model
