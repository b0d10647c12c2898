// Package adapter defines the contract for federated music sources
// and the health tracking that decides which of them get queried.
package adapter

import (
	"context"

	"github.com/tonearm/tonearm/internal/music"
)

// Adapter is a single upstream music source. Implementations either
// return results (possibly none) or an error; they never do both.
// Health bookkeeping lives outside the adapter so a misbehaving
// implementation cannot corrupt it.
type Adapter interface {
	// Name is the stable human-readable source name.
	Name() string
	// Kind reports what kind of sources this adapter yields.
	Kind() music.SourceKind
	// Search runs one query against the upstream source.
	Search(ctx context.Context, query string) ([]music.Source, error)
}

// StreamResolver is implemented by streaming adapters that resolve a
// playable URL on demand. Resolution is deliberately separate from
// search: stream URLs expire quickly, so they are fetched only when
// the user actually picks a stream result.
type StreamResolver interface {
	Adapter
	// ResolveStream exchanges an opaque track id for a playable URL.
	ResolveStream(ctx context.Context, trackID string) (string, error)
}
