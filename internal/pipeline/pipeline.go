// Package pipeline expresses spec.md §9's Source/Processor duck-typed
// protocol as explicit Go interfaces: a Source turns some external
// activity into newly known session IDs, a Processor does further work
// (chunking, embedding) over a batch of session IDs, and a Pipeline
// chains processors in sequence.
package pipeline

import (
	"context"
	"fmt"

	"github.com/ternarybob/memorybank/internal/storage"
)

// Source ingests activity into storage and returns the session IDs it
// created or touched.
type Source interface {
	Ingest(ctx context.Context, s *storage.Storage) ([]string, error)
}

// Processor does further work over a set of sessions already present
// in storage.
type Processor interface {
	Process(ctx context.Context, s *storage.Storage, sessionIDs []string) error
}

// Pipeline runs a Source, then feeds its session IDs through an ordered
// sequence of Processors.
type Pipeline struct {
	processors []Processor
}

// New builds a Pipeline from an ordered list of processors.
func New(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Run ingests via source, then runs every processor over the resulting
// session IDs in order. A processor's error aborts the run.
func (p *Pipeline) Run(ctx context.Context, s *storage.Storage, source Source) ([]string, error) {
	sessionIDs, err := source.Ingest(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("pipeline: ingest: %w", err)
	}
	if len(sessionIDs) == 0 {
		return sessionIDs, nil
	}
	for _, proc := range p.processors {
		if err := proc.Process(ctx, s, sessionIDs); err != nil {
			return sessionIDs, fmt.Errorf("pipeline: process: %w", err)
		}
	}
	return sessionIDs, nil
}
