// Package storage defines the sinks that persist emitted peak trees.
package storage

import (
	"context"
	"sync"

	"github.com/chrissnell/peaktree/internal/pipeline"
)

// TreeSink is implemented by every storage backend. StartStorageEngine
// returns the channel the backend consumes; closing it flushes the backend
// and releases the wait group.
type TreeSink interface {
	StartStorageEngine(context.Context, *sync.WaitGroup) chan<- pipeline.Result
}
