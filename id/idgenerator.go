// Package id generates identifiers for frames, tasks, and recordings.
package id

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// Generator can generate IDs.
type Generator interface {
	Generate() string
}

// NewGenerator returns a generator that produces sequential, deterministic
// IDs.
func NewGenerator() Generator {
	return &sequentialGenerator{}
}

// NewParallelGenerator returns a generator that produces globally unique IDs.
// The IDs are not deterministic.
func NewParallelGenerator() Generator {
	return parallelGenerator{}
}

type sequentialGenerator struct {
	nextID atomic.Uint64
}

func (g *sequentialGenerator) Generate() string {
	return strconv.FormatUint(g.nextID.Add(1), 10)
}

type parallelGenerator struct{}

func (parallelGenerator) Generate() string {
	return xid.New().String()
}
