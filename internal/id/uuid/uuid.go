// Package uuid provides analysis ID generation.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// DefaultPrefix is prepended to every analysis ID.
const DefaultPrefix = "analysis_"

// Generator creates prefixed UUID v7 strings. v7 IDs sort by creation time.
type Generator struct {
	prefix string
}

// New creates a Generator using DefaultPrefix.
func New() *Generator {
	return &Generator{prefix: DefaultPrefix}
}

// NewWithPrefix creates a Generator with a custom prefix, which may be empty.
func NewWithPrefix(prefix string) *Generator {
	return &Generator{prefix: prefix}
}

// NewID returns a new prefixed UUID7 string.
func (g Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return g.prefix + id.String(), nil
}

// NewRequestID returns a random UUIDv4 for request correlation.
func NewRequestID() string {
	return uuid.NewString()
}
