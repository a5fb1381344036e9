// Package uuid generates record identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator implements monitor.IDGenerator with time-ordered UUIDv7 strings.
type Generator struct{}

// NewUUIDGenerator creates a new Generator.
func NewUUIDGenerator() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv7 string. Newer records sort after older ones.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// Valid reports whether s parses as a UUID. API handlers use it to reject
// malformed path parameters before touching storage.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
