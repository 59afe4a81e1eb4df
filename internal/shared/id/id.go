// Package id provides centralized ID generation for the bridge.
//
// IDs are prefixed ULIDs: lexicographically sortable, unique across the
// process, and readable in logs (instr_*, msg_*, conn_*).
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// InstructionID identifies an instruction within a session.
type InstructionID string

// MessageID identifies an envelope on the wire.
type MessageID string

// ConnID identifies a live websocket connection.
type ConnID string

const (
	InstructionPrefix = "instr"
	MessagePrefix     = "msg"
	ConnPrefix        = "conn"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source,
// useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewInstructionID generates a new instruction ID.
func NewInstructionID() InstructionID {
	return InstructionID(Default().GenerateWithPrefix(InstructionPrefix))
}

// NewMessageID generates a new message ID.
func NewMessageID() MessageID {
	return MessageID(Default().GenerateWithPrefix(MessagePrefix))
}

// NewConnID generates a new connection ID.
func NewConnID() ConnID {
	return ConnID(Default().GenerateWithPrefix(ConnPrefix))
}

func (id InstructionID) String() string { return string(id) }
func (id MessageID) String() string     { return string(id) }
func (id ConnID) String() string        { return string(id) }
