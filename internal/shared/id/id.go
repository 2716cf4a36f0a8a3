// Package id provides identifier generation for scripts and their host.
//
// Two formats are offered:
//   - UUID v4 strings for script-facing identifiers, filled from a fast
//     non-cryptographic source the same way userscripts build them
//   - Prefixed ULIDs for host-side execution tracking, lexicographically
//     sortable and readable in logs (exec_*)
package id

import (
	crand "crypto/rand"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ============================================================================
// UUID v4
// ============================================================================

const uuidTemplate = "xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx"

const hexDigits = "0123456789abcdef"

// UUIDGenerator fills the v4 template from a random source
type UUIDGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewUUIDGenerator creates a generator seeded from the runtime
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewUUIDGeneratorWithSource creates a generator over a fixed source
// Useful for testing with deterministic output
func NewUUIDGeneratorWithSource(src rand.Source) *UUIDGenerator {
	return &UUIDGenerator{rnd: rand.New(src)}
}

// Generate returns a new xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx string.
// y is masked into {8,9,a,b}.
func (g *UUIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var b strings.Builder
	b.Grow(len(uuidTemplate))
	for i := 0; i < len(uuidTemplate); i++ {
		c := uuidTemplate[i]
		switch c {
		case 'x':
			b.WriteByte(hexDigits[g.rnd.IntN(16)])
		case 'y':
			r := g.rnd.IntN(16)
			b.WriteByte(hexDigits[(r&0x3)|0x8])
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

var defaultUUID = NewUUIDGenerator()

// NewUUID generates a random version 4 UUID string
func NewUUID() string {
	return defaultUUID.Generate()
}

// IsValidUUID checks that s is a canonical version 4, RFC 4122 UUID
func IsValidUUID(s string) bool {
	if len(s) != len(uuidTemplate) || strings.ToLower(s) != s {
		return false
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return parsed.Version() == 4 && parsed.Variant() == uuid.RFC4122
}

// ============================================================================
// ULID execution ids
// ============================================================================

// ExecutionID identifies a single sandbox execution
type ExecutionID string

// ExecutionPrefix marks execution ids in logs
const ExecutionPrefix = "exec"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(crand.Reader, 0)
)

// NewExecutionID returns exec_<ULID>. Ids minted in the same millisecond
// still sort in creation order.
func NewExecutionID() ExecutionID {
	entropyMu.Lock()
	u := ulid.MustNew(ulid.Now(), entropy)
	entropyMu.Unlock()
	return ExecutionID(ExecutionPrefix + "_" + u.String())
}

func (id ExecutionID) String() string { return string(id) }

// Timestamp extracts the creation time of a prefixed or bare ULID
func Timestamp(id string) (time.Time, error) {
	if _, rest, ok := strings.Cut(id, "_"); ok {
		id = rest
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
