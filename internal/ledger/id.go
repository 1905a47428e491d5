package ledger

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"sync"
	"time"

	"spray_ledger/internal/domain"

	"github.com/oklog/ulid/v2"
)

// IDGenerator builds transaction ids as a type prefix followed by a
// 26 character ULID (Crockford base32, uppercase).
type IDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewIDGenerator creates a generator seeded from crypto/rand.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// New returns a fresh id for t.
func (g *IDGenerator) New(t domain.TransactionType) (string, error) {
	prefix, ok := t.Prefix()
	if !ok {
		return "", domain.Errorf(domain.ErrValidation, "invalid transaction type %q", t)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now()), g.entropy)
	if err != nil {
		return "", fmt.Errorf("generate ulid: %w", err)
	}
	return prefix + id.String(), nil
}

var idPattern = regexp.MustCompile(`^(EV|PR|SN|WD|FN)[A-Z0-9]{26}$`)

// ValidID reports whether id has the shape produced by IDGenerator.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}
