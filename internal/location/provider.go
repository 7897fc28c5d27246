package location

import (
	"errors"
	"sync"
	"time"

	"defendo-server/internal/models"
)

// ErrUnavailable means no usable location fix exists for the user. The
// caller is expected to have the client re-prompt for location permission
// and report a fresh fix.
var ErrUnavailable = errors.New("location unavailable")

// Provider supplies the current location of a user on demand
type Provider interface {
	Current(userID string) (*models.Location, error)
}

// Reporter accepts location fixes pushed by the mobile client
type Reporter interface {
	Report(userID string, loc models.Location)
}

// Store keeps the last reported fix per user. A fix older than maxAge is
// treated as unavailable rather than silently served stale: an SOS armed
// on a position from an hour ago would be worse than asking again.
type Store struct {
	mu     sync.RWMutex
	fixes  map[string]models.Location
	maxAge time.Duration
}

// NewStore creates a Store. A zero maxAge disables the freshness check.
func NewStore(maxAge time.Duration) *Store {
	return &Store{
		fixes:  make(map[string]models.Location),
		maxAge: maxAge,
	}
}

// Report records the latest fix for a user, stamping it if the client
// did not
func (s *Store) Report(userID string, loc models.Location) {
	if userID == "" {
		return
	}
	if loc.CapturedAt == 0 {
		loc.CapturedAt = time.Now().Unix()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixes[userID] = loc
}

// Current returns the last reported fix for a user, or ErrUnavailable when
// none exists or the last one is stale
func (s *Store) Current(userID string) (*models.Location, error) {
	s.mu.RLock()
	loc, ok := s.fixes[userID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrUnavailable
	}

	if s.maxAge > 0 {
		age := time.Since(time.Unix(loc.CapturedAt, 0))
		if age > s.maxAge {
			return nil, ErrUnavailable
		}
	}

	snapshot := loc
	return &snapshot, nil
}
