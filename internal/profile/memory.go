package profile

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
)

// MemoryStore implements in-memory profile storage.
//
// Suitable for tests and single-process use. Returned profiles are copies.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]*Profile
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*Profile),
		now:      time.Now,
	}
}

// Get retrieves a profile by user ID.
func (m *MemoryStore) Get(ctx context.Context, userID string) (*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewTransportError(errors.ErrCodeProfileTransport, "fetch profile", err)
	}
	if userID == "" {
		return nil, errors.New(errors.ErrCodeProfileInvalid, "user ID cannot be empty").WithKind(errors.KindInvalid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, errors.NewProfileNotFoundError(userID)
	}
	return p.Clone(), nil
}

// Merge applies a partial update, creating the profile when absent.
func (m *MemoryStore) Merge(ctx context.Context, userID string, u Update) error {
	if err := ctx.Err(); err != nil {
		return errors.NewTransportError(errors.ErrCodeProfileTransport, "merge profile", err)
	}
	if userID == "" {
		return errors.New(errors.ErrCodeProfileInvalid, "user ID cannot be empty").WithKind(errors.KindInvalid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	p, ok := m.profiles[userID]
	if !ok {
		p = &Profile{UserID: userID, CreatedAt: now, UpdatedAt: now}
		m.profiles[userID] = p
	}
	p.Apply(u, now)
	return nil
}

// Put saves a complete profile.
func (m *MemoryStore) Put(ctx context.Context, p *Profile) error {
	if err := ctx.Err(); err != nil {
		return errors.NewTransportError(errors.ErrCodeProfileTransport, "save profile", err)
	}
	if p == nil || p.UserID == "" {
		return errors.New(errors.ErrCodeProfileInvalid, "profile needs a user ID").WithKind(errors.KindInvalid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p.Clone()
	cp.TenantName = ""
	now := m.now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.profiles[cp.UserID] = cp
	return nil
}

// Count returns the number of stored profiles.
func (m *MemoryStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.profiles)
}
