package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"sharedauth/pkg/platform/sentinel"
)

const defaultLedgerTTL = time.Hour

// Rotation is what a refresh token was exchanged for. A zero ExpiresAt means
// the access token carries no expiry.
type Rotation struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	RotatedAt    time.Time `json:"rotatedAt"`
}

func (r *Rotation) liveAt(now time.Time) bool {
	return r.ExpiresAt.IsZero() || now.Before(r.ExpiresAt)
}

// RotationLedger remembers old→new refresh token exchanges so a retried or
// concurrent refresh with an already-rotated token can be answered locally.
// Lookup returns sentinel.ErrNotFound for an unknown or expired token.
type RotationLedger interface {
	Lookup(ctx context.Context, oldRefreshToken string) (*Rotation, error)
	Record(ctx context.Context, oldRefreshToken string, rotation Rotation) error
}

func ledgerKey(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return hex.EncodeToString(sum[:])
}

type ledgerEntry struct {
	rotation  Rotation
	expiresAt time.Time
}

// MemoryRotationLedger keeps rotations in process for ttl.
type MemoryRotationLedger struct {
	mu      sync.Mutex
	entries map[string]ledgerEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryRotationLedger builds a ledger whose entries expire after ttl
// (one hour when ttl is not positive).
func NewMemoryRotationLedger(ttl time.Duration) *MemoryRotationLedger {
	if ttl <= 0 {
		ttl = defaultLedgerTTL
	}
	return &MemoryRotationLedger{
		entries: make(map[string]ledgerEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (l *MemoryRotationLedger) Lookup(_ context.Context, oldRefreshToken string) (*Rotation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey(oldRefreshToken)
	e, ok := l.entries[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !l.now().Before(e.expiresAt) {
		delete(l.entries, key)
		return nil, sentinel.ErrNotFound
	}
	r := e.rotation
	return &r, nil
}

func (l *MemoryRotationLedger) Record(_ context.Context, oldRefreshToken string, rotation Rotation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for k, e := range l.entries {
		if !now.Before(e.expiresAt) {
			delete(l.entries, k)
		}
	}
	l.entries[ledgerKey(oldRefreshToken)] = ledgerEntry{rotation: rotation, expiresAt: now.Add(l.ttl)}
	return nil
}

// Len reports the number of live entries.
func (l *MemoryRotationLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
