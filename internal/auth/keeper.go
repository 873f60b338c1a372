// Package auth implements the single-owner capability model guarding the
// administrative surface. The owner proves identity with a TOTP passcode and
// receives a short-lived capability token; every mutating admin operation
// requires a capability that is still live.
package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// ErrUnauthorized reports a missing, unknown, or expired capability, or a
// failed passcode check.
var ErrUnauthorized = errors.New("auth: unauthorized")

// DefaultTTL is the capability lifetime when none is configured.
const DefaultTTL = 15 * time.Minute

// Capability is an opaque admin token. The zero value never authorizes.
type Capability struct {
	Token string
}

// Keeper issues and verifies capabilities against the owner's TOTP secret.
type Keeper struct {
	mu     sync.Mutex
	secret string // base32 TOTP secret of the owner
	ttl    time.Duration
	issued map[string]time.Time // token -> expiry
	now    func() time.Time
}

// NewKeeper creates a keeper for the given base32 TOTP secret. ttl <= 0
// selects DefaultTTL.
func NewKeeper(secret string, ttl time.Duration) *Keeper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Keeper{
		secret: secret,
		ttl:    ttl,
		issued: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Issue validates the owner's TOTP passcode and returns a fresh capability.
func (k *Keeper) Issue(passcode string) (Capability, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	ok, err := totp.ValidateCustom(passcode, k.secret, k.now().UTC(), totp.ValidateOpts{
		Period: 30,
		Skew:   1,
		Digits: otp.DigitsSix,
	})
	if err != nil || !ok {
		return Capability{}, ErrUnauthorized
	}
	c := Capability{Token: uuid.NewString()}
	k.issued[c.Token] = k.now().Add(k.ttl)
	return c, nil
}

// Verify checks that the capability was issued here and has not expired.
func (k *Keeper) Verify(c Capability) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	expiry, ok := k.issued[c.Token]
	if !ok {
		return ErrUnauthorized
	}
	if k.now().After(expiry) {
		delete(k.issued, c.Token)
		return ErrUnauthorized
	}
	return nil
}

// Revoke invalidates a capability immediately.
func (k *Keeper) Revoke(c Capability) {
	k.mu.Lock()
	delete(k.issued, c.Token)
	k.mu.Unlock()
}
