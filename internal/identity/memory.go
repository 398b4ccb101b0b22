package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength matches Firebase's password rule.
const MinPasswordLength = 6

type account struct {
	uid  string
	hash []byte
}

// MemoryProvider is an offline identity backend with bcrypt-hashed
// passwords. It backs sample mode and tests.
type MemoryProvider struct {
	mu       sync.RWMutex
	accounts map[string]account
	user     *User
	notifier *notifier
	now      func() time.Time
	cost     int
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		accounts: make(map[string]account),
		notifier: newNotifier(),
		now:      time.Now,
		cost:     bcrypt.DefaultCost,
	}
}

// WithCost sets the bcrypt cost for passwords hashed from now on.
func (p *MemoryProvider) WithCost(cost int) *MemoryProvider {
	p.cost = cost
	return p
}

// Seed adds an account. An empty uid gets a generated one.
func (p *MemoryProvider) Seed(email, password, uid string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return err
	}
	if uid == "" {
		uid = uuid.NewString()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[normalizeEmail(email)] = account{uid: uid, hash: hash}
	return nil
}

func (p *MemoryProvider) SignIn(ctx context.Context, email, password string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email = normalizeEmail(email)

	p.mu.RLock()
	acct, ok := p.accounts[email]
	p.mu.RUnlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return p.signedIn(acct.uid, email), nil
}

func (p *MemoryProvider) SignUp(ctx context.Context, email, password string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if _, exists := p.accounts[email]; exists {
		p.mu.Unlock()
		return nil, ErrEmailInUse
	}
	uid := uuid.NewString()
	p.accounts[email] = account{uid: uid, hash: hash}
	p.mu.Unlock()

	return p.signedIn(uid, email), nil
}

func (p *MemoryProvider) SignOut(ctx context.Context) error {
	p.notifier.change(func() (*User, bool) {
		p.mu.Lock()
		defer p.mu.Unlock()
		had := p.user != nil
		p.user = nil
		return nil, had
	})
	return nil
}

func (p *MemoryProvider) Current() *User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyUser(p.user)
}

func (p *MemoryProvider) OnChange(fn func(*User)) func() {
	return p.notifier.subscribe(fn, p.Current)
}

func (p *MemoryProvider) IDToken(ctx context.Context) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.user == nil {
		return "", ErrNotSignedIn
	}
	return p.user.IDToken, nil
}

func (p *MemoryProvider) signedIn(uid, email string) *User {
	u := &User{
		UID:          uid,
		Email:        email,
		IDToken:      "sample-" + randomToken(),
		RefreshToken: randomToken(),
		ExpiresAt:    p.now().Add(time.Hour),
	}
	p.notifier.change(func() (*User, bool) {
		p.mu.Lock()
		defer p.mu.Unlock()
		changed := p.user == nil || p.user.UID != uid
		p.user = u
		return u, changed
	})
	return copyUser(u)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

var (
	_ Provider    = (*MemoryProvider)(nil)
	_ TokenSource = (*MemoryProvider)(nil)
)
