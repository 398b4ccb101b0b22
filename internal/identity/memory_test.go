package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newTestMemoryProvider() *MemoryProvider {
	return NewMemoryProvider().WithCost(bcrypt.MinCost)
}

func TestMemoryProvider_SignUpAndSignIn(t *testing.T) {
	p := newTestMemoryProvider()
	ctx := context.Background()

	created, err := p.SignUp(ctx, " Ana@RapidAid.dev ", "secret1")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if created.Email != "ana@rapidaid.dev" {
		t.Errorf("Expected normalized email, got %q", created.Email)
	}
	if created.LocalPart() != "ana" {
		t.Errorf("Expected local part 'ana', got %q", created.LocalPart())
	}

	if err := p.SignOut(ctx); err != nil {
		t.Fatal(err)
	}
	signedIn, err := p.SignIn(ctx, "ana@rapidaid.dev", "secret1")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if signedIn.UID != created.UID {
		t.Errorf("Expected same UID, got %q and %q", signedIn.UID, created.UID)
	}

	token, err := p.IDToken(ctx)
	if err != nil || token == "" {
		t.Errorf("Expected an id token, got %q (%v)", token, err)
	}
}

func TestMemoryProvider_Errors(t *testing.T) {
	p := newTestMemoryProvider()
	ctx := context.Background()
	if err := p.Seed("taken@rapidaid.dev", "secret1", "uid-1"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{"unknown user", func() error { _, err := p.SignIn(ctx, "nobody@rapidaid.dev", "x"); return err }, ErrUserNotFound},
		{"wrong password", func() error { _, err := p.SignIn(ctx, "taken@rapidaid.dev", "wrong"); return err }, ErrInvalidCredentials},
		{"email in use", func() error { _, err := p.SignUp(ctx, "TAKEN@rapidaid.dev", "secret1"); return err }, ErrEmailInUse},
		{"weak password", func() error { _, err := p.SignUp(ctx, "new@rapidaid.dev", "12345"); return err }, ErrWeakPassword},
		{"invalid email", func() error { _, err := p.SignUp(ctx, "not-an-email", "secret1"); return err }, ErrInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
	if p.Current() != nil {
		t.Error("Failed calls must not sign anyone in")
	}
	if _, err := p.IDToken(ctx); !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("Expected ErrNotSignedIn, got %v", err)
	}
}

func TestMemoryProvider_CanceledContext(t *testing.T) {
	p := newTestMemoryProvider()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.SignIn(ctx, "a@b.c", "secret1"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestMemoryProvider_CurrentIsACopy(t *testing.T) {
	p := newTestMemoryProvider()
	if err := p.Seed("a@b.c", "secret1", "uid-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SignIn(context.Background(), "a@b.c", "secret1"); err != nil {
		t.Fatal(err)
	}
	u := p.Current()
	u.UID = "mutated"
	if p.Current().UID != "uid-a" {
		t.Error("Current must return a copy")
	}
}

func notifyAll(n *notifier, u *User) {
	n.change(func() (*User, bool) { return u, true })
}

func TestNotifier_DeliversInOrder(t *testing.T) {
	n := newNotifier()
	got := make(chan string, 16)
	unsubscribe := n.subscribe(func(u *User) {
		if u == nil {
			got <- "-"
			return
		}
		got <- u.UID
	}, func() *User { return &User{UID: "initial"} })

	for _, uid := range []string{"a", "b", "c"} {
		notifyAll(n, &User{UID: uid})
	}
	notifyAll(n, nil)

	for _, want := range []string{"initial", "a", "b", "c", "-"} {
		select {
		case uid := <-got:
			if uid != want {
				t.Fatalf("Expected %q, got %q", want, uid)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	unsubscribe()
	unsubscribe()
	notifyAll(n, &User{UID: "late"})
	select {
	case uid := <-got:
		t.Errorf("Unexpected delivery after unsubscribe: %q", uid)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifier_SlowListenerDoesNotBlock(t *testing.T) {
	n := newNotifier()
	release := make(chan struct{})
	unsubscribe := n.subscribe(func(u *User) { <-release }, func() *User { return nil })
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			notifyAll(n, &User{UID: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notify blocked on a slow listener")
	}
	close(release)
}

func TestNotifier_SubscribeDuringChangeSeesFinalState(t *testing.T) {
	for i := 0; i < 200; i++ {
		n := newNotifier()
		var mu sync.Mutex
		var state *User
		current := func() *User {
			mu.Lock()
			defer mu.Unlock()
			return state
		}

		got := make(chan *User, 4)
		changed := make(chan struct{})
		go func() {
			n.change(func() (*User, bool) {
				mu.Lock()
				defer mu.Unlock()
				state = &User{UID: "signed-in"}
				return state, true
			})
			close(changed)
		}()
		unsubscribe := n.subscribe(func(u *User) { got <- u }, current)
		<-changed

		var last *User
		deadline := time.After(2 * time.Second)
	drain:
		for {
			select {
			case last = <-got:
				if last != nil {
					break drain
				}
			case <-deadline:
				break drain
			}
		}
		unsubscribe()
		if last == nil || last.UID != "signed-in" {
			t.Fatalf("iteration %d: listener never saw the sign-in", i)
		}
	}
}

func TestMemoryProvider_OnChangeAfterSignIn(t *testing.T) {
	p := newTestMemoryProvider()
	if err := p.Seed("a@b.c", "secret1", "uid-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SignIn(context.Background(), "a@b.c", "secret1"); err != nil {
		t.Fatal(err)
	}

	got := make(chan *User, 1)
	unsubscribe := p.OnChange(func(u *User) { got <- u })
	defer unsubscribe()

	select {
	case u := <-got:
		if u == nil || u.UID != "uid-a" {
			t.Errorf("Expected current user uid-a first, got %+v", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the current user")
	}
}

func TestUserContext(t *testing.T) {
	if _, ok := UserFromContext(context.Background()); ok {
		t.Error("Expected no user in empty context")
	}
	ctx := WithUser(context.Background(), &User{UID: "u1"})
	u, ok := UserFromContext(ctx)
	if !ok || u.UID != "u1" {
		t.Errorf("Expected user u1, got %+v", u)
	}
	if _, ok := UserFromContext(WithUser(context.Background(), nil)); ok {
		t.Error("Expected nil user to report absent")
	}
}
