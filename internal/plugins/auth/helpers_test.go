package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/pagecraft/pagecraft/internal/apperror"
)

// --- Mock Repository ---

// mockUserRepo implements UserRepository for testing.
type mockUserRepo struct {
	createFn      func(ctx context.Context, user *User) error
	findByIDFn    func(ctx context.Context, id string) (*User, error)
	findByEmailFn func(ctx context.Context, email string) (*User, error)
	emailExistsFn func(ctx context.Context, email string) (bool, error)
}

func (m *mockUserRepo) Create(ctx context.Context, user *User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	if m.emailExistsFn != nil {
		return m.emailExistsFn(ctx, email)
	}
	return false, nil
}

// --- Mock Hasher ---

// mockHasher implements PasswordHasher with overridable behavior. Unset
// functions fall through to a fast real bcrypt hasher.
type mockHasher struct {
	hashFn   func(password string) (string, error)
	verifyFn func(password, hash string) (bool, error)
}

func (m *mockHasher) Hash(password string) (string, error) {
	if m.hashFn != nil {
		return m.hashFn(password)
	}
	return testHasher().Hash(password)
}

func (m *mockHasher) Verify(password, hash string) (bool, error) {
	if m.verifyFn != nil {
		return m.verifyFn(password, hash)
	}
	return testHasher().Verify(password, hash)
}

func (m *mockHasher) IsTooLong(password string) bool {
	return testHasher().IsTooLong(password)
}

// testHasher uses the minimum bcrypt cost so tests stay fast.
func testHasher() *BcryptHasher {
	return NewBcryptHasher(bcrypt.MinCost)
}

// --- Fake cookie jar ---

// fakeJar is an in-memory CookieJar. Cookies written through it are
// visible to later reads, like a browser replaying them.
type fakeJar struct {
	cookies map[string]*http.Cookie
}

func newFakeJar() *fakeJar {
	return &fakeJar{cookies: make(map[string]*http.Cookie)}
}

func (j *fakeJar) Get(name string) (string, bool) {
	c, ok := j.cookies[name]
	if !ok || c.Value == "" || c.MaxAge < 0 {
		return "", false
	}
	return c.Value, true
}

func (j *fakeJar) Set(cookie *http.Cookie) {
	j.cookies[cookie.Name] = cookie
}

func (j *fakeJar) Delete(name string) {
	j.cookies[name] = &http.Cookie{Name: name, MaxAge: -1}
}

// --- Redis ---

// newTestRedis starts an in-process Redis and returns the server and a
// client connected to it.
func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

// newTestSessions returns a session service over miniredis with a fixed
// clock.
func newTestSessions(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, SessionStore, *sessionService) {
	t.Helper()
	mr, rdb := newTestRedis(t)
	store := NewRedisSessionStore(rdb)
	svc := NewSessionService(store, SessionOptions{TTL: ttl}).(*sessionService)
	svc.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	return mr, store, svc
}
