package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestCreateUserSession_StoresAndSetsCookie(t *testing.T) {
	mr, _, svc := newTestSessions(t, DefaultSessionTTL)
	ctx := context.Background()
	jar := newFakeJar()

	user := &User{ID: "user-1", Role: RoleAdmin}
	if err := svc.CreateUserSession(ctx, user, jar); err != nil {
		t.Fatalf("CreateUserSession: %v", err)
	}

	cookie := jar.cookies[DefaultCookieName]
	if cookie == nil {
		t.Fatal("expected session cookie")
	}
	if len(cookie.Value) != sessionTokenBytes*2 {
		t.Errorf("expected %d hex chars, got %d", sessionTokenBytes*2, len(cookie.Value))
	}
	if !cookie.Secure || !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode || cookie.Path != "/" {
		t.Errorf("unexpected cookie attributes: %+v", cookie)
	}
	if cookie.MaxAge != int(DefaultSessionTTL.Seconds()) {
		t.Errorf("expected MaxAge %d, got %d", int(DefaultSessionTTL.Seconds()), cookie.MaxAge)
	}
	if want := svc.now().Add(DefaultSessionTTL); !cookie.Expires.Equal(want) {
		t.Errorf("expected Expires %v, got %v", want, cookie.Expires)
	}
	if ttl := mr.TTL(sessionKeyPrefix + cookie.Value); ttl != DefaultSessionTTL {
		t.Errorf("expected store TTL %v, got %v", DefaultSessionTTL, ttl)
	}

	got, err := svc.GetUserFromSession(ctx, jar)
	if err != nil {
		t.Fatalf("GetUserFromSession: %v", err)
	}
	if got == nil || got.ID != "user-1" || got.Role != RoleAdmin {
		t.Errorf("expected admin session for user-1, got %+v", got)
	}
}

func TestCreateUserSession_FreshTokenEachTime(t *testing.T) {
	_, _, svc := newTestSessions(t, time.Hour)
	user := &User{ID: "u", Role: RoleMod}

	a, b := newFakeJar(), newFakeJar()
	_ = svc.CreateUserSession(context.Background(), user, a)
	_ = svc.CreateUserSession(context.Background(), user, b)

	if a.cookies[DefaultCookieName].Value == b.cookies[DefaultCookieName].Value {
		t.Error("expected distinct tokens per session")
	}
}

func TestCreateUserSession_RejectsUnprivileged(t *testing.T) {
	_, _, svc := newTestSessions(t, time.Hour)
	jar := newFakeJar()

	err := svc.CreateUserSession(context.Background(), &User{ID: "u"}, jar)
	if !errors.Is(err, ErrUnprivilegedSession) {
		t.Fatalf("expected ErrUnprivilegedSession, got %v", err)
	}
	if _, ok := jar.cookies[DefaultCookieName]; ok {
		t.Error("expected no cookie for rejected session")
	}
}

func TestCreateUserSession_StoreFailureSetsNoCookie(t *testing.T) {
	mr, _, svc := newTestSessions(t, time.Hour)
	mr.Close()
	jar := newFakeJar()

	if err := svc.CreateUserSession(context.Background(), &User{ID: "u", Role: RoleAdmin}, jar); err == nil {
		t.Fatal("expected error when store is down")
	}
	if _, ok := jar.cookies[DefaultCookieName]; ok {
		t.Error("expected no cookie when the store write failed")
	}
}

func TestCreateUserSession_InsecureOption(t *testing.T) {
	_, rdb := newTestRedis(t)
	svc := NewSessionService(NewRedisSessionStore(rdb), SessionOptions{Insecure: true, CookieName: "dev_session"})
	jar := newFakeJar()

	if err := svc.CreateUserSession(context.Background(), &User{ID: "u", Role: RoleMod}, jar); err != nil {
		t.Fatal(err)
	}
	cookie := jar.cookies["dev_session"]
	if cookie == nil || cookie.Secure {
		t.Errorf("expected non-Secure cookie named dev_session, got %+v", cookie)
	}
}

func TestGetUserFromSession_NoCookie(t *testing.T) {
	_, _, svc := newTestSessions(t, time.Hour)

	got, err := svc.GetUserFromSession(context.Background(), newFakeJar())
	if got != nil || err != nil {
		t.Errorf("expected (nil, nil), got (%+v, %v)", got, err)
	}
}

func TestGetUserFromSession_TamperedRecord(t *testing.T) {
	mr, _, svc := newTestSessions(t, time.Hour)
	jar := newFakeJar()
	jar.Set(&http.Cookie{Name: DefaultCookieName, Value: "tok"})
	_ = mr.Set(sessionKeyPrefix+"tok", `{"id":"u","role":"root"}`)

	got, err := svc.GetUserFromSession(context.Background(), jar)
	if got != nil || err != nil {
		t.Errorf("expected (nil, nil) for tampered record, got (%+v, %v)", got, err)
	}
}

func TestUpdateUserSessionExpiration_SlidesWindow(t *testing.T) {
	ttl := time.Hour
	mr, _, svc := newTestSessions(t, ttl)
	ctx := context.Background()
	jar := newFakeJar()

	_ = svc.CreateUserSession(ctx, &User{ID: "u", Role: RoleMod}, jar)
	token := jar.cookies[DefaultCookieName].Value

	// Keep the session alive past its original window with regular use.
	for i := 0; i < 3; i++ {
		mr.FastForward(40 * time.Minute)
		if err := svc.UpdateUserSessionExpiration(ctx, jar); err != nil {
			t.Fatalf("renewal %d: %v", i+1, err)
		}
		if got := mr.TTL(sessionKeyPrefix + token); got != ttl {
			t.Fatalf("renewal %d: expected TTL reset to %v, got %v", i+1, ttl, got)
		}
	}

	if got, _ := svc.GetUserFromSession(ctx, jar); got == nil {
		t.Fatal("expected session to survive with regular renewal")
	}

	// Untouched for longer than the window: gone.
	mr.FastForward(ttl + time.Second)
	if got, err := svc.GetUserFromSession(ctx, jar); got != nil || err != nil {
		t.Errorf("expected expired session to be absent, got (%+v, %v)", got, err)
	}
}

func TestUpdateUserSessionExpiration_RefreshesCookie(t *testing.T) {
	_, _, svc := newTestSessions(t, time.Hour)
	ctx := context.Background()
	jar := newFakeJar()
	_ = svc.CreateUserSession(ctx, &User{ID: "u", Role: RoleAdmin}, jar)
	token := jar.cookies[DefaultCookieName].Value

	later := svc.now().Add(30 * time.Minute)
	svc.now = func() time.Time { return later }
	if err := svc.UpdateUserSessionExpiration(ctx, jar); err != nil {
		t.Fatal(err)
	}

	cookie := jar.cookies[DefaultCookieName]
	if cookie.Value != token {
		t.Error("renewal must not rotate the token")
	}
	if !cookie.Expires.Equal(later.Add(time.Hour)) {
		t.Errorf("expected cookie expiry pushed to %v, got %v", later.Add(time.Hour), cookie.Expires)
	}
}

func TestUpdateUserSessionExpiration_DoesNotResurrect(t *testing.T) {
	mr, _, svc := newTestSessions(t, time.Hour)
	ctx := context.Background()
	jar := newFakeJar()
	jar.Set(&http.Cookie{Name: DefaultCookieName, Value: "gone"})

	if err := svc.UpdateUserSessionExpiration(ctx, jar); err != nil {
		t.Fatalf("expected no error for missing session, got %v", err)
	}
	if mr.Exists(sessionKeyPrefix + "gone") {
		t.Error("renewal must not create a session that does not exist")
	}
}

// logoutDuringRenewal deletes the session right after it has been read,
// as a concurrent logout request would.
type logoutDuringRenewal struct {
	SessionStore
}

func (s logoutDuringRenewal) Get(ctx context.Context, id string) (*UserSession, error) {
	session, err := s.SessionStore.Get(ctx, id)
	if err == nil {
		_ = s.SessionStore.Delete(ctx, id)
	}
	return session, err
}

func TestUpdateUserSessionExpiration_ConcurrentLogoutStaysRevoked(t *testing.T) {
	mr, store, svc := newTestSessions(t, time.Hour)
	ctx := context.Background()
	jar := newFakeJar()
	_ = svc.CreateUserSession(ctx, &User{ID: "u1", Role: RoleAdmin}, jar)
	token := jar.cookies[DefaultCookieName].Value
	issued := jar.cookies[DefaultCookieName]

	svc.store = logoutDuringRenewal{SessionStore: store}
	if err := svc.UpdateUserSessionExpiration(ctx, jar); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mr.Exists(sessionKeyPrefix + token) {
		t.Error("renewal must not recreate a session deleted mid-flight")
	}
	if jar.cookies[DefaultCookieName] != issued {
		t.Error("renewal must not re-issue the cookie for a revoked session")
	}
}

func TestUpdateUserSessionExpiration_KeepsIssuedRole(t *testing.T) {
	mr, store, svc := newTestSessions(t, time.Hour)
	ctx := context.Background()
	jar := newFakeJar()
	_ = svc.CreateUserSession(ctx, &User{ID: "u", Role: RoleMod}, jar)
	token := jar.cookies[DefaultCookieName].Value

	mr.FastForward(time.Minute)
	_ = svc.UpdateUserSessionExpiration(ctx, jar)

	got, _ := store.Get(ctx, token)
	if got == nil || got.Role != RoleMod {
		t.Errorf("expected role captured at sign-in, got %+v", got)
	}
}

func TestRemoveUserFromSession_Idempotent(t *testing.T) {
	mr, _, svc := newTestSessions(t, time.Hour)
	ctx := context.Background()
	jar := newFakeJar()
	_ = svc.CreateUserSession(ctx, &User{ID: "u", Role: RoleAdmin}, jar)
	token := jar.cookies[DefaultCookieName].Value

	if err := svc.RemoveUserFromSession(ctx, jar); err != nil {
		t.Fatalf("first removal: %v", err)
	}
	if mr.Exists(sessionKeyPrefix + token) {
		t.Error("expected session deleted from store")
	}
	if jar.cookies[DefaultCookieName].MaxAge >= 0 {
		t.Error("expected cookie cleared")
	}

	if err := svc.RemoveUserFromSession(ctx, jar); err != nil {
		t.Errorf("second removal should be a no-op, got %v", err)
	}
}

func TestRemoveUserFromSession_ClearsCookieWhenStoreDown(t *testing.T) {
	mr, _, svc := newTestSessions(t, time.Hour)
	jar := newFakeJar()
	jar.Set(&http.Cookie{Name: DefaultCookieName, Value: "tok"})
	mr.Close()

	if err := svc.RemoveUserFromSession(context.Background(), jar); err == nil {
		t.Error("expected store error to be reported")
	}
	if _, ok := jar.Get(DefaultCookieName); ok {
		t.Error("expected cookie cleared even when the store is down")
	}
}
