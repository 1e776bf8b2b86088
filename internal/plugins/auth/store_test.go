package auth

import (
	"context"
	"testing"
	"time"
)

func TestRedisSessionStore_SetGetDelete(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisSessionStore(rdb)
	ctx := context.Background()

	want := UserSession{ID: "user-1", Role: RoleMod}
	if err := store.Set(ctx, "tok", want, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists(sessionKeyPrefix + "tok") {
		t.Fatal("expected key under session prefix")
	}

	got, err := store.Get(ctx, "tok")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || *got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	if err := store.Delete(ctx, "tok"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := store.Get(ctx, "tok"); got != nil {
		t.Errorf("expected nil after delete, got %+v", got)
	}
	if err := store.Delete(ctx, "tok"); err != nil {
		t.Errorf("deleting a missing key should not fail: %v", err)
	}
}

func TestRedisSessionStore_SetAlwaysCarriesTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisSessionStore(rdb)

	if err := store.Set(context.Background(), "tok", UserSession{ID: "u", Role: RoleAdmin}, 2*time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := mr.TTL(sessionKeyPrefix + "tok"); ttl != 2*time.Hour {
		t.Errorf("expected 2h TTL, got %v", ttl)
	}

	ttl, err := store.TTL(context.Background(), "tok")
	if err != nil || ttl != 2*time.Hour {
		t.Errorf("TTL() = %v, %v", ttl, err)
	}
	if ttl, _ := store.TTL(context.Background(), "missing"); ttl != 0 {
		t.Errorf("expected 0 for missing key, got %v", ttl)
	}
}

func TestRedisSessionStore_ExpiresAfterTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisSessionStore(rdb)
	ctx := context.Background()

	_ = store.Set(ctx, "tok", UserSession{ID: "u", Role: RoleAdmin}, time.Minute)
	mr.FastForward(time.Minute + time.Second)

	if got, err := store.Get(ctx, "tok"); got != nil || err != nil {
		t.Errorf("expected (nil, nil) after expiry, got (%+v, %v)", got, err)
	}
}

func TestRedisSessionStore_MalformedRecordsAreAbsent(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not json", "garbage{"},
		{"wrong id type", `{"id":42,"role":"admin"}`},
		{"missing id", `{"role":"admin"}`},
		{"unknown role", `{"id":"u","role":"superuser"}`},
		{"empty role", `{"id":"u","role":""}`},
		{"json array", `["u","admin"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr, rdb := newTestRedis(t)
			store := NewRedisSessionStore(rdb)
			if err := mr.Set(sessionKeyPrefix+"tok", tt.value); err != nil {
				t.Fatal(err)
			}

			got, err := store.Get(context.Background(), "tok")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != nil {
				t.Errorf("expected nil session, got %+v", got)
			}
		})
	}
}

func TestRedisSessionStore_RefusesInvalidSession(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewRedisSessionStore(rdb)

	if err := store.Set(context.Background(), "tok", UserSession{ID: "u", Role: RoleNone}, time.Hour); err == nil {
		t.Error("expected error storing a session without a privileged role")
	}
}

func TestRedisSessionStore_UnreachableIsError(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisSessionStore(rdb)
	mr.Close()

	if _, err := store.Get(context.Background(), "tok"); err == nil {
		t.Error("expected error when Redis is down")
	}
}

func TestRedisSessionStore_RefreshOnlyExistingKeys(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisSessionStore(rdb)
	ctx := context.Background()

	ok, err := store.Refresh(ctx, "missing", time.Hour)
	if err != nil || ok {
		t.Fatalf("expected (false, nil) for missing key, got (%v, %v)", ok, err)
	}
	if mr.Exists(sessionKeyPrefix + "missing") {
		t.Error("refresh must not create a key")
	}

	_ = store.Set(ctx, "tok", UserSession{ID: "u", Role: RoleMod}, time.Minute)
	ok, err = store.Refresh(ctx, "tok", 2*time.Hour)
	if err != nil || !ok {
		t.Fatalf("expected (true, nil), got (%v, %v)", ok, err)
	}
	if got := mr.TTL(sessionKeyPrefix + "tok"); got != 2*time.Hour {
		t.Errorf("expected TTL 2h, got %v", got)
	}
}
