package session

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	got, err := store.Get(ctx, 42)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if got.Status() != StatusLoggedOut || got.ChatID != 42 {
		t.Fatalf("default session = %#v", got)
	}

	want := Session{ChatID: 42, State: LoggedIn{InstallationID: "inst", CountryCode: "US"}}
	if err := store.Set(ctx, want); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err = store.Get(ctx, 42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != want {
		t.Fatalf("got %#v, want %#v", got, want)
	}

	bad := Session{ChatID: 42, State: LoggedIn{InstallationID: "inst"}}
	if err := store.Set(ctx, bad); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("set partial: err = %v", err)
	}
	got, _ = store.Get(ctx, 42)
	if got != want {
		t.Fatalf("partial write leaked: %#v", got)
	}

	if err := store.Delete(ctx, 42); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, 42); err != nil {
		t.Fatalf("delete twice: %v", err)
	}
	got, _ = store.Get(ctx, 42)
	if got.Status() != StatusLoggedOut {
		t.Fatalf("after delete status = %s", got.Status())
	}

	if _, err := store.Get(ctx, 0); !errors.Is(err, ErrInvalidChatID) {
		t.Fatalf("zero chat id: err = %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, "test:", 0)
	exerciseStore(t, store)
}

func TestRedisStoreTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, "", time.Hour)
	ctx := context.Background()
	if err := store.Set(ctx, Session{ChatID: 5, State: AwaitingPhoneNo{}}); err != nil {
		t.Fatalf("set: %v", err)
	}
	key := defaultKeyPrefix + "5"
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Fatalf("ttl = %v, want 1h", ttl)
	}
	mr.FastForward(2 * time.Hour)
	got, err := store.Get(ctx, 5)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status() != StatusLoggedOut {
		t.Fatalf("expired session status = %s", got.Status())
	}
}

func TestRedisStoreReadRefreshesTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, "", time.Hour)
	ctx := context.Background()
	want := Session{ChatID: 6, State: LoggedIn{InstallationID: "inst", CountryCode: "GB"}}
	if err := store.Set(ctx, want); err != nil {
		t.Fatalf("set: %v", err)
	}
	key := defaultKeyPrefix + "6"
	for i := 0; i < 3; i++ {
		mr.FastForward(40 * time.Minute)
		got, err := store.Get(ctx, 6)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if got.Status() != StatusLoggedIn {
			t.Fatalf("get %d: status = %s", i, got.Status())
		}
		if ttl := mr.TTL(key); ttl != time.Hour {
			t.Fatalf("get %d: ttl = %v, want 1h", i, ttl)
		}
	}
}

func TestRedisStoreReadWithoutTTLKeepsKeyPersistent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, "", 0)
	ctx := context.Background()
	if err := store.Set(ctx, Session{ChatID: 7, State: AwaitingPhoneNo{}}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := store.Get(ctx, 7); err != nil {
		t.Fatalf("get: %v", err)
	}
	if ttl := mr.TTL(defaultKeyPrefix + "7"); ttl != 0 {
		t.Fatalf("ttl = %v, want none", ttl)
	}
}

func TestPostgresStore(t *testing.T) {
	rawDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	db := sqlx.NewDb(rawDB, "postgres")
	t.Cleanup(func() { _ = db.Close() })
	store := NewPostgresStore(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(selectSessionSQL)).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"record"}))
	got, err := store.Get(ctx, 9)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if got.Status() != StatusLoggedOut {
		t.Fatalf("status = %s", got.Status())
	}

	mock.ExpectExec(regexp.QuoteMeta(upsertSessionSQL)).
		WithArgs(int64(9), "awaiting_country_code", `{"status":"awaiting_country_code","installationId":"abc"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Set(ctx, Session{ChatID: 9, State: AwaitingCountryCode{InstallationID: "abc"}}); err != nil {
		t.Fatalf("set: %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta(selectSessionSQL)).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"record"}).
			AddRow([]byte(`{"status":"awaiting_country_code","installationId":"abc"}`)))
	got, err = store.Get(ctx, 9)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st, ok := got.State.(AwaitingCountryCode); !ok || st.InstallationID != "abc" {
		t.Fatalf("state = %#v", got.State)
	}

	mock.ExpectExec(regexp.QuoteMeta(deleteSessionSQL)).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Delete(ctx, 9); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNewStoreDrivers(t *testing.T) {
	if _, err := NewStore("memory", Options{}); err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, err := NewStore("redis", Options{}); err == nil {
		t.Fatal("redis without client must fail")
	}
	if _, err := NewStore("postgres", Options{}); err == nil {
		t.Fatal("postgres without db must fail")
	}
	if _, err := NewStore("etcd", Options{}); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("unknown driver: err = %v", err)
	}
}
