package identity

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func exerciseStore(t *testing.T, store RevocationStore) {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()
	revoked, err := store.IsRevoked(ctx, id)
	if err != nil || revoked {
		t.Fatalf("fresh id: revoked=%v err=%v", revoked, err)
	}
	if err := store.Revoke(ctx, id, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err = store.IsRevoked(ctx, id)
	if err != nil || !revoked {
		t.Fatalf("after revoke: revoked=%v err=%v", revoked, err)
	}
}

func TestMemoryRevocations(t *testing.T) {
	exerciseStore(t, NewMemoryRevocations())
}

func TestMemoryRevocationsPrunesExpired(t *testing.T) {
	s := NewMemoryRevocations()
	ctx := context.Background()
	_ = s.Revoke(ctx, "old", time.Now().Add(-time.Minute))
	_ = s.Revoke(ctx, "new", time.Now().Add(time.Minute))
	if revoked, _ := s.IsRevoked(ctx, "old"); revoked {
		t.Fatalf("expired entry should be pruned")
	}
}

func TestRedisRevocations(t *testing.T) {
	url := os.Getenv("BIDLINE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("BIDLINE_TEST_REDIS_URL not set")
	}
	client, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	store := NewRedisRevocations(client)
	t.Cleanup(func() { store.Close() })
	if err := store.Ping(context.Background()); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	exerciseStore(t, store)
}

func TestConnectParsesURL(t *testing.T) {
	client, err := Connect(context.Background(), "redis://localhost:6390/2")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	if opts := client.Options(); opts.Addr != "localhost:6390" || opts.DB != 2 {
		t.Fatalf("unexpected options %s db=%d", opts.Addr, opts.DB)
	}
	plain, err := Connect(context.Background(), "cache:6379")
	if err != nil {
		t.Fatal(err)
	}
	defer plain.Close()
	if plain.Options().Addr != "cache:6379" {
		t.Fatalf("unexpected addr %s", plain.Options().Addr)
	}
}
