package engine_test

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"bidline/internal/db"
	"bidline/internal/domain"
	"bidline/internal/engine"
	"bidline/internal/repo"
)

// newPostgresEnv runs the engine against a throwaway schema on the server
// named by BIDLINE_TEST_POSTGRES_DSN.
func newPostgresEnv(t *testing.T) testEnv {
	t.Helper()
	dsn := os.Getenv("BIDLINE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BIDLINE_TEST_POSTGRES_DSN not set")
	}
	admin, err := db.Open(db.Config{Driver: "postgres", DSN: dsn})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { admin.Close() })
	if err := admin.Ping(); err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	schema := fmt.Sprintf("bidline_test_%d", time.Now().UnixNano())
	if _, err := admin.Exec(`CREATE SCHEMA ` + schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		if _, err := admin.Exec(`DROP SCHEMA ` + schema + ` CASCADE`); err != nil {
			t.Errorf("drop schema: %v", err)
		}
	})
	conn, err := db.Open(db.Config{Driver: "postgres", DSN: withSearchPath(dsn, schema)})
	if err != nil {
		t.Fatalf("open schema: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return setupEnv(t, conn, db.Postgres)
}

func withSearchPath(dsn, schema string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err == nil {
			q := u.Query()
			q.Set("search_path", schema)
			u.RawQuery = q.Encode()
			return u.String()
		}
	}
	return dsn + " search_path=" + schema
}

// race runs n calls of fn at once and returns their errors by index.
func race(n int, fn func(i int) error) []error {
	var wg sync.WaitGroup
	errs := make([]error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func checkConcurrentAccept(t *testing.T, env testEnv) {
	p := env.project(t)
	bids := []domain.Bid{env.bid(t, p.ID, "sp-1", 100), env.bid(t, p.ID, "sp-2", 200), env.bid(t, p.ID, "sp-3", 300)}

	errs := race(len(bids), func(i int) error {
		_, _, err := env.Engine.AcceptBid(env.Ctx, p.ID, bids[i].ID, "client-1")
		return err
	})
	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one accept to succeed, got %d (%v)", succeeded, errs)
	}
	accepted := 0
	for _, status := range bidStatuses(t, env, p.ID) {
		if status == domain.BidAccepted {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("expected one accepted bid, got %d", accepted)
	}
	project, err := env.Engine.Repo.GetProject(env.Ctx, p.ID)
	if err != nil || project.Status != domain.ProjectPendingContract {
		t.Fatalf("project after race: %+v %v", project, err)
	}
}

func checkConcurrentCounterSign(t *testing.T, env testEnv) {
	p := env.project(t)
	b := env.bid(t, p.ID, "sp-1", 900)
	if _, _, err := env.Engine.AcceptBid(env.Ctx, p.ID, b.ID, "client-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	c, err := env.Engine.CreateContract(env.Ctx, engine.ContractInput{
		ProjectID: p.ID, BidID: b.ID, ClientID: "client-1", Terms: "terms", SignatureRef: "signatures/c.png",
	})
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}

	errs := race(8, func(i int) error {
		_, err := env.Engine.CounterSignContract(env.Ctx, c.ID, "sp-1", fmt.Sprintf("signatures/sp-%d.png", i))
		return err
	})
	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInvalidState):
		default:
			t.Fatalf("expected ErrInvalidState for the losers, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one counter-sign to succeed, got %d (%v)", succeeded, errs)
	}
	project, err := env.Engine.Repo.GetProject(env.Ctx, p.ID)
	if err != nil || project.Status != domain.ProjectInProgress {
		t.Fatalf("project after race: %+v %v", project, err)
	}
	client := domain.Actor{ID: "client-1", Kind: domain.ActorClient, Active: true}
	evts, err := env.Engine.ProjectEvents(env.Ctx, p.ID, client, repo.EventFilters{Type: "contract.fully_signed"})
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 {
		t.Fatalf("expected one contract.fully_signed event, got %d", len(evts))
	}
}

func TestConcurrentAcceptBid(t *testing.T) {
	checkConcurrentAccept(t, newTestEnv(t))
}

func TestConcurrentCounterSign(t *testing.T) {
	checkConcurrentCounterSign(t, newTestEnv(t))
}

func TestPostgresConcurrency(t *testing.T) {
	t.Run("accept bid", func(t *testing.T) {
		checkConcurrentAccept(t, newPostgresEnv(t))
	})
	t.Run("counter-sign", func(t *testing.T) {
		checkConcurrentCounterSign(t, newPostgresEnv(t))
	})
}
