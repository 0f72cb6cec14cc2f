package dedup

import (
	"context"
	"testing"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// fakeRow scans a scripted memory id.
type fakeRow struct {
	id uuid.UUID
}

func (r fakeRow) Scan(dest ...any) error {
	*(dest[0].(*uuid.UUID)) = r.id
	return nil
}

// fakeDB answers every QueryRow with the same canonical id, like a table
// that already holds a row for the hash.
type fakeDB struct {
	canonical uuid.UUID
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{id: f.canonical}
}

func testChecker(t *testing.T, db querier) *Checker {
	t.Helper()
	cache, err := ristretto.NewCache(&ristretto.Config[string, uuid.UUID]{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
	})
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	logger, _ := zap.NewDevelopment()
	return &Checker{
		db:        db,
		cache:     cache,
		mode:      domain.DedupLogOnly,
		threshold: 0.95,
		logger:    logger,
	}
}

func TestNormalizeFoldsCosmeticDifferences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello world"},
		{"  hello   world  ", "hello world"},
		{"hello\nworld", "hello world"},
		{"HELLO\tWORLD", "hello world"},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestHashStableAcrossCosmeticVariants(t *testing.T) {
	base := Hash("The deploy failed at 3am.")
	variants := []string{
		"the deploy failed at 3am.",
		"  The   deploy failed\nat 3am.  ",
		"THE DEPLOY FAILED AT 3AM.",
	}
	for _, v := range variants {
		if Hash(v) != base {
			t.Errorf("Hash(%q) differs from canonical form", v)
		}
	}
}

func TestHashDistinguishesContent(t *testing.T) {
	if Hash("postgres is down") == Hash("postgres is up") {
		t.Error("different content must hash differently")
	}
}

func TestHashIsHexSHA256(t *testing.T) {
	h := Hash("anything")
	if len(h) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h))
	}
}

func TestRecordCachesCanonicalID(t *testing.T) {
	canonical := uuid.New()
	c := testChecker(t, &fakeDB{canonical: canonical})
	defer c.Close()

	// A re-store of existing content carries a fresh id; the upsert keeps
	// the original row, and the cache must agree with the table.
	hash := Hash("already stored once")
	if err := c.Record(context.Background(), hash, uuid.New()); err != nil {
		t.Fatalf("record: %v", err)
	}
	c.Wait()

	res := c.CheckExact(context.Background(), hash)
	if res.Decision != domain.DedupExactDuplicate {
		t.Fatalf("decision = %s, want exact_duplicate", res.Decision)
	}
	if res.ExistingID != canonical {
		t.Errorf("cached id = %s, want canonical %s", res.ExistingID, canonical)
	}
}
