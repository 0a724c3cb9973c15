package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arbscout/arbscout/internal/pkg/models"
)

// queryReply scripts the outcome of one upsert statement: either the
// per-row inserted flags the RETURNING clause would yield, or an error.
type queryReply struct {
	inserted []bool
	err      error
}

type scriptedDB struct {
	mu      sync.Mutex
	replies []queryReply
	queries []string
	argLens []int
}

func (s *scriptedDB) next(query string, args int) (queryReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	s.argLens = append(s.argLens, args)
	if len(s.replies) == 0 {
		return queryReply{}, errors.New("unscripted query")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

type scriptedConn struct{ db *scriptedDB }

func (c *scriptedConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *scriptedConn) Close() error { return nil }

func (c *scriptedConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions not supported")
}

func (c *scriptedConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	r, err := c.db.next(query, len(args))
	if err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	return &insertedRows{values: r.inserted}, nil
}

type insertedRows struct {
	values []bool
	pos    int
}

func (r *insertedRows) Columns() []string { return []string{"inserted"} }
func (r *insertedRows) Close() error      { return nil }

func (r *insertedRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.values) {
		return io.EOF
	}
	dest[0] = r.values[r.pos]
	r.pos++
	return nil
}

type scriptedConnector struct{ db *scriptedDB }

func (c scriptedConnector) Connect(context.Context) (driver.Conn, error) {
	return &scriptedConn{db: c.db}, nil
}

func (c scriptedConnector) Driver() driver.Driver { return scriptedDriver{} }

type scriptedDriver struct{}

func (scriptedDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("open through sql.OpenDB")
}

func newScriptedStorage(replies ...queryReply) (*PostgresStorage, *scriptedDB) {
	db := &scriptedDB{replies: replies}
	return &PostgresStorage{
		db:          sql.OpenDB(scriptedConnector{db: db}),
		arbTTL:      time.Hour,
		enrichedTTL: time.Hour,
	}, db
}

func storedMatch(id string) models.Match {
	return models.Match{
		MatchID:  id,
		HomeTeam: "Arsenal",
		AwayTeam: "Chelsea",
		Markets:  []models.Market{{Description: "1X2"}},
	}
}

func TestUpsertMatchesReportsInsertsThenUpdates(t *testing.T) {
	s, db := newScriptedStorage(
		queryReply{inserted: []bool{true, true}},
		queryReply{inserted: []bool{false, false}},
	)
	batch := []models.Match{storedMatch("sr:match:1"), storedMatch("sr:match:2")}

	first, err := s.UpsertMatches(context.Background(), batch)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.Inserted != 2 || first.Updated != 0 || first.Persisted != 2 {
		t.Errorf("first upsert = %+v, want 2 inserted", first)
	}

	second, err := s.UpsertMatches(context.Background(), batch)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.Inserted != 0 || second.Updated != 2 || second.Persisted != 2 {
		t.Errorf("second upsert = %+v, want 2 updated", second)
	}

	if len(db.queries) != 2 {
		t.Fatalf("issued %d queries, want 2 bulk statements", len(db.queries))
	}
	for _, q := range db.queries {
		if !strings.Contains(q, "ON CONFLICT (match_id) DO UPDATE") {
			t.Errorf("upsert statement lacks conflict clause: %q", q)
		}
		if !strings.Contains(q, "xmax = 0") {
			t.Errorf("upsert statement lacks insert/update reporting: %q", q)
		}
	}
}

func TestUpsertMatchesFallsBackPerRecord(t *testing.T) {
	s, db := newScriptedStorage(
		queryReply{err: errors.New("invalid byte sequence for encoding")},
		queryReply{inserted: []bool{true}},
		queryReply{err: errors.New("invalid byte sequence for encoding")},
		queryReply{inserted: []bool{false}},
	)
	batch := []models.Match{storedMatch("sr:match:1"), storedMatch("sr:match:2"), storedMatch("sr:match:3")}

	res, err := s.UpsertMatches(context.Background(), batch)
	if err != nil {
		t.Fatalf("fallback upsert: %v", err)
	}
	if res.Inserted != 1 || res.Updated != 1 || res.Persisted != 2 || res.Failed != 1 {
		t.Errorf("fallback result = %+v, want 1 inserted, 1 updated, 1 failed", res)
	}

	// One bulk attempt, then each record retried on its own.
	if len(db.queries) != 4 {
		t.Fatalf("issued %d queries, want bulk + 3 per-record", len(db.queries))
	}
	if db.argLens[0] != 21 {
		t.Errorf("bulk statement bound %d args, want 21", db.argLens[0])
	}
	for i, n := range db.argLens[1:] {
		if n != 7 {
			t.Errorf("per-record statement %d bound %d args, want 7", i, n)
		}
	}
}

func TestUpsertMatchesAllFailedReturnsError(t *testing.T) {
	dbErr := errors.New("connection reset by peer")
	s, _ := newScriptedStorage(
		queryReply{err: dbErr},
		queryReply{err: dbErr},
		queryReply{err: dbErr},
	)
	res, err := s.UpsertMatches(context.Background(), []models.Match{storedMatch("a"), storedMatch("b")})
	if err == nil {
		t.Fatal("expected error when every record fails")
	}
	if res.Persisted != 0 || res.Failed != 2 {
		t.Errorf("result = %+v, want 0 persisted, 2 failed", res)
	}
}

func TestUpsertMatchesEmptyBatchIsNoop(t *testing.T) {
	s, db := newScriptedStorage()
	res, err := s.UpsertMatches(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if res != (UpsertResult{}) {
		t.Errorf("empty batch result = %+v, want zero", res)
	}
	if len(db.queries) != 0 {
		t.Errorf("empty batch issued %d queries", len(db.queries))
	}
}

func TestUpsertEnrichedSecondWriteReportsUpdate(t *testing.T) {
	s, db := newScriptedStorage(
		queryReply{inserted: []bool{true}},
		queryReply{inserted: []bool{false}},
	)
	batch := []models.EnrichedMatch{{MatchID: "sr:match:9", IsValid: true}}

	first, err := s.UpsertEnriched(context.Background(), batch)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.Inserted != 1 || first.Persisted != 1 {
		t.Errorf("first upsert = %+v, want 1 inserted", first)
	}

	second, err := s.UpsertEnriched(context.Background(), batch)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.Updated != 1 || second.Inserted != 0 {
		t.Errorf("second upsert = %+v, want 1 updated", second)
	}

	for i, n := range db.argLens {
		if n != 5 {
			t.Errorf("statement %d bound %d args, want 5", i, n)
		}
	}
}
