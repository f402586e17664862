package kv

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// tableDB emulates the orbit_kv table closely enough for the store's three
// statements.
type tableDB struct {
	mu    sync.Mutex
	rows  map[string][]byte
	execs []string
	err   error
}

func newTableDB() *tableDB { return &tableDB{rows: make(map[string][]byte)} }

func (m *tableDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		err := m.err
		return &mockRow{scanFunc: func(...any) error { return err }}
	}
	if strings.TrimSpace(sql) == "SELECT 1" {
		return &mockRow{scanFunc: func(dest ...any) error {
			*dest[0].(*int) = 1
			return nil
		}}
	}
	v, ok := m.rows[args[0].(string)]
	return &mockRow{scanFunc: func(dest ...any) error {
		if !ok {
			return pgx.ErrNoRows
		}
		*dest[0].(*[]byte) = v
		return nil
	}}
}

func (m *tableDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execs = append(m.execs, sql)
	if m.err != nil {
		return pgconn.CommandTag{}, m.err
	}
	switch {
	case strings.Contains(sql, "INSERT INTO orbit_kv"):
		m.rows[args[0].(string)] = args[1].([]byte)
	case strings.Contains(sql, "DELETE FROM orbit_kv"):
		delete(m.rows, args[0].(string))
	}
	return pgconn.CommandTag{}, nil
}

func TestPostgresStore(t *testing.T) {
	t.Parallel()
	exerciseStore(t, NewPostgresStore(newTableDB()))
}

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()
	db := newTableDB()
	if err := NewPostgresStore(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(db.execs) != 1 || !strings.Contains(db.execs[0], "CREATE TABLE IF NOT EXISTS orbit_kv") {
		t.Errorf("execs = %v", db.execs)
	}
}

func TestPostgresStore_Errors(t *testing.T) {
	t.Parallel()
	db := newTableDB()
	db.err = errors.New("connection reset")
	s := NewPostgresStore(db)
	ctx := context.Background()

	if _, err := s.Get(ctx, "k"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Get err = %v, want wrapped db error", err)
	}
	if err := s.Set(ctx, "k", []byte("v")); err == nil {
		t.Error("Set: want error")
	}
	if err := s.Ping(ctx); err == nil {
		t.Error("Ping: want error")
	}
}
