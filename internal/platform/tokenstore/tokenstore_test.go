package tokenstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

func TestKey(t *testing.T) {
	tests := map[string]string{
		"pharmacy": "pharmacy_token",
		" Doctor ": "doctor_token",
		"":         "pharmacy_token",
		"ADMIN":    "admin_token",
	}
	for in, want := range tests {
		if got := Key(in); got != want {
			t.Errorf("Key(%q) = %q, want %q", in, got, want)
		}
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "pharmacy_token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}
	if err := s.Set(ctx, "pharmacy_token", "tok-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "doctor_token", "tok-d"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "pharmacy_token", "tok-2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if got, err := s.Get(ctx, "pharmacy_token"); err != nil || got != "tok-2" {
		t.Errorf("Get = %q, %v; want tok-2", got, err)
	}
	if err := s.Delete(ctx, "pharmacy_token"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "pharmacy_token"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if got, _ := s.Get(ctx, "doctor_token"); got != "tok-d" {
		t.Errorf("other roles must be untouched, got %q", got)
	}
	if err := s.Delete(ctx, "missing_token"); err != nil {
		t.Errorf("deleting a missing key should succeed, got %v", err)
	}
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	f := NewFile(path)
	exerciseStore(t, f)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("token file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected mode 0600, got %o", perm)
	}

	// A second store on the same path sees the persisted token.
	if got, err := NewFile(path).Get(context.Background(), "doctor_token"); err != nil || got != "tok-d" {
		t.Errorf("reopened store Get = %q, %v", got, err)
	}
}

func TestFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewFile(path).Get(context.Background(), "pharmacy_token")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestSource(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	src := NewSource(store, "pharmacy", zerolog.Nop())

	tok, err := src.Token(ctx)
	if err != nil || tok != "" {
		t.Errorf("missing token should be empty without error, got %q, %v", tok, err)
	}

	store.Set(ctx, "pharmacy_token", "abc")
	if tok, _ := src.Token(ctx); tok != "abc" {
		t.Errorf("expected abc, got %q", tok)
	}
}

// fakeRow and fakeDB stand in for pgxpool.Pool.
type fakeRow struct {
	val string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.val
	return nil
}

type fakeDB struct {
	rows  map[string]string
	execs []string
}

func (d *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.execs = append(d.execs, sql)
	switch {
	case strings.Contains(sql, "INSERT"):
		d.rows[args[0].(string)] = args[1].(string)
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case strings.Contains(sql, "DELETE"):
		delete(d.rows, args[0].(string))
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	return pgconn.CommandTag{}, errors.New("unexpected statement")
}

func (d *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	v, ok := d.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{val: v}
}

func TestPGStore(t *testing.T) {
	db := &fakeDB{rows: map[string]string{}}
	exerciseStore(t, NewPGStore(db))
	if len(db.execs) == 0 || !strings.Contains(db.execs[0], "ON CONFLICT") {
		t.Errorf("expected upsert statement, got %v", db.execs)
	}
}
