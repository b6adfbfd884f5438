package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/careminder/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	t.Parallel()

	q := `SELECT a FROM t WHERE x = ? AND y IN (?, ?)`
	assert.Equal(t, `SELECT a FROM t WHERE x = $1 AND y IN ($2, $3)`, Postgres.Rebind(q))
	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, "?,?,?", placeholders(3))
	assert.Equal(t, "", placeholders(0))
}

func TestDialectFor(t *testing.T) {
	t.Parallel()

	d, err := DialectFor("sqlite")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)

	_, err = DialectFor("mongo")
	assert.Error(t, err)
}

func TestDialectTimeOrdersLexically(t *testing.T) {
	t.Parallel()

	early := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	late := early.Add(500 * time.Millisecond)

	a := SQLite.Time(early).(string)
	b := SQLite.Time(late).(string)
	assert.Less(t, a, b)
	assert.Len(t, a, len(b))

	assert.Equal(t, early, Postgres.Time(early.In(time.FixedZone("x", 3600))))
	assert.Nil(t, SQLite.NullTime(nil))
}

func TestNullTimeScan(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 3, 10, 8, 30, 15, 250, time.UTC)

	for _, v := range []any{
		want,
		want.Format(timeLayout),
		[]byte(want.Format(time.RFC3339Nano)),
		want.In(time.FixedZone("x", -7200)).Format("2006-01-02 15:04:05.999999999-07:00"),
	} {
		var n nullTime
		require.NoError(t, n.Scan(v), "%v", v)
		assert.True(t, n.Valid)
		assert.True(t, want.Equal(n.Time), "%v", v)
	}

	var n nullTime
	require.NoError(t, n.Scan(nil))
	assert.Nil(t, n.Ptr())

	assert.Error(t, n.Scan(42))
	assert.Error(t, n.Scan("yesterday"))
}

func TestMapError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: sql.ErrNoRows, want: store.ErrNotFound},
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, want: store.ErrDuplicate},
		{name: "foreign key", err: &pgconn.PgError{Code: "23503"}, want: store.ErrInvalidEntity},
		{name: "check", err: &pgconn.PgError{Code: "23514"}, want: store.ErrInvalidEntity},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: store.ErrTransient},
		{name: "connection class", err: &pgconn.PgError{Code: "08006"}, want: store.ErrTransient},
		{name: "bad conn", err: fmt.Errorf("exec: %w", sql.ErrConnDone), want: store.ErrTransient},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, MapError(tc.err), tc.want)
		})
	}

	plain := errors.New("plain")
	assert.Equal(t, plain, MapError(plain))
	assert.NoError(t, MapError(nil))
}
