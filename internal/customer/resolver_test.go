package customer

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type stubRow struct {
	group *string
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(**string)) = r.group
	return nil
}

type stubQuerier struct {
	rows map[string]stubRow
	err  error
}

func (q stubQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	if q.err != nil {
		return stubRow{err: q.err}
	}
	row, ok := q.rows[args[0].(string)]
	if !ok {
		return stubRow{err: pgx.ErrNoRows}
	}
	return row
}

func ptr(s string) *string { return &s }

func TestGroupOf(t *testing.T) {
	r := &PGResolver{
		db: stubQuerier{rows: map[string]stubRow{
			"CUST-1": {group: ptr("Retail")},
			"CUST-2": {group: nil},
			"CUST-3": {group: ptr("  ")},
		}},
		DefaultGroup: "All Customer Groups",
	}
	ctx := context.Background()

	group, err := r.GroupOf(ctx, "CUST-1")
	require.NoError(t, err)
	require.Equal(t, "Retail", group)

	for _, id := range []string{"CUST-2", "CUST-3"} {
		group, err = r.GroupOf(ctx, id)
		require.NoError(t, err)
		require.Equal(t, "All Customer Groups", group)
	}

	_, err = r.GroupOf(ctx, "CUST-404")
	require.ErrorIs(t, err, ErrCustomerNotFound)
}

func TestGroupOfWrapsDatabaseErrors(t *testing.T) {
	boom := errors.New("conn closed")
	r := &PGResolver{db: stubQuerier{err: boom}}
	_, err := r.GroupOf(context.Background(), "CUST-1")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrCustomerNotFound)
}
