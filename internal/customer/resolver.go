package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCustomerNotFound is returned when the customer id is unknown.
var ErrCustomerNotFound = errors.New("customer not found")

// Resolver maps a customer to the group its minimums are configured for.
type Resolver interface {
	GroupOf(ctx context.Context, customerID string) (string, error)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGResolver reads customers.customer_group. Customers without a group fall
// back to DefaultGroup.
type PGResolver struct {
	db           rowQuerier
	DefaultGroup string
}

// NewPGResolver returns a resolver backed by pool.
func NewPGResolver(pool *pgxpool.Pool, defaultGroup string) *PGResolver {
	return &PGResolver{db: pool, DefaultGroup: defaultGroup}
}

// GroupOf returns the customer's group name.
func (r *PGResolver) GroupOf(ctx context.Context, customerID string) (string, error) {
	var group *string
	err := r.db.QueryRow(ctx, `SELECT customer_group FROM customers WHERE customer_id = $1`, customerID).Scan(&group)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrCustomerNotFound, customerID)
	}
	if err != nil {
		return "", fmt.Errorf("lookup customer %s: %w", customerID, err)
	}
	if group == nil || strings.TrimSpace(*group) == "" {
		return r.DefaultGroup, nil
	}
	return *group, nil
}
