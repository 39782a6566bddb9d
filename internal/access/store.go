package access

import (
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"

	"github.com/atlekbai/treefinder/internal/db"
)

const rolesQuery = `SELECT roles_id FROM users_roles WHERE users_id = $1 ORDER BY roles_id`

// Store loads principals from the users_roles table.
type Store struct {
	db            db.Querier
	superuserRole int64
}

// NewStore returns a store marking holders of superuserRole as superusers.
func NewStore(q db.Querier, superuserRole int64) *Store {
	return &Store{db: q, superuserRole: superuserRole}
}

// Principal loads the roles of userID. A zero id is the guest.
func (s *Store) Principal(ctx context.Context, userID int64) (Principal, error) {
	if userID == 0 {
		return GuestPrincipal(), nil
	}
	rows, err := s.db.Query(ctx, rolesQuery, userID)
	if err != nil {
		return Principal{}, fmt.Errorf("load roles for user %d: %w", userID, err)
	}
	roles, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return Principal{}, fmt.Errorf("scan roles for user %d: %w", userID, err)
	}
	if len(roles) == 0 {
		return Principal{}, fmt.Errorf("user %d not found", userID)
	}
	return Principal{
		ID:        userID,
		Roles:     roles,
		Superuser: slices.Contains(roles, s.superuserRole),
	}, nil
}
