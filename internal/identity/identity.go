// Package identity is the narrow view of the auth backend the core needs:
// who has which email, and who is an admin.
package identity

import (
	"context"
	"fmt"

	"bidspot/internal/store"
)

type Directory interface {
	Email(ctx context.Context, userID string) (string, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

type storeDirectory struct {
	st store.Store
}

var _ Directory = (*storeDirectory)(nil)

func NewDirectory(st store.Store) Directory {
	return &storeDirectory{st: st}
}

func (d *storeDirectory) Email(ctx context.Context, userID string) (string, error) {
	u, err := d.st.GetUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("lookup user %s: %w", userID, err)
	}
	return u.Email, nil
}

func (d *storeDirectory) IsAdmin(ctx context.Context, userID string) (bool, error) {
	u, err := d.st.GetUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("lookup user %s: %w", userID, err)
	}
	return u.IsAdmin, nil
}
