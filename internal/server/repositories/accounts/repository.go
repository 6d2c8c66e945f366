// Package accounts declares the server-side repository contract for the
// accounts table.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/chefbook/internal/server/models"
)

// Repository defines storage operations for accounts. Every read reports a
// missing row as common.ErrorNotFound.
type Repository interface {
	// Create inserts the account with an already hashed password. A taken
	// username yields common.ErrDuplicateAccount.
	Create(ctx context.Context, in *models.AccountIn, hashedPassword string) (*models.AccountOutWithPassword, error)

	// GetByUsername returns the account together with its password hash.
	GetByUsername(ctx context.Context, username string) (*models.AccountOutWithPassword, error)

	// GetByID returns the public projection of the account.
	GetByID(ctx context.Context, id int64) (*models.AccountOut, error)

	// List returns all accounts ordered by name.
	List(ctx context.Context) ([]models.AccountOut, error)

	// Update overwrites the profile fields of an existing account.
	Update(ctx context.Context, id int64, in *models.AccountUpdate) (*models.AccountOut, error)

	// ToggleFavorite adds eventID to the favorites if absent, removes it
	// otherwise, and returns the resulting list.
	ToggleFavorite(ctx context.Context, id int64, eventID int64) (*models.FavoriteListOut, error)

	// Favorites returns the current favorites list.
	Favorites(ctx context.Context, id int64) (*models.FavoriteListOut, error)
}
