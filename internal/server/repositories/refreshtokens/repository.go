// Package refreshtokens declares the server-side repository contract for
// managing refresh tokens in persistent storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/chefbook/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking refresh tokens.
type Repository interface {
	// Create stores a new refresh token for accountID with an expiry of now+validity.
	Create(ctx context.Context, accountID int64, token string, validity time.Duration) error

	// Consume deletes the refresh token and returns the removed row, so a
	// token can be redeemed at most once. An absent token yields a not-found
	// error.
	Consume(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes a refresh token by its token string. Deleting a non-existent
	// token should not be considered an error.
	Delete(ctx context.Context, token string) error

	// DeleteByAccount revokes every refresh token of the account.
	DeleteByAccount(ctx context.Context, accountID int64) (int64, error)
}
