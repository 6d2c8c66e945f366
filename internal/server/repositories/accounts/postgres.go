// Package accounts provides a PostgreSQL-backed repository for the accounts
// table. Each method runs a single statement over dbx.DBTX, so callers may
// pass either the pool or an open transaction.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/chefbook/internal/common"
	"github.com/dmitrijs2005/chefbook/internal/dbx"
	"github.com/dmitrijs2005/chefbook/internal/server/models"
	"github.com/jackc/pgx/v5/pgtype"
)

// UsernameConstraint is the unique constraint guarding accounts.username.
const UsernameConstraint = "accounts_username_key"

const publicColumns = `id, username, name, is_chef, pay_rate, cuisine, years_of_experience, picture_url`

type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanAccount(row rowScanner, extra ...any) (*models.AccountOut, error) {
	a := &models.AccountOut{}
	dest := append([]any{
		&a.ID, &a.Username, &a.Name, &a.IsChef,
		&a.PayRate, &a.Cuisine, &a.YearsOfExperience, &a.PictureURL,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return a, nil
}

// scanFavorites decodes a bigint[] column. pgtype.Map is not safe for
// concurrent use, so every call gets its own.
func scanFavorites(row rowScanner) (*models.FavoriteListOut, error) {
	var ids []int64
	if err := row.Scan(pgtype.NewMap().SQLScanner(&ids)); err != nil {
		return nil, err
	}
	return models.NewFavoriteListOut(ids), nil
}

func (r *PostgresRepository) translate(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return common.ErrorNotFound
	case dbx.IsUniqueViolation(err, UsernameConstraint):
		return common.ErrDuplicateAccount
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

// Create inserts the account and returns it with the generated id.
func (r *PostgresRepository) Create(ctx context.Context, in *models.AccountIn, hashedPassword string) (*models.AccountOutWithPassword, error) {
	query := `
		INSERT INTO accounts
			(username, password, name, is_chef, pay_rate, cuisine, years_of_experience, picture_url)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		in.Username, hashedPassword, in.Name, in.IsChef,
		in.PayRate, in.Cuisine, in.YearsOfExperience, in.PictureURL,
	).Scan(&id)
	if err != nil {
		return nil, r.translate(err)
	}

	return &models.AccountOutWithPassword{
		AccountOut: models.NewAccountOut(id, in.Profile()),
		Password:   hashedPassword,
	}, nil
}

// GetByUsername looks the account up by its unique username.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.AccountOutWithPassword, error) {
	query := `
		SELECT ` + publicColumns + `, password
		FROM accounts
		WHERE username = $1
	`
	var password string
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, username), &password)
	if err != nil {
		return nil, r.translate(err)
	}
	return &models.AccountOutWithPassword{AccountOut: *a, Password: password}, nil
}

// GetByID looks the account up by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.AccountOut, error) {
	query := `
		SELECT ` + publicColumns + `
		FROM accounts
		WHERE id = $1
	`
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, r.translate(err)
	}
	return a, nil
}

// List returns every account ordered by name, then id for a stable order
// among namesakes.
func (r *PostgresRepository) List(ctx context.Context) ([]models.AccountOut, error) {
	query := `
		SELECT ` + publicColumns + `
		FROM accounts
		ORDER BY name, id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.AccountOut, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

// Update overwrites the profile fields and returns the stored row.
// The password column is not touched.
func (r *PostgresRepository) Update(ctx context.Context, id int64, in *models.AccountUpdate) (*models.AccountOut, error) {
	query := `
		UPDATE accounts
		SET username = $1,
			name = $2,
			is_chef = $3,
			pay_rate = $4,
			cuisine = $5,
			years_of_experience = $6,
			picture_url = $7
		WHERE id = $8
		RETURNING ` + publicColumns + `
	`
	a, err := scanAccount(r.db.QueryRowContext(ctx, query,
		in.Username, in.Name, in.IsChef,
		in.PayRate, in.Cuisine, in.YearsOfExperience, in.PictureURL,
		id,
	))
	if err != nil {
		return nil, r.translate(err)
	}
	return a, nil
}

// ToggleFavorite flips membership of eventID in one statement. The row lock
// taken by UPDATE serialises concurrent toggles for the same account.
func (r *PostgresRepository) ToggleFavorite(ctx context.Context, id int64, eventID int64) (*models.FavoriteListOut, error) {
	query := `
		UPDATE accounts
		SET events_favorited = CASE
			WHEN $1::bigint = ANY(COALESCE(events_favorited, '{}'))
				THEN array_remove(events_favorited, $1::bigint)
			ELSE array_append(COALESCE(events_favorited, '{}'), $1::bigint)
		END
		WHERE id = $2
		RETURNING events_favorited
	`
	f, err := scanFavorites(r.db.QueryRowContext(ctx, query, eventID, id))
	if err != nil {
		return nil, r.translate(err)
	}
	return f, nil
}

// Favorites returns the favorites list, empty when the column is NULL.
func (r *PostgresRepository) Favorites(ctx context.Context, id int64) (*models.FavoriteListOut, error) {
	query := `
		SELECT COALESCE(events_favorited, '{}')
		FROM accounts
		WHERE id = $1
	`
	f, err := scanFavorites(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, r.translate(err)
	}
	return f, nil
}
