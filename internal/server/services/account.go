// Package services contains server-side business logic. This file implements
// AccountService: registration, login and token rotation, plus the profile
// and favorites operations backed by the accounts repository.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/chefbook/internal/common"
	"github.com/dmitrijs2005/chefbook/internal/cryptox"
	"github.com/dmitrijs2005/chefbook/internal/dbx"
	"github.com/dmitrijs2005/chefbook/internal/server/auth"
	"github.com/dmitrijs2005/chefbook/internal/server/config"
	"github.com/dmitrijs2005/chefbook/internal/server/models"
	"github.com/dmitrijs2005/chefbook/internal/server/repositories/repomanager"
)

var checkPassword = cryptox.CheckPassword

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AccountService provides account and session operations. Multi-statement
// flows (Register, RefreshToken) run in one transaction.
type AccountService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	bcryptCost                   int

	// dummyHash is compared against when the username is unknown, so both
	// login failures cost one bcrypt comparison.
	dummyHash string
	now       func() time.Time
}

// NewAccountService constructs an AccountService using repositories and server config.
func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *AccountService {
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = cryptox.DefaultCost
	}
	dummyHash, err := cryptox.HashPassword("chefbook-dummy-password", cost)
	if err != nil {
		// out-of-range cost; fall back so the comparison still runs
		dummyHash, _ = cryptox.HashPassword("chefbook-dummy-password", cryptox.DefaultCost)
	}
	return &AccountService{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		bcryptCost:                   cost,
		dummyHash:                    dummyHash,
		now:                          time.Now,
	}
}

// Register hashes the password, stores the account and issues a token pair.
// The account row and the refresh token row are written atomically.
func (s *AccountService) Register(ctx context.Context, in *models.AccountIn) (*models.AccountOut, *TokenPair, error) {
	if err := in.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}

	hash, err := cryptox.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}

	var (
		account *models.AccountOut
		pair    *TokenPair
	)
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		created, err := s.repomanager.Accounts(tx).Create(ctx, in, hash)
		if err != nil {
			return fmt.Errorf("error creating account: %w", err)
		}
		account = &created.AccountOut

		pair, err = s.generateTokenPair(ctx, tx, account.ID, account.Username)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	return account, pair, nil
}

// Login verifies the password and, on success, returns the account and a
// new TokenPair. Unknown usernames and wrong passwords both yield
// ErrorUnauthorized.
func (s *AccountService) Login(ctx context.Context, username, password string) (*models.AccountOut, *TokenPair, error) {
	account, err := s.repomanager.Accounts(s.db).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_, _ = checkPassword(s.dummyHash, password)
			return nil, nil, common.ErrorUnauthorized
		}
		return nil, nil, fmt.Errorf("error loading account: %w", err)
	}

	ok, err := checkPassword(account.Password, password)
	if err != nil {
		return nil, nil, common.ErrorInternal
	}
	if !ok {
		return nil, nil, common.ErrorUnauthorized
	}

	pair, err := s.generateTokenPair(ctx, s.db, account.ID, account.Username)
	if err != nil {
		return nil, nil, err
	}
	return &account.AccountOut, pair, nil
}

// RefreshToken redeems a refresh token and returns a fresh TokenPair. The
// token is consumed inside the transaction, so it can be redeemed only once.
// Unknown or already used tokens yield ErrorUnauthorized, expired ones
// ErrRefreshTokenExpired.
func (s *AccountService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var (
		pair    *TokenPair
		expired bool
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		token, err := s.repomanager.RefreshTokens(tx).Consume(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUnauthorized
			}
			return fmt.Errorf("error consuming refresh token: %w", err)
		}

		// the expired row stays deleted
		if token.Expired(s.now()) {
			expired = true
			return nil
		}

		account, err := s.repomanager.Accounts(tx).GetByID(ctx, token.AccountID)
		if err != nil {
			return fmt.Errorf("error loading account: %w", err)
		}

		pair, err = s.generateTokenPair(ctx, tx, account.ID, account.Username)
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, common.ErrRefreshTokenExpired
	}

	return pair, nil
}

// Logout revokes a single refresh token. Unknown tokens are not an error.
func (s *AccountService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.repomanager.RefreshTokens(s.db).Delete(ctx, refreshToken); err != nil {
		return fmt.Errorf("error deleting refresh token: %w", err)
	}
	return nil
}

// LogoutAll revokes every refresh token of the account and reports how many
// were removed.
func (s *AccountService) LogoutAll(ctx context.Context, accountID int64) (int64, error) {
	n, err := s.repomanager.RefreshTokens(s.db).DeleteByAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("error deleting refresh tokens: %w", err)
	}
	return n, nil
}

// Get returns the public projection of the account with the given username.
func (s *AccountService) Get(ctx context.Context, username string) (*models.AccountOut, error) {
	account, err := s.repomanager.Accounts(s.db).GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return &account.AccountOut, nil
}

func (s *AccountService) GetDetail(ctx context.Context, id int64) (*models.AccountOut, error) {
	return s.repomanager.Accounts(s.db).GetByID(ctx, id)
}

func (s *AccountService) List(ctx context.Context) ([]models.AccountOut, error) {
	return s.repomanager.Accounts(s.db).List(ctx)
}

// Update overwrites the profile fields of account id.
func (s *AccountService) Update(ctx context.Context, id int64, in *models.AccountUpdate) (*models.AccountOut, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}
	return s.repomanager.Accounts(s.db).Update(ctx, id, in)
}

// ToggleFavorite flips the membership of in.EventID in the favorites of
// account id.
func (s *AccountService) ToggleFavorite(ctx context.Context, id int64, in *models.FavoriteIn) (*models.FavoriteListOut, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}
	return s.repomanager.Accounts(s.db).ToggleFavorite(ctx, id, in.EventID)
}

func (s *AccountService) Favorites(ctx context.Context, id int64) (*models.FavoriteListOut, error) {
	return s.repomanager.Accounts(s.db).Favorites(ctx, id)
}

// AccountIDFromToken validates an access token and returns the account id
// it was issued for.
func (s *AccountService) AccountIDFromToken(token string) (int64, error) {
	return auth.GetAccountIDFromToken(token, s.jwtSecret)
}

func (s *AccountService) generateTokenPair(ctx context.Context, tx dbx.DBTX, accountID int64, username string) (*TokenPair, error) {
	access, err := auth.GenerateToken(accountID, username, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}

	refresh, err := common.MakeRandHexString(common.RefreshTokenBytes)
	if err != nil {
		return nil, common.ErrorInternal
	}

	if err := s.repomanager.RefreshTokens(tx).Create(ctx, accountID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, fmt.Errorf("error storing refresh token: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
