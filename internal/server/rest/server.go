// Package rest exposes the account and session operations over HTTP/JSON
// using echo.
package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/chefbook/internal/logging"
	"github.com/dmitrijs2005/chefbook/internal/server/models"
	"github.com/dmitrijs2005/chefbook/internal/server/services"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// AccountService is the subset of services.AccountService used by handlers.
type AccountService interface {
	Register(ctx context.Context, in *models.AccountIn) (*models.AccountOut, *services.TokenPair, error)
	Login(ctx context.Context, username, password string) (*models.AccountOut, *services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, accountID int64) (int64, error)
	Get(ctx context.Context, username string) (*models.AccountOut, error)
	GetDetail(ctx context.Context, id int64) (*models.AccountOut, error)
	List(ctx context.Context) ([]models.AccountOut, error)
	Update(ctx context.Context, id int64, in *models.AccountUpdate) (*models.AccountOut, error)
	ToggleFavorite(ctx context.Context, id int64, in *models.FavoriteIn) (*models.FavoriteListOut, error)
	Favorites(ctx context.Context, id int64) (*models.FavoriteListOut, error)
	AccountIDFromToken(token string) (int64, error)
}

// PictureService issues presigned upload and download URLs.
type PictureService interface {
	PresignUpload(ctx context.Context, accountID int64, in *models.PictureUploadIn) (*models.PictureUploadOut, error)
	PresignDownload(ctx context.Context, key string) (string, error)
	KeyFromURL(pictureURL string) (string, bool)
}

// Options tunes the HTTP surface.
type Options struct {
	// CORSAllowedOrigins defaults to "*" when empty.
	CORSAllowedOrigins []string
	// RateLimit is requests per second per client IP; zero disables limiting.
	RateLimit float64
	RateBurst int
	// SecureCookies marks the access_token cookie Secure.
	SecureCookies        bool
	AccessTokenCookieTTL time.Duration
	ShutdownTimeout      time.Duration
}

type HTTPServer struct {
	address  string
	logger   logging.Logger
	accounts AccountService
	pictures PictureService
	opts     Options
	echo     *echo.Echo
}

func NewHTTPServer(address string, l logging.Logger, accounts AccountService, pictures PictureService, opts Options) *HTTPServer {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if len(opts.CORSAllowedOrigins) == 0 {
		opts.CORSAllowedOrigins = []string{"*"}
	}

	s := &HTTPServer{
		address:  address,
		logger:   l.With("module", "http_server"),
		accounts: accounts,
		pictures: pictures,
		opts:     opts,
	}
	s.echo = s.newEcho()
	return s
}

func (s *HTTPServer) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.Recover())
	e.Use(requestID())
	e.Use(s.requestLogger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     s.opts.CORSAllowedOrigins,
		AllowCredentials: true,
	}))
	if s.opts.RateLimit > 0 {
		e.Use(rateLimiter(s.opts.RateLimit, s.opts.RateBurst))
	}

	s.registerRoutes(e)
	return e
}

func (s *HTTPServer) registerRoutes(e *echo.Echo) {
	e.GET("/health", s.health)

	e.POST("/token", s.login)
	e.POST("/token/refresh", s.refresh)
	e.DELETE("/token", s.logout)
	e.GET("/token", s.currentAccount, s.authenticate)

	e.POST("/api/accounts", s.register)

	api := e.Group("/api/accounts", s.authenticate)
	api.GET("", s.listAccounts)
	api.GET("/:id", s.getAccount)
	api.PUT("/:id", s.updateAccount, s.requireOwner)
	api.GET("/:id/favorites", s.favorites)
	api.PUT("/:id/favorites", s.toggleFavorite, s.requireOwner)
	api.GET("/:id/picture", s.picture)
	api.POST("/:id/picture", s.presignPicture, s.requireOwner)
	api.DELETE("/:id/sessions", s.logoutAll, s.requireOwner)
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
		if err := s.echo.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
