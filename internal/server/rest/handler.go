package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/chefbook/internal/common"
	"github.com/dmitrijs2005/chefbook/internal/server/models"
	"github.com/dmitrijs2005/chefbook/internal/server/services"
	"github.com/labstack/echo/v4"
)

const tokenType = "Bearer"

type validatable interface {
	Validate() error
}

// bind decodes the request body into v and validates it.
func bind(c echo.Context, v validatable) error {
	if err := c.Bind(v); err != nil {
		return err
	}
	if err := v.Validate(); err != nil {
		return validationError(err)
	}
	return nil
}

func (s *HTTPServer) setAccessCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     common.AccessTokenCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.opts.AccessTokenCookieTTL / time.Second),
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *HTTPServer) clearAccessCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     common.AccessTokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *HTTPServer) tokenResponse(c echo.Context, pair *services.TokenPair, account *models.AccountOut) error {
	s.setAccessCookie(c, pair.AccessToken)
	return c.JSON(http.StatusOK, &models.TokenOut{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    tokenType,
		Account:      account,
	})
}

func (s *HTTPServer) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) register(c echo.Context) error {
	var in models.AccountIn
	if err := bind(c, &in); err != nil {
		return err
	}

	account, pair, err := s.accounts.Register(c.Request().Context(), &in)
	if err != nil {
		return err
	}

	s.logger.Info(c.Request().Context(), "Registered", "account_id", account.ID, "username", account.Username)
	return s.tokenResponse(c, pair, account)
}

func (s *HTTPServer) login(c echo.Context) error {
	var in models.LoginIn
	if err := bind(c, &in); err != nil {
		return err
	}

	account, pair, err := s.accounts.Login(c.Request().Context(), in.Username, in.Password)
	if err != nil {
		return err
	}
	return s.tokenResponse(c, pair, account)
}

func (s *HTTPServer) refresh(c echo.Context) error {
	var in models.RefreshIn
	if err := bind(c, &in); err != nil {
		return err
	}

	pair, err := s.accounts.RefreshToken(c.Request().Context(), in.RefreshToken)
	if err != nil {
		return err
	}
	return s.tokenResponse(c, pair, nil)
}

// logout revokes the refresh token when one is supplied and always clears
// the access token cookie.
func (s *HTTPServer) logout(c echo.Context) error {
	var in models.RefreshIn
	if err := c.Bind(&in); err != nil {
		return err
	}

	if in.RefreshToken != "" {
		if err := s.accounts.Logout(c.Request().Context(), in.RefreshToken); err != nil {
			return err
		}
	}

	s.clearAccessCookie(c)
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) logoutAll(c echo.Context) error {
	id, _ := accountIDFrom(c)

	n, err := s.accounts.LogoutAll(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int64{"revoked": n})
}

// currentAccount returns the account behind the presented access token.
func (s *HTTPServer) currentAccount(c echo.Context) error {
	id, _ := accountIDFrom(c)

	account, err := s.accounts.GetDetail(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &models.TokenOut{
		AccessToken: accessToken(c),
		TokenType:   tokenType,
		Account:     account,
	})
}

// listAccounts returns every account ordered by name. With ?username=
// it returns at most that one account.
func (s *HTTPServer) listAccounts(c echo.Context) error {
	ctx := c.Request().Context()

	if username := c.QueryParam("username"); username != "" {
		account, err := s.accounts.Get(ctx, username)
		if errors.Is(err, common.ErrorNotFound) {
			return c.JSON(http.StatusOK, []models.AccountOut{})
		}
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, []models.AccountOut{*account})
	}

	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, accounts)
}

func (s *HTTPServer) getAccount(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	account, err := s.accounts.GetDetail(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, account)
}

func (s *HTTPServer) updateAccount(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var in models.AccountUpdate
	if err := bind(c, &in); err != nil {
		return err
	}

	account, err := s.accounts.Update(c.Request().Context(), id, &in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, account)
}

func (s *HTTPServer) favorites(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	out, err := s.accounts.Favorites(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *HTTPServer) toggleFavorite(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var in models.FavoriteIn
	if err := bind(c, &in); err != nil {
		return err
	}

	out, err := s.accounts.ToggleFavorite(c.Request().Context(), id, &in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *HTTPServer) presignPicture(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var in models.PictureUploadIn
	if err := bind(c, &in); err != nil {
		return err
	}

	out, err := s.pictures.PresignUpload(c.Request().Context(), id, &in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// picture redirects to a short-lived download link for the account's
// picture. Pictures stored outside the bucket are redirected to as is.
func (s *HTTPServer) picture(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	account, err := s.accounts.GetDetail(ctx, id)
	if err != nil {
		return err
	}
	if account.PictureURL == nil || *account.PictureURL == "" {
		return common.ErrorNotFound
	}

	target := *account.PictureURL
	if key, ok := s.pictures.KeyFromURL(target); ok {
		if target, err = s.pictures.PresignDownload(ctx, key); err != nil {
			return err
		}
	}
	return c.Redirect(http.StatusTemporaryRedirect, target)
}
