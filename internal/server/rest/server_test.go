package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/chefbook/internal/common"
	"github.com/dmitrijs2005/chefbook/internal/logging"
	"github.com/dmitrijs2005/chefbook/internal/server/models"
	"github.com/dmitrijs2005/chefbook/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fakes ----

type fakeAccounts struct {
	tokens map[string]int64

	registerIn  *models.AccountIn
	registerErr error

	loginErr error

	refreshErr error

	loggedOut    []string
	logoutAllN   int64
	byUsername   *models.AccountOut
	byUsernameEr error

	detail    map[int64]*models.AccountOut
	list      []models.AccountOut
	listErr   error
	updated   *models.AccountUpdate
	updateErr error

	toggled   int64
	favorites []int64
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		tokens: map[string]int64{"tok-1": 1, "tok-2": 2},
		detail: map[int64]*models.AccountOut{
			1: {ID: 1, Username: "alice", Name: "Alice"},
			2: {ID: 2, Username: "bob", Name: "Bob", IsChef: true},
		},
	}
}

var testPair = &services.TokenPair{AccessToken: "tok-1", RefreshToken: "abcdef"}

func (f *fakeAccounts) Register(ctx context.Context, in *models.AccountIn) (*models.AccountOut, *services.TokenPair, error) {
	if f.registerErr != nil {
		return nil, nil, f.registerErr
	}
	f.registerIn = in
	out := models.NewAccountOut(1, in.Profile())
	return &out, testPair, nil
}

func (f *fakeAccounts) Login(ctx context.Context, username, password string) (*models.AccountOut, *services.TokenPair, error) {
	if f.loginErr != nil {
		return nil, nil, f.loginErr
	}
	return f.detail[1], testPair, nil
}

func (f *fakeAccounts) RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return testPair, nil
}

func (f *fakeAccounts) Logout(ctx context.Context, refreshToken string) error {
	f.loggedOut = append(f.loggedOut, refreshToken)
	return nil
}

func (f *fakeAccounts) LogoutAll(ctx context.Context, accountID int64) (int64, error) {
	return f.logoutAllN, nil
}

func (f *fakeAccounts) Get(ctx context.Context, username string) (*models.AccountOut, error) {
	return f.byUsername, f.byUsernameEr
}

func (f *fakeAccounts) GetDetail(ctx context.Context, id int64) (*models.AccountOut, error) {
	if a, ok := f.detail[id]; ok {
		return a, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeAccounts) List(ctx context.Context) ([]models.AccountOut, error) {
	return f.list, f.listErr
}

func (f *fakeAccounts) Update(ctx context.Context, id int64, in *models.AccountUpdate) (*models.AccountOut, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updated = in
	out := models.NewAccountOut(id, *in)
	return &out, nil
}

func (f *fakeAccounts) ToggleFavorite(ctx context.Context, id int64, in *models.FavoriteIn) (*models.FavoriteListOut, error) {
	f.toggled = in.EventID
	return models.NewFavoriteListOut(append(f.favorites, in.EventID)), nil
}

func (f *fakeAccounts) Favorites(ctx context.Context, id int64) (*models.FavoriteListOut, error) {
	return models.NewFavoriteListOut(f.favorites), nil
}

func (f *fakeAccounts) AccountIDFromToken(token string) (int64, error) {
	if id, ok := f.tokens[token]; ok {
		return id, nil
	}
	return 0, common.ErrInvalidToken
}

type fakePictures struct{}

func (fakePictures) PresignUpload(ctx context.Context, accountID int64, in *models.PictureUploadIn) (*models.PictureUploadOut, error) {
	key := fmt.Sprintf("accounts/%d/x.png", accountID)
	return &models.PictureUploadOut{Key: key, UploadURL: "http://s3/put", PublicURL: "http://cdn/" + key}, nil
}

func (fakePictures) PresignDownload(ctx context.Context, key string) (string, error) {
	return "http://s3/get/" + key, nil
}

func (fakePictures) KeyFromURL(pictureURL string) (string, bool) {
	key, ok := strings.CutPrefix(pictureURL, "http://cdn/")
	return key, ok && key != ""
}

// ---- helpers ----

func newTestServer(t *testing.T, acc *fakeAccounts) *HTTPServer {
	t.Helper()
	return NewHTTPServer(":0", logging.Nop(), acc, fakePictures{}, Options{AccessTokenCookieTTL: time.Minute})
}

func do(t *testing.T, s *HTTPServer, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) HTTPError {
	t.Helper()
	var he HTTPError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &he), rec.Body.String())
	return he
}

// ---- tests ----

func TestHealth(t *testing.T) {
	s := newTestServer(t, newFakeAccounts())
	rec := do(t, s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestID_Propagated(t *testing.T) {
	s := newTestServer(t, newFakeAccounts())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestRegister(t *testing.T) {
	acc := newFakeAccounts()
	s := newTestServer(t, acc)

	rec := do(t, s, http.MethodPost, "/api/accounts",
		`{"username":"gordon","password":"pw","name":"Gordon","is_chef":true,"cuisine":"british"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out models.TokenOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "tok-1", out.AccessToken)
	assert.Equal(t, "abcdef", out.RefreshToken)
	assert.Equal(t, "Bearer", out.TokenType)
	require.NotNil(t, out.Account)
	assert.Equal(t, "gordon", out.Account.Username)
	assert.NotContains(t, rec.Body.String(), `"password"`)
	assert.Equal(t, "british", *acc.registerIn.Cuisine)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, common.AccessTokenCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.False(t, cookies[0].Secure)
}

func TestRegister_Errors(t *testing.T) {
	t.Run("duplicate username", func(t *testing.T) {
		acc := newFakeAccounts()
		acc.registerErr = fmt.Errorf("error creating account: %w", common.ErrDuplicateAccount)
		s := newTestServer(t, acc)

		rec := do(t, s, http.MethodPost, "/api/accounts", `{"username":"a","password":"b","name":"c"}`, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		he := decodeError(t, rec)
		assert.Equal(t, CodeAccountAlreadyExists, he.Code)
		assert.Equal(t, "Username already taken", he.Message)
	})

	t.Run("validation", func(t *testing.T) {
		s := newTestServer(t, newFakeAccounts())

		rec := do(t, s, http.MethodPost, "/api/accounts", `{"password":"b","name":"c"}`, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		he := decodeError(t, rec)
		assert.Equal(t, "BAD_REQUEST", he.Code)
		assert.Equal(t, []FieldError{{Field: "username", Error: "is required"}}, he.Errors)
	})

	t.Run("malformed json", func(t *testing.T) {
		s := newTestServer(t, newFakeAccounts())
		rec := do(t, s, http.MethodPost, "/api/accounts", `{"username":`, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("storage failure is a generic client error", func(t *testing.T) {
		acc := newFakeAccounts()
		acc.registerErr = fmt.Errorf("error creating account: db error: %w", io.ErrUnexpectedEOF)
		s := newTestServer(t, acc)

		rec := do(t, s, http.MethodPost, "/api/accounts", `{"username":"a","password":"b","name":"c"}`, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotContains(t, rec.Body.String(), "unexpected EOF")
	})
}

func TestLogin(t *testing.T) {
	acc := newFakeAccounts()
	s := newTestServer(t, acc)

	rec := do(t, s, http.MethodPost, "/token", `{"username":"alice","password":"pw"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"access_token":"tok-1"`)

	acc.loginErr = common.ErrorUnauthorized
	rec = do(t, s, http.MethodPost, "/token", `{"username":"alice","password":"bad"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefresh(t *testing.T) {
	acc := newFakeAccounts()
	s := newTestServer(t, acc)

	rec := do(t, s, http.MethodPost, "/token/refresh", `{"refresh_token":"abcdef"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"account"`)

	acc.refreshErr = common.ErrRefreshTokenExpired
	rec = do(t, s, http.MethodPost, "/token/refresh", `{"refresh_token":"abcdef"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Refresh token expired", decodeError(t, rec).Message)
}

func TestLogout(t *testing.T) {
	acc := newFakeAccounts()
	s := newTestServer(t, acc)

	rec := do(t, s, http.MethodDelete, "/token", `{"refresh_token":"abcdef"}`, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"abcdef"}, acc.loggedOut)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)

	rec = do(t, s, http.MethodDelete, "/token", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, acc.loggedOut, 1)
}

func TestCurrentAccount(t *testing.T) {
	s := newTestServer(t, newFakeAccounts())

	rec := do(t, s, http.MethodGet, "/token", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodGet, "/token", "", "forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodGet, "/token", "", "tok-2")
	require.Equal(t, http.StatusOK, rec.Code)
	var out models.TokenOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "tok-2", out.AccessToken)
	assert.Equal(t, "bob", out.Account.Username)
}

func TestAuthenticate_Cookie(t *testing.T) {
	s := newTestServer(t, newFakeAccounts())

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/1", nil)
	req.AddCookie(&http.Cookie{Name: common.AccessTokenCookieName, Value: "tok-1"})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	t.Run("secure cookie round trip", func(t *testing.T) {
		s := NewHTTPServer(":0", logging.Nop(), newFakeAccounts(), fakePictures{},
			Options{AccessTokenCookieTTL: time.Minute, SecureCookies: true})

		rec := do(t, s, http.MethodPost, "/token", `{"username":"alice","password":"pw"}`, "")
		require.Equal(t, http.StatusOK, rec.Code)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.True(t, cookies[0].Secure)
		assert.Equal(t, 60, cookies[0].MaxAge)

		req := httptest.NewRequest(http.MethodGet, "/api/accounts/1", nil)
		req.AddCookie(cookies[0])
		rec = httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = do(t, s, http.MethodDelete, "/token", "", "")
		cleared := rec.Result().Cookies()
		require.Len(t, cleared, 1)
		assert.True(t, cleared[0].Secure)
	})
}

func TestListAccounts(t *testing.T) {
	acc := newFakeAccounts()
	s := newTestServer(t, acc)

	rec := do(t, s, http.MethodGet, "/api/accounts", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	acc.list = []models.AccountOut{}
	rec = do(t, s, http.MethodGet, "/api/accounts", "", "tok-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	acc.list = []models.AccountOut{{ID: 1, Name: "Alice"}, {ID: 2, Name: "Bob"}}
	rec = do(t, s, http.MethodGet, "/api/accounts", "", "tok-1")
	var list []models.AccountOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)
}

func TestListAccounts_ByUsername(t *testing.T) {
	acc := newFakeAccounts()
	s := newTestServer(t, acc)

	acc.byUsername = &models.AccountOut{ID: 2, Username: "bob"}
	rec := do(t, s, http.MethodGet, "/api/accounts?username=bob", "", "tok-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"bob"`)

	acc.byUsername, acc.byUsernameEr = nil, common.ErrorNotFound
	rec = do(t, s, http.MethodGet, "/api/accounts?username=ghost", "", "tok-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetAccount(t *testing.T) {
	s := newTestServer(t, newFakeAccounts())

	rec := do(t, s, http.MethodGet, "/api/accounts/2", "", "tok-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_chef":true`)

	rec = do(t, s, http.MethodGet, "/api/accounts/99", "", "tok-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)

	rec = do(t, s, http.MethodGet, "/api/accounts/abc", "", "tok-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateAccount(t *testing.T) {
	acc := newFakeAccounts()
	s := newTestServer(t, acc)

	body := `{"username":"alice","name":"Alice B","is_chef":true,"years_of_experience":4}`

	rec := do(t, s, http.MethodPut, "/api/accounts/1", body, "tok-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Alice B", acc.updated.Name)
	assert.Equal(t, 4, *acc.updated.YearsOfExperience)

	rec = do(t, s, http.MethodPut, "/api/accounts/2", body, "tok-1")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	acc.updateErr = common.ErrorNotFound
	rec = do(t, s, http.MethodPut, "/api/accounts/1", body, "tok-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	acc.updateErr = common.ErrDuplicateAccount
	rec = do(t, s, http.MethodPut, "/api/accounts/1", `{"username":"bob","name":"Alice"}`, "tok-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	he := decodeError(t, rec)
	assert.Equal(t, CodeAccountAlreadyExists, he.Code)
	assert.Equal(t, "Username already taken", he.Message)
}

func TestFavorites(t *testing.T) {
	acc := newFakeAccounts()
	s := newTestServer(t, acc)

	rec := do(t, s, http.MethodGet, "/api/accounts/2/favorites", "", "tok-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"events_favorited":[]}`, rec.Body.String())

	rec = do(t, s, http.MethodPut, "/api/accounts/1/favorites", `{"event_id":7}`, "tok-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), acc.toggled)
	assert.JSONEq(t, `{"events_favorited":[7]}`, rec.Body.String())

	rec = do(t, s, http.MethodPut, "/api/accounts/1/favorites", `{"event_id":0}`, "tok-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPut, "/api/accounts/2/favorites", `{"event_id":7}`, "tok-1")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPresignPicture(t *testing.T) {
	s := newTestServer(t, newFakeAccounts())

	rec := do(t, s, http.MethodPost, "/api/accounts/1/picture", `{"content_type":"image/png"}`, "tok-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var out models.PictureUploadOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "accounts/1/x.png", out.Key)
	assert.Equal(t, "http://cdn/accounts/1/x.png", out.PublicURL)

	rec = do(t, s, http.MethodPost, "/api/accounts/1/picture", `{"content_type":"text/plain"}`, "tok-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPicture(t *testing.T) {
	acc := newFakeAccounts()
	s := newTestServer(t, acc)

	rec := do(t, s, http.MethodGet, "/api/accounts/1/picture", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/accounts/1/picture", "", "tok-2")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no picture set")

	rec = do(t, s, http.MethodGet, "/api/accounts/99/picture", "", "tok-2")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	stored := "http://cdn/accounts/1/x.png"
	acc.detail[1].PictureURL = &stored
	rec = do(t, s, http.MethodGet, "/api/accounts/1/picture", "", "tok-2")
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "http://s3/get/accounts/1/x.png", rec.Header().Get("Location"))

	external := "http://avatars.example/alice.png"
	acc.detail[1].PictureURL = &external
	rec = do(t, s, http.MethodGet, "/api/accounts/1/picture", "", "tok-2")
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, external, rec.Header().Get("Location"))
}

func TestLogoutAll(t *testing.T) {
	acc := newFakeAccounts()
	acc.logoutAllN = 3
	s := newTestServer(t, acc)

	rec := do(t, s, http.MethodDelete, "/api/accounts/1/sessions", "", "tok-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"revoked":3}`, rec.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, newFakeAccounts())
	rec := do(t, s, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Route not found", decodeError(t, rec).Message)
}

func TestRateLimit(t *testing.T) {
	s := NewHTTPServer(":0", logging.Nop(), newFakeAccounts(), fakePictures{}, Options{RateLimit: 1, RateBurst: 1})

	rec := do(t, s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	s := NewHTTPServer(addr, logging.Nop(), newFakeAccounts(), fakePictures{}, Options{ShutdownTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
