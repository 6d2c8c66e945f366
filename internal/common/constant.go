package common

// AccessTokenCookieName is the cookie that carries the access token for
// browser clients. API clients send the same token as a bearer header.
const AccessTokenCookieName = "access_token"

// RefreshTokenBytes is the amount of random data behind a refresh token.
const RefreshTokenBytes = 32
