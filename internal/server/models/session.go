package models

// LoginIn carries credentials for POST /token.
type LoginIn struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (l *LoginIn) Validate() error {
	return validate.Struct(l)
}

// RefreshIn carries an opaque refresh token.
type RefreshIn struct {
	RefreshToken string `json:"refresh_token" validate:"required,hexadecimal"`
}

func (r *RefreshIn) Validate() error {
	return validate.Struct(r)
}

// TokenOut is returned by login and refresh.
type TokenOut struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token,omitempty"`
	TokenType    string      `json:"token_type"`
	Account      *AccountOut `json:"account,omitempty"`
}
