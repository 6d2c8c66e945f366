// Package models holds the data shapes exchanged between the repository,
// service and transport layers.
package models

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// AccountIn is the payload used to create an account. Password is plain
// text here and is hashed by the service before it reaches storage.
type AccountIn struct {
	Username          string  `json:"username" validate:"required,max=64"`
	Password          string  `json:"password" validate:"required,max=72"`
	Name              string  `json:"name" validate:"required,max=128"`
	IsChef            bool    `json:"is_chef"`
	PayRate           *string `json:"pay_rate" validate:"omitempty,max=64"`
	Cuisine           *string `json:"cuisine" validate:"omitempty,max=64"`
	YearsOfExperience *int    `json:"years_of_experience" validate:"omitempty,min=0,max=100"`
	PictureURL        *string `json:"picture_url" validate:"omitempty,url"`
}

func (a *AccountIn) Validate() error {
	return validate.Struct(a)
}

// Profile returns the profile part of the payload.
func (a *AccountIn) Profile() AccountUpdate {
	return AccountUpdate{
		Username:          a.Username,
		Name:              a.Name,
		IsChef:            a.IsChef,
		PayRate:           a.PayRate,
		Cuisine:           a.Cuisine,
		YearsOfExperience: a.YearsOfExperience,
		PictureURL:        a.PictureURL,
	}
}

// AccountUpdate carries the profile fields that Update overwrites.
// The password is deliberately absent.
type AccountUpdate struct {
	Username          string  `json:"username" validate:"required,max=64"`
	Name              string  `json:"name" validate:"required,max=128"`
	IsChef            bool    `json:"is_chef"`
	PayRate           *string `json:"pay_rate" validate:"omitempty,max=64"`
	Cuisine           *string `json:"cuisine" validate:"omitempty,max=64"`
	YearsOfExperience *int    `json:"years_of_experience" validate:"omitempty,min=0,max=100"`
	PictureURL        *string `json:"picture_url" validate:"omitempty,url"`
}

func (a *AccountUpdate) Validate() error {
	return validate.Struct(a)
}

// AccountOut is the public projection of an account.
type AccountOut struct {
	ID                int64   `json:"id"`
	Username          string  `json:"username"`
	Name              string  `json:"name"`
	IsChef            bool    `json:"is_chef"`
	PayRate           *string `json:"pay_rate"`
	Cuisine           *string `json:"cuisine"`
	YearsOfExperience *int    `json:"years_of_experience"`
	PictureURL        *string `json:"picture_url"`
}

// AccountOutWithPassword adds the stored password hash. It is used only
// inside the server and never serialized.
type AccountOutWithPassword struct {
	AccountOut
	Password string `json:"-"`
}

// NewAccountOut combines a generated id with profile fields.
func NewAccountOut(id int64, p AccountUpdate) AccountOut {
	return AccountOut{
		ID:                id,
		Username:          p.Username,
		Name:              p.Name,
		IsChef:            p.IsChef,
		PayRate:           p.PayRate,
		Cuisine:           p.Cuisine,
		YearsOfExperience: p.YearsOfExperience,
		PictureURL:        p.PictureURL,
	}
}

// FavoriteIn names the event whose membership is toggled.
type FavoriteIn struct {
	EventID int64 `json:"event_id" validate:"required,gt=0"`
}

func (f *FavoriteIn) Validate() error {
	return validate.Struct(f)
}

// FavoriteListOut is the ordered list of favorited event ids.
type FavoriteListOut struct {
	EventsFavorited []int64 `json:"events_favorited"`
}

// NewFavoriteListOut never returns a nil list so it encodes as [] not null.
func NewFavoriteListOut(ids []int64) *FavoriteListOut {
	if ids == nil {
		ids = []int64{}
	}
	return &FavoriteListOut{EventsFavorited: ids}
}
