package models

// PictureUploadIn asks for a presigned upload URL.
type PictureUploadIn struct {
	ContentType string `json:"content_type" validate:"required,oneof=image/jpeg image/png image/webp image/gif"`
}

func (p *PictureUploadIn) Validate() error {
	return validate.Struct(p)
}

// PictureUploadOut tells the client where to PUT the file and which URL to
// store in picture_url afterwards.
type PictureUploadOut struct {
	Key       string `json:"key"`
	UploadURL string `json:"upload_url"`
	PublicURL string `json:"public_url"`
}
