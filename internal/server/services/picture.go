package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/chefbook/internal/common"
	sc "github.com/dmitrijs2005/chefbook/internal/server/config"
	"github.com/dmitrijs2005/chefbook/internal/server/models"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

var pictureExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// PictureService issues presigned S3 URLs for profile pictures. It does not
// touch the database: the client uploads the file and then stores the
// returned public URL through AccountService.Update.
type PictureService struct {
	config *sc.Config
}

func NewPictureService(config *sc.Config) *PictureService {
	return &PictureService{config: config}
}

// PictureKey builds a unique object key for accountID.
func PictureKey(accountID int64, contentType string) string {
	return fmt.Sprintf("accounts/%d/%v%s", accountID, uuid.New(), pictureExtensions[contentType])
}

func (s *PictureService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if s.config.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
			// MinIO serves buckets under the path, not as subdomains.
			o.UsePathStyle = true
		}
	})

	return newS3PresignClient(client), nil
}

// PresignUpload returns a presigned PUT URL for a new picture of accountID.
func (s *PictureService) PresignUpload(ctx context.Context, accountID int64, in *models.PictureUploadIn) (*models.PictureUploadOut, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return nil, err
	}

	bucket := s.config.S3Bucket
	key := PictureKey(accountID, in.ContentType)

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		ContentType: aws.String(in.ContentType),
	}, s3.WithPresignExpires(s.expiry()))
	if err != nil {
		return nil, err
	}

	return &models.PictureUploadOut{
		Key:       key,
		UploadURL: req.URL,
		PublicURL: s.PublicURL(key),
	}, nil
}

// PresignDownload returns a presigned GET URL for key.
func (s *PictureService) PresignDownload(ctx context.Context, key string) (string, error) {
	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket

	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.expiry()))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}

// PublicURL joins the configured public prefix and key.
func (s *PictureService) PublicURL(key string) string {
	return strings.TrimRight(s.config.S3PublicURL, "/") + "/" + key
}

// KeyFromURL returns the object key of a URL built by PublicURL. It reports
// false for pictures hosted elsewhere.
func (s *PictureService) KeyFromURL(pictureURL string) (string, bool) {
	key, ok := strings.CutPrefix(pictureURL, s.PublicURL(""))
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

func (s *PictureService) expiry() time.Duration {
	if s.config.PresignExpiry > 0 {
		return s.config.PresignExpiry
	}
	return 15 * time.Minute
}
