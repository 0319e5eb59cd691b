package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Config configures the S3 uploader. Credentials are usually taken from
// the AWS_* environment variables loaded from .env.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
	// Endpoint targets an S3-compatible service such as MinIO.
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	// Public uploads objects with a public-read ACL.
	Public bool `yaml:"public"`
}

// S3 uploads objects with the s3manager uploader.
type S3 struct {
	uploader *s3manager.Uploader
	bucket   string
	public   bool
}

// NewS3 creates a session and uploader.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("objectstore: s3 bucket is required")
	}

	awsCfg := &aws.Config{
		Region:     aws.String(cfg.Region),
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.PathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("objectstore: new aws session: %w", err)
	}

	return &S3{
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.Bucket,
		public:   cfg.Public,
	}, nil
}

// Upload puts data at key and returns the object location.
func (s *S3) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyObject
	}

	input := &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}
	if s.public {
		input.ACL = aws.String(s3.ObjectCannedACLPublicRead)
	}

	out, err := s.uploader.UploadWithContext(ctx, input)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return out.Location, nil
}
