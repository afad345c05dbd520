package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/certkeeper/internal/common"
)

// S3Config describes an S3-compatible endpoint (AWS or MinIO).
type S3Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	BaseEndpoint string
}

type objectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type presignAPI interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3Clients = func(cfg aws.Config, optFns ...func(*s3.Options)) (objectAPI, presignAPI) {
		c := s3.NewFromConfig(cfg, optFns...)
		return c, s3.NewPresignClient(c)
	}
)

// S3Store is a Store and Presigner over an S3 bucket. The SDK client is
// built on first use; EnsureInitialized can force that earlier.
type S3Store struct {
	cfg S3Config

	once    sync.Once
	initErr error
	objects objectAPI
	presign presignAPI
}

func NewS3Store(cfg S3Config) *S3Store {
	return &S3Store{cfg: cfg}
}

// EnsureInitialized builds the SDK clients exactly once. Later calls are
// no-ops that return the first outcome.
func (s *S3Store) EnsureInitialized(ctx context.Context) error {
	s.once.Do(func() {
		awsCfg, err := loadDefaultAWSConfig(ctx,
			config.WithRegion(s.cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				s.cfg.AccessKey,
				s.cfg.SecretKey,
				"",
			)))
		if err != nil {
			s.initErr = fmt.Errorf("load aws config: %w", err)
			return
		}
		s.objects, s.presign = newS3Clients(awsCfg, func(o *s3.Options) {
			if s.cfg.BaseEndpoint != "" {
				o.BaseEndpoint = aws.String(s.cfg.BaseEndpoint)
			}
			o.UsePathStyle = true
		})
	})
	return s.initErr
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	out, err := s.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(io.LimitReader(out.Body, MaxTemplateSize+1))
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", key, err)
	}
	if len(b) > MaxTemplateSize {
		return nil, fmt.Errorf("s3 object %s exceeds %d bytes", key, MaxTemplateSize)
	}
	return b, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := s.EnsureInitialized(ctx); err != nil {
		return err
	}
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.objects.PutObject(ctx, in); err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := s.EnsureInitialized(ctx); err != nil {
		return "", err
	}
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func (s *S3Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := s.EnsureInitialized(ctx); err != nil {
		return "", err
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
