package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/emissionslake/lake/utils/pkg/retry"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type S3StoreConfig struct {
	Client S3API
	Bucket string
	// Prefix is prepended to every key. Optional.
	Prefix string
	Retry  retry.Config
}

func (cfg *S3StoreConfig) Validate() error {
	if cfg.Client == nil {
		return errors.New("s3 client is required")
	}
	if cfg.Bucket == "" {
		return errors.New("bucket is required")
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return nil
}

// S3Store keeps objects in an S3 bucket. S3 object writes are atomic, so Put needs
// no staging.
type S3Store struct {
	cfg S3StoreConfig
}

func NewS3Store(cfg S3StoreConfig) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &S3Store{cfg: cfg}, nil
}

// NewS3StoreFromEnv builds an S3Store using the default AWS credential chain.
func NewS3StoreFromEnv(ctx context.Context, bucket, prefix string) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3Store(S3StoreConfig{
		Client: s3.NewFromConfig(awsCfg),
		Bucket: bucket,
		Prefix: prefix,
	})
}

func (s *S3Store) objectKey(key string) string {
	if s.cfg.Prefix == "" {
		return key
	}
	return path.Join(s.cfg.Prefix, key)
}

func (s *S3Store) List(ctx context.Context, dir string) ([]string, error) {
	prefix := strings.TrimSuffix(s.objectKey(dir), "/") + "/"
	var names []string
	paginator := s3.NewListObjectsV2Paginator(s.cfg.Client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.cfg.Bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		var page *s3.ListObjectsV2Output
		err := retry.Do(ctx, s.cfg.Retry, func() error {
			var err error
			page, err = paginator.NextPage(ctx)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.cfg.Bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" || strings.Contains(name, "/") || !isCSV(name) {
				continue
			}
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := retry.Do(ctx, s.cfg.Retry, func() error {
		out, err := s.cfg.Client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(s.objectKey(key)),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()
		data, err = io.ReadAll(out.Body)
		return err
	})
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", s.cfg.Bucket, s.objectKey(key), err)
	}
	return data, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	err := retry.Do(ctx, s.cfg.Retry, func() error {
		_, err := s.cfg.Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.cfg.Bucket),
			Key:         aws.String(s.objectKey(key)),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("text/csv"),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", s.cfg.Bucket, s.objectKey(key), err)
	}
	return nil
}
