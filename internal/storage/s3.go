package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the subset of the S3 client used here.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 stores files as objects under a key prefix of one bucket.
type S3 struct {
	client s3API
	bucket string
	prefix string
}

// NewS3 builds an S3 store using the AWS default credential chain
// (AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY, shared config, instance roles).
func NewS3(ctx context.Context, bucket, prefix, region string) (*S3, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newS3WithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func newS3WithClient(client s3API, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3) String() string {
	if s.prefix == "" {
		return "s3://" + s.bucket
	}
	return "s3://" + s.bucket + "/" + s.prefix
}

func (s *S3) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// WriteFiles uploads files in order. S3 has no multi-object transaction, so
// the last file acts as the commit marker for readers.
func (s *S3) WriteFiles(ctx context.Context, files []File) error {
	for _, f := range files {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(f.Name)),
			Body:   bytes.NewReader(f.Data),
		})
		if err != nil {
			return fmt.Errorf("put %s: %w", s.key(f.Name), err)
		}
	}
	return nil
}

// ReadFile downloads one object.
func (s *S3) ReadFile(ctx context.Context, name string) ([]byte, error) {
	return s.get(ctx, s.key(name))
}

func (s *S3) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("s3://%s/%s: %w", s.bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// List returns every object key under the store prefix.
func (s *S3) List(ctx context.Context) ([]string, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix + "/")
	}
	var keys []string
	pages := s3.NewListObjectsV2Paginator(s.client, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s: %w", s.bucket, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Download copies every object whose key ends in suffix into dir, naming each
// file after the key's base name. It returns the written paths.
func (s *S3) Download(ctx context.Context, dir, suffix string) ([]string, error) {
	keys, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}
	var written []string
	for _, key := range keys {
		if !strings.HasSuffix(strings.ToLower(key), strings.ToLower(suffix)) {
			continue
		}
		data, err := s.get(ctx, key)
		if err != nil {
			return written, err
		}
		local := filepath.Join(dir, path.Base(key))
		if err := os.WriteFile(local, data, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", local, err)
		}
		written = append(written, local)
	}
	return written, nil
}
