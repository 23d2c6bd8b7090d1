// Package storage provides the durable locations a rag index is saved to and
// loaded from: a local directory, an S3 prefix, or a Postgres table.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by ReadFile when the location has no such file.
var ErrNotFound = errors.New("file not found")

// File is a named blob written to a location.
type File struct {
	Name string
	Data []byte
}

// Store is a named durable location holding a small set of files.
//
// WriteFiles replaces the location's contents with files. Backends that can
// write atomically do so; the others write files in the given order, so
// callers put their commit marker last.
type Store interface {
	WriteFiles(ctx context.Context, files []File) error
	ReadFile(ctx context.Context, name string) ([]byte, error)
	String() string
}

// Options carries backend settings that are not part of the location string.
type Options struct {
	// Region selects the AWS region for s3:// locations. Empty uses the AWS default chain.
	Region string
}

// Open resolves a location string to a Store.
//
//	s3://bucket/prefix           objects under prefix in bucket
//	postgres://... postgresql:// rows in a Postgres table (see NewPostgres)
//	file:///path, /path, path    a local directory
func Open(ctx context.Context, location string, opts Options) (Store, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("index location is empty")
	}
	switch {
	case strings.HasPrefix(location, "s3://"):
		bucket, prefix, err := ParseS3URL(location)
		if err != nil {
			return nil, err
		}
		return NewS3(ctx, bucket, prefix, opts.Region)
	case strings.HasPrefix(location, "postgres://"), strings.HasPrefix(location, "postgresql://"):
		return NewPostgres(ctx, location)
	case strings.HasPrefix(location, "file://"):
		return NewDir(strings.TrimPrefix(location, "file://")), nil
	default:
		return NewDir(location), nil
	}
}

// ParseS3URL splits s3://bucket/prefix into bucket and prefix.
func ParseS3URL(location string) (string, string, error) {
	rest := strings.TrimPrefix(location, "s3://")
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("s3 location %q has no bucket", location)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}
