// Package s3store implements the store collaborators over an S3 bucket.
// Handles are object keys; folders are key prefixes.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/georgepadayatti/pdfsign/store"
)

// Client is the subset of *s3.Client the store uses.
type Client interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Options configures a client built by NewClient.
type Options struct {
	Region string
	// Endpoint overrides the service endpoint, e.g. for MinIO.
	Endpoint string
	// UsePathStyle addresses buckets as path elements.
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// NewClient builds an S3 client from the default AWS configuration chain.
// Static credentials are used when AccessKeyID is set.
func NewClient(ctx context.Context, opts Options) (*s3.Client, error) {
	var loaders []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loaders = append(loaders, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken)))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	}), nil
}

// Store serves one bucket.
type Store struct {
	client Client
	bucket string
}

var _ store.Backend = (*Store)(nil)

// New creates a store over bucket.
func New(client Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

func key(h store.Handle) string {
	return strings.TrimPrefix(string(h), "/")
}

func folderPrefix(h store.Handle) string {
	k := strings.TrimSuffix(key(h), "/")
	if k == "" {
		return ""
	}
	return k + "/"
}

// Read streams the object behind h.
func (s *Store) Read(ctx context.Context, h store.Handle) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key(h)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, s.missing(ctx, h)
		}
		return nil, fmt.Errorf("get %s: %w", h, err)
	}
	return out.Body, nil
}

// missing distinguishes a folder prefix from an absent key.
func (s *Store) missing(ctx context.Context, h store.Handle) error {
	if ok, err := s.isFolder(ctx, h); err == nil && ok {
		return fmt.Errorf("%w: %s", store.ErrNotContent, h)
	}
	return fmt.Errorf("%w: %s", store.ErrNotFound, h)
}

// Write uploads data to h.
func (s *Store) Write(ctx context.Context, h store.Handle, data []byte, mimeType string) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key(h)),
		Body:   bytes.NewReader(data),
	}
	if mimeType != "" {
		in.ContentType = aws.String(mimeType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put %s: %w", h, err)
	}
	return nil
}

// Exists reports whether h is an object or a non-empty prefix.
func (s *Store) Exists(ctx context.Context, h store.Handle) (bool, error) {
	_, err := s.TypeOf(ctx, h)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// TypeOf reports whether h is an object or a prefix.
func (s *Store) TypeOf(ctx context.Context, h store.Handle) (store.NodeType, error) {
	if k := key(h); k != "" && !strings.HasSuffix(k, "/") {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(k),
		})
		if err == nil {
			return store.NodeContent, nil
		}
		if !isNotFound(err) {
			return store.NodeUnknown, fmt.Errorf("head %s: %w", h, err)
		}
	}

	ok, err := s.isFolder(ctx, h)
	if err != nil {
		return store.NodeUnknown, err
	}
	if ok {
		return store.NodeFolder, nil
	}
	return store.NodeUnknown, fmt.Errorf("%w: %s", store.ErrNotFound, h)
}

func (s *Store) isFolder(ctx context.Context, h store.Handle) (bool, error) {
	prefix := folderPrefix(h)
	if prefix == "" {
		return true, nil
	}
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("list %s: %w", prefix, err)
	}
	return len(out.Contents) > 0, nil
}

// ReadCredential downloads a key store object.
func (s *Store) ReadCredential(ctx context.Context, h store.Handle) ([]byte, error) {
	return store.ReadAll(ctx, s, h)
}

// Copy duplicates src into folder under name with a server side copy.
func (s *Store) Copy(ctx context.Context, src, folder store.Handle, name string) (store.Handle, error) {
	dst, err := s.destination(ctx, folder, name)
	if err != nil {
		return "", err
	}
	if t, err := s.TypeOf(ctx, src); err != nil {
		return "", err
	} else if t != store.NodeContent {
		return "", fmt.Errorf("%w: %s", store.ErrNotContent, src)
	}

	_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(key(dst)),
		CopySource: aws.String(copySource(s.bucket, key(src))),
	})
	if err != nil {
		return "", fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return dst, nil
}

// Create uploads an empty PDF object in folder.
func (s *Store) Create(ctx context.Context, folder store.Handle, name string) (store.Handle, error) {
	dst, err := s.destination(ctx, folder, name)
	if err != nil {
		return "", err
	}
	if err := s.Write(ctx, dst, nil, store.MimeTypePDF); err != nil {
		return "", err
	}
	return dst, nil
}

func (s *Store) destination(ctx context.Context, folder store.Handle, name string) (store.Handle, error) {
	if err := store.ValidateName(name); err != nil {
		return "", fmt.Errorf("%w: %q", err, name)
	}
	ok, err := s.isFolder(ctx, folder)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", store.ErrFileNotFound, folder)
	}

	dst := store.Handle(path.Join(folderPrefix(folder), name))
	if exists, err := s.Exists(ctx, dst); err != nil {
		return "", err
	} else if exists {
		return "", fmt.Errorf("%w: %s", store.ErrExists, dst)
	}
	return dst, nil
}

// Remove deletes the object behind h.
func (s *Store) Remove(ctx context.Context, h store.Handle) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key(h)),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", h, err)
	}
	return nil
}

// copySource URL-encodes each element of bucket/key, keeping the slashes.
func copySource(bucket, k string) string {
	parts := strings.Split(bucket+"/"+k, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
