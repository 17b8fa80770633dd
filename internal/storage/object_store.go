package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"travelblog/internal/config"
)

const avatarLinkTTL = time.Hour

// ObjectStore keeps avatar images in a single bucket, one prefix per account.
type ObjectStore struct {
	client *minio.Client
	cfg    config.StorageConfig
}

func NewObjectStore(cfg config.StorageConfig) (*ObjectStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &ObjectStore{client: client, cfg: cfg}, nil
}

func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	bucket := s.cfg.BucketAvatars
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}

// AvatarKey builds the object key for one avatar version of an account.
func AvatarKey(accountID, version, ext string) string {
	return path.Join("avatars", accountID, version+"."+ext)
}

func (s *ObjectStore) PutAvatar(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.cfg.BucketAvatars, key, body, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "private, max-age=86400",
	})
	if err != nil {
		return fmt.Errorf("put avatar %s: %w", key, err)
	}
	return nil
}

func (s *ObjectStore) RemoveAvatar(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.cfg.BucketAvatars, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove avatar %s: %w", key, err)
	}
	return nil
}

// RemoveAccountObjects deletes every object stored under the account prefix.
func (s *ObjectStore) RemoveAccountObjects(ctx context.Context, accountID string) error {
	prefix := path.Join("avatars", accountID) + "/"
	objects := s.client.ListObjects(ctx, s.cfg.BucketAvatars, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})

	var errs []error
	for removeErr := range s.client.RemoveObjects(ctx, s.cfg.BucketAvatars, objects, minio.RemoveObjectsOptions{}) {
		errs = append(errs, fmt.Errorf("remove %s: %w", removeErr.ObjectName, removeErr.Err))
	}
	return errors.Join(errs...)
}

// Ping reports whether the avatar bucket is reachable.
func (s *ObjectStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.cfg.BucketAvatars)
	return err
}

// AvatarURL returns a short-lived download link for an avatar object.
func (s *ObjectStore) AvatarURL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.cfg.BucketAvatars, key, avatarLinkTTL, nil)
	if err != nil {
		return "", fmt.Errorf("presign avatar %s: %w", key, err)
	}
	return u.String(), nil
}
