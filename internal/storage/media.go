// Package storage keeps uploaded media in a Supabase Storage bucket so
// Google can fetch it by public URL.
package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"
)

// objectAPI is the subset of the storage-go client used here.
type objectAPI interface {
	UploadFile(bucketID, relativePath string, data io.Reader, opts ...storage_go.FileOptions) (storage_go.FileUploadResponse, error)
	GetPublicUrl(bucketID, filePath string, opts ...storage_go.UrlOptions) storage_go.SignedUrlResponse
	RemoveFile(bucketID string, paths []string) ([]storage_go.FileUploadResponse, error)
}

type MediaStore struct {
	objects objectAPI
	bucket  string
}

// NewMediaStore connects with the service role key; the bucket must be public.
func NewMediaStore(url, serviceRoleKey, bucket string) (*MediaStore, error) {
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "create supabase client")
	}
	return &MediaStore{objects: client.Storage, bucket: bucket}, nil
}

// ObjectPath places a file under the owner's folder with a unique name,
// keeping the original extension.
func ObjectPath(userID, locationID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return path.Join(userID, locationID, uuid.NewString()+ext)
}

// Upload stores body at objectPath and returns its public URL.
func (s *MediaStore) Upload(_ context.Context, objectPath, contentType string, body io.Reader) (string, error) {
	upsert := false
	if _, err := s.objects.UploadFile(s.bucket, objectPath, body, storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	}); err != nil {
		return "", errors.Wrapf(err, "upload %s", objectPath)
	}
	return s.objects.GetPublicUrl(s.bucket, objectPath).SignedURL, nil
}

func (s *MediaStore) Remove(_ context.Context, objectPath string) error {
	if _, err := s.objects.RemoveFile(s.bucket, []string{objectPath}); err != nil {
		return errors.Wrapf(err, "remove %s", objectPath)
	}
	return nil
}
