package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrFileNotFound is returned by ReadFile when the key has never been written.
var ErrFileNotFound = errors.New("file not found")

// LocalStorage implements StorageService for local disk.
type LocalStorage struct {
	Dir       string
	URLPrefix string
}

func NewLocalStorage(dir, urlPrefix string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create storage directory %s: %w", dir, err)
	}
	return &LocalStorage{Dir: dir, URLPrefix: strings.TrimSuffix(urlPrefix, "/")}, nil
}

func (ls *LocalStorage) SaveFile(filename string, data []byte, contentType string) (string, error) {
	fullPath := filepath.Join(ls.Dir, filepath.Base(filename))
	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		return "", err
	}
	return ls.URLPrefix + "/" + filepath.Base(filename), nil
}

func (ls *LocalStorage) ReadFile(filename string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(ls.Dir, filepath.Base(filename)))
	if os.IsNotExist(err) {
		return nil, ErrFileNotFound
	}
	return data, err
}

func (ls *LocalStorage) DeleteFile(path string) error {
	// Path is either a bare key or a public path like "/uploads/filename.ext"
	fullPath := filepath.Join(ls.Dir, filepath.Base(path))
	err := os.Remove(fullPath)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// S3Storage implements StorageService for S3-compatible object storage.
type S3Storage struct {
	Client     *minio.Client
	BucketName string
	PublicURL  string
	Prefix     string
}

func NewS3Storage(endpoint, accessKey, secretKey, bucket, region, publicURL string, useSSL bool) (*S3Storage, error) {
	// Strip scheme if present
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")

	var creds *credentials.Credentials
	if accessKey == "" || secretKey == "" {
		creds = credentials.NewIAM("")
	} else {
		creds = credentials.NewStaticV4(accessKey, secretKey, "")
	}

	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	exists, err := minioClient.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", bucket)
	}

	if publicURL == "" {
		protocol := "http"
		if useSSL {
			protocol = "https"
		}
		publicURL = fmt.Sprintf("%s://%s.%s", protocol, bucket, endpoint)
	}

	return &S3Storage{
		Client:     minioClient,
		BucketName: bucket,
		PublicURL:  strings.TrimSuffix(publicURL, "/"),
	}, nil
}

// WithPrefix returns a view of the same bucket that namespaces every key.
func (s3 *S3Storage) WithPrefix(prefix string) *S3Storage {
	cp := *s3
	cp.Prefix = strings.Trim(prefix, "/") + "/"
	return &cp
}

func (s3 *S3Storage) key(name string) string {
	parts := strings.Split(name, "/")
	return s3.Prefix + parts[len(parts)-1]
}

func (s3 *S3Storage) SaveFile(filename string, data []byte, contentType string) (string, error) {
	ctx := context.Background()
	key := s3.key(filename)
	_, err := s3.Client.PutObject(ctx, s3.BucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s", s3.PublicURL, key), nil
}

func (s3 *S3Storage) ReadFile(filename string) ([]byte, error) {
	ctx := context.Background()
	obj, err := s3.Client.GetObject(ctx, s3.BucketName, s3.key(filename), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s3 *S3Storage) DeleteFile(path string) error {
	ctx := context.Background()
	return s3.Client.RemoveObject(ctx, s3.BucketName, s3.key(path), minio.RemoveObjectOptions{})
}
