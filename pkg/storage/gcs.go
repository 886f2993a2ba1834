package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
)

// GCSStore はGoogle Cloud Storageのバケットに写真を保存する。
// 認証情報はApplication Default Credentialsから取得する。
type GCSStore struct {
	client *gcs.Client
	bucket string
}

// NewGCSStore はGCSクライアントを生成する。
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("GCSクライアントの生成に失敗: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Put はオブジェクトを書き込む。Closeが成功するまで書き込みは確定しない。
func (s *GCSStore) Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	key, err := CleanKey(key)
	if err != nil {
		return 0, err
	}
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=86400"

	written, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return 0, fmt.Errorf("GCSへの書き込みに失敗: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("GCSへの書き込み確定に失敗: %w", err)
	}
	return written, nil
}

// Open はオブジェクトを読み出す。
func (s *GCSStore) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, "", err
	}
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("GCSからの読み込みに失敗: %w", err)
	}
	return r, r.Attrs.ContentType, nil
}

// Delete はオブジェクトを削除する。
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	err = s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("GCSからの削除に失敗: %w", err)
	}
	return nil
}

// Close はGCSクライアントを閉じる。
func (s *GCSStore) Close() error {
	return s.client.Close()
}
