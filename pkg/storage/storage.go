// Package storage は投稿写真の保存先を抽象化する。
//
// ローカルディスク（LocalStore）とGoogle Cloud Storage（GCSStore）の
// 2つの実装を持つ。キーは "listings/<listing_id>/<photo_id>.jpg" のような
// スラッシュ区切りの相対パスで、".." や絶対パスは受け付けない。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/nao1215/retrouvafrik/pkg/config"
)

// ErrNotFound は指定キーのオブジェクトが存在しないことを表す。
var ErrNotFound = errors.New("storage: object not found")

// ErrInvalidKey はキーの形式が不正であることを表す。
var ErrInvalidKey = errors.New("storage: invalid key")

// Store は写真の保存先。
type Store interface {
	// Put はrの内容をkeyに保存し、書き込んだバイト数を返す。
	Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error)
	// Open はkeyの内容を読み出す。呼び出し側がCloseする。
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
	// Delete はkeyを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error
}

// CleanKey はキーを検証して正規化する。
func CleanKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cleaned := path.Clean(key)
	if cleaned != key || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// FromConfig は設定に応じたStoreを生成する。
func FromConfig(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "local":
		return NewLocalStore(cfg.Dir)
	case "gcs":
		return NewGCSStore(ctx, cfg.Bucket)
	default:
		return nil, fmt.Errorf("未知のストレージドライバです: %s", cfg.Driver)
	}
}
