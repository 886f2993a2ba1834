package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestCleanKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "listings/abc/1.jpg", want: "listings/abc/1.jpg"},
		{key: "/listings/abc/1.jpg", want: "listings/abc/1.jpg"},
		{key: "", wantErr: true},
		{key: "../etc/passwd", wantErr: true},
		{key: "listings/../../etc/passwd", wantErr: true},
		{key: "listings//1.jpg", wantErr: true},
		{key: "listings\\1.jpg", wantErr: true},
		{key: "..", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Parallel()
			got, err := CleanKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CleanKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidKey) {
				t.Errorf("CleanKey(%q) error = %v, want ErrInvalidKey", tt.key, err)
			}
			if got != tt.want {
				t.Errorf("CleanKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestLocalStore(t *testing.T) {
	t.Parallel()

	t.Run("保存したファイルを読み出して削除できること", func(t *testing.T) {
		t.Parallel()

		store, err := NewLocalStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewLocalStore()でエラーが発生: %v", err)
		}
		ctx := context.Background()

		n, err := store.Put(ctx, "listings/l1/p1.jpg", "image/jpeg", strings.NewReader("jpeg-bytes"))
		if err != nil {
			t.Fatalf("Put()でエラーが発生: %v", err)
		}
		if n != int64(len("jpeg-bytes")) {
			t.Errorf("書き込みバイト数 = %d, want %d", n, len("jpeg-bytes"))
		}

		rc, contentType, err := store.Open(ctx, "listings/l1/p1.jpg")
		if err != nil {
			t.Fatalf("Open()でエラーが発生: %v", err)
		}
		body, _ := io.ReadAll(rc)
		rc.Close()
		if string(body) != "jpeg-bytes" {
			t.Errorf("内容 = %q, want %q", body, "jpeg-bytes")
		}
		if contentType != "image/jpeg" {
			t.Errorf("Content-Type = %q, want image/jpeg", contentType)
		}

		if err := store.Delete(ctx, "listings/l1/p1.jpg"); err != nil {
			t.Fatalf("Delete()でエラーが発生: %v", err)
		}
		if _, _, err := store.Open(ctx, "listings/l1/p1.jpg"); !errors.Is(err, ErrNotFound) {
			t.Errorf("削除後のOpen() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("存在しないキーの削除はエラーにならないこと", func(t *testing.T) {
		t.Parallel()

		store, err := NewLocalStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewLocalStore()でエラーが発生: %v", err)
		}
		if err := store.Delete(context.Background(), "listings/none.jpg"); err != nil {
			t.Errorf("Delete() error = %v, want nil", err)
		}
	})

	t.Run("ルート外へのパスは拒否されること", func(t *testing.T) {
		t.Parallel()

		store, err := NewLocalStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewLocalStore()でエラーが発生: %v", err)
		}
		_, err = store.Put(context.Background(), "../escape.jpg", "image/jpeg", strings.NewReader("x"))
		if !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put() error = %v, want ErrInvalidKey", err)
		}
	})
}
