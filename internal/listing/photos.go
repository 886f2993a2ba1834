package listing

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	listingdb "github.com/nao1215/retrouvafrik/internal/listing/db"
	"github.com/nao1215/retrouvafrik/pkg/storage"
)

// maxPhotoSize はアップロード可能な写真の最大サイズ（10MB）。
const maxPhotoSize int64 = 10 << 20

// maxPhotosPerListing は1投稿あたりの写真の上限。
const maxPhotosPerListing = 6

// photoExtensions は受け付ける画像形式と保存時の拡張子。
// 形式はファイル名やContent-Typeヘッダではなく内容から判定する。
var photoExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// photoKey は写真の保存キーを返す。
func photoKey(listingID, photoID, ext string) string {
	return fmt.Sprintf("listings/%s/%s%s", listingID, photoID, ext)
}

// thumbnailKey はサムネイルの保存キーを返す。
func thumbnailKey(listingID, photoID string) string {
	return fmt.Sprintf("listings/%s/%s_thumb.jpg", listingID, photoID)
}

// removePhotoFiles は写真とサムネイルをストレージから削除する。失敗はログのみ。
func (s *Server) removePhotoFiles(ctx context.Context, p listingdb.Photo) {
	for _, key := range []string{p.StorageKey, p.ThumbnailKey} {
		if key == "" {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn("写真ファイルの削除に失敗", zap.String("key", key), zap.Error(err))
		}
	}
}

// handleUploadPhoto は写真のアップロードを処理するハンドラを返す。
// マルチパートフォームのfileを受け取り、形式を判定して保存し、サムネイルを生成する。
func (s *Server) handleUploadPhoto() gin.HandlerFunc {
	return func(c *gin.Context) {
		l, ok := s.loadListing(c)
		if !ok {
			return
		}
		if err := authorize(c, l, false); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "seul l'auteur peut ajouter des photos"})
			return
		}
		if l.Status == listingdb.StatusResolved {
			c.JSON(http.StatusConflict, gin.H{"error": "une annonce résolue ne peut plus être modifiée"})
			return
		}

		ctx := c.Request.Context()
		count, err := s.queries.CountPhotos(ctx, l.ID)
		if err != nil {
			s.logger.Error("写真枚数の取得に失敗", zap.String("listing_id", l.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ajout de la photo impossible"})
			return
		}
		if count >= maxPhotosPerListing {
			c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("%d photos maximum par annonce", maxPhotosPerListing)})
			return
		}

		// フォームのオーバーヘッド分を見込んでボディ全体を制限する
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPhotoSize+(1<<20))
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo trop volumineuse (10 Mo maximum)"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "fichier manquant (champ « file »)"})
			return
		}
		defer file.Close()

		if header.Size > maxPhotoSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo trop volumineuse (10 Mo maximum)"})
			return
		}
		data, err := io.ReadAll(io.LimitReader(file, maxPhotoSize+1))
		if err != nil {
			s.logger.Error("アップロードファイルの読み込みに失敗", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "lecture du fichier impossible"})
			return
		}
		if int64(len(data)) > maxPhotoSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo trop volumineuse (10 Mo maximum)"})
			return
		}

		contentType := http.DetectContentType(data)
		ext, allowed := photoExtensions[contentType]
		if !allowed {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "format non pris en charge (JPEG, PNG, GIF ou WebP)"})
			return
		}

		photoID := uuid.New().String()
		photo := listingdb.Photo{
			ID:          photoID,
			ListingID:   l.ID,
			StorageKey:  photoKey(l.ID, photoID, ext),
			ContentType: contentType,
			CreatedAt:   s.now(),
		}
		photo.Size, err = s.store.Put(ctx, photo.StorageKey, contentType, bytes.NewReader(data))
		if err != nil {
			s.logger.Error("写真の保存に失敗", zap.String("key", photo.StorageKey), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enregistrement de la photo impossible"})
			return
		}

		// サムネイルは補助的なもので、生成できなくても元画像は登録する
		if thumb, err := makeThumbnail(data); err != nil {
			s.logger.Info("サムネイルを生成しませんでした", zap.String("photo_id", photoID), zap.Error(err))
		} else {
			key := thumbnailKey(l.ID, photoID)
			if _, err := s.store.Put(ctx, key, "image/jpeg", bytes.NewReader(thumb)); err != nil {
				s.logger.Warn("サムネイルの保存に失敗", zap.String("key", key), zap.Error(err))
			} else {
				photo.ThumbnailKey = key
			}
		}

		err = s.queries.CreatePhoto(ctx, listingdb.CreatePhotoParams{
			ID:           photo.ID,
			ListingID:    photo.ListingID,
			StorageKey:   photo.StorageKey,
			ThumbnailKey: photo.ThumbnailKey,
			ContentType:  photo.ContentType,
			Size:         photo.Size,
			CreatedAt:    photo.CreatedAt,
		})
		if err != nil {
			s.logger.Error("写真の登録に失敗", zap.String("listing_id", l.ID), zap.Error(err))
			s.removePhotoFiles(ctx, photo)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enregistrement de la photo impossible"})
			return
		}

		s.logger.Info("写真をアップロードしました",
			zap.String("listing_id", l.ID),
			zap.String("photo_id", photoID),
			zap.Int64("size", photo.Size),
		)
		c.JSON(http.StatusCreated, toPhotoResponse(photo))
	}
}

// handleDeletePhoto は写真の削除を処理するハンドラを返す。
func (s *Server) handleDeletePhoto() gin.HandlerFunc {
	return func(c *gin.Context) {
		l, ok := s.loadListing(c)
		if !ok {
			return
		}
		if err := authorize(c, l, true); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "seul l'auteur peut supprimer des photos"})
			return
		}

		ctx := c.Request.Context()
		photo, err := s.queries.GetPhoto(ctx, l.ID, c.Param("photo_id"))
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "photo introuvable"})
			return
		}
		if err != nil {
			s.logger.Error("写真の取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "suppression de la photo impossible"})
			return
		}
		if _, err := s.queries.DeletePhoto(ctx, l.ID, photo.ID); err != nil {
			s.logger.Error("写真の削除に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "suppression de la photo impossible"})
			return
		}
		s.removePhotoFiles(ctx, photo)

		c.JSON(http.StatusOK, gin.H{
			"message":  "photo supprimée",
			"photo_id": photo.ID,
		})
	}
}

// handleServePhoto は写真を配信するハンドラを返す。
// 登録済みのキーだけを配信し、非公開の投稿の写真は投稿者とスタッフにのみ返す。
func (s *Server) handleServePhoto() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := storage.CleanKey(strings.TrimPrefix(c.Param("key"), "/"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "clé de photo invalide"})
			return
		}

		ctx := c.Request.Context()
		photo, err := s.queries.GetPhotoByKey(ctx, key)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "photo introuvable"})
			return
		}
		if err != nil {
			s.logger.Error("写真の取得に失敗", zap.String("key", key), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lecture de la photo impossible"})
			return
		}
		l, err := s.queries.GetListing(ctx, photo.ListingID)
		if err != nil || !canView(c, l) {
			c.JSON(http.StatusNotFound, gin.H{"error": "photo introuvable"})
			return
		}

		rc, contentType, err := s.store.Open(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "photo introuvable"})
			return
		}
		if err != nil {
			s.logger.Error("写真の読み込みに失敗", zap.String("key", key), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lecture de la photo impossible"})
			return
		}
		defer rc.Close()

		if contentType == "" {
			contentType = photo.ContentType
		}
		cacheControl := "public, max-age=86400"
		if !l.IsPublic() {
			cacheControl = "private, no-store"
		}
		c.DataFromReader(http.StatusOK, -1, contentType, rc, map[string]string{
			"Cache-Control":          cacheControl,
			"X-Content-Type-Options": "nosniff",
		})
	}
}
