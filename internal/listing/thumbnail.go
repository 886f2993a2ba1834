package listing

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	// image/png と image/gif、WebPはデコード用に副作用インポートする。
	_ "image/gif"
	_ "image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// thumbnailSize はサムネイル画像の幅・高さ（ピクセル）。
const thumbnailSize = 320

// maxThumbnailPixels はサムネイルを生成する元画像の画素数の上限（40メガピクセル）。
// デコーダはヘッダの幅と高さで画素バッファを確保するため、ファイルサイズの上限だけではメモリを抑えられない。
const maxThumbnailPixels = 40_000_000

// errImageTooLarge は画像の画素数がmaxThumbnailPixelsを超える場合に返される。
var errImageTooLarge = errors.New("画像の画素数が上限を超えています")

// makeThumbnail は画像データからJPEGのサムネイルを生成する。
// JPEG、PNG、GIF、WebPをデコードできる。
// デコード前にヘッダの寸法を確認し、画素数が上限を超える画像は扱わない。
func makeThumbnail(data []byte) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("画像ヘッダの読み込みに失敗: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("画像のサイズが0です")
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxThumbnailPixels {
		return nil, fmt.Errorf("%w: %dx%d", errImageTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("画像のデコードに失敗: %w", err)
	}
	if b := src.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("画像のサイズが0です")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, fitInto(src, thumbnailSize, thumbnailSize), &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("サムネイルのエンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}

// fitInto はアスペクト比を保ったまま縮小し、width×heightの白背景の中央に配置する。
// 元画像が小さい場合は拡大しない。
func fitInto(src image.Image, width, height int) *image.RGBA {
	srcBounds := src.Bounds()
	srcW := srcBounds.Dx()
	srcH := srcBounds.Dy()

	scale := math.Min(float64(width)/float64(srcW), float64(height)/float64(srcH))
	if scale > 1 {
		scale = 1
	}
	newW := max(int(float64(srcW)*scale), 1)
	newH := max(int(float64(srcH)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)

	offsetX := (width - newW) / 2
	offsetY := (height - newH) / 2
	target := image.Rect(offsetX, offsetY, offsetX+newW, offsetY+newH)

	if newW == srcW && newH == srcH {
		draw.Draw(dst, target, src, srcBounds.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, target, src, srcBounds, draw.Over, nil)
	return dst
}
