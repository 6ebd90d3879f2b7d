package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"greenly-backend/internal/utils"
	"greenly-backend/pkg/logger"
)

// 单张图片的体积上限，超过直接放弃并使用占位图
const maxImageBytes = 16 << 20

// resolvedImage 统一转成 JPEG 之后交给 PDF 嵌入
type resolvedImage struct {
	Data        []byte
	Width       int
	Height      int
	Placeholder bool
}

// imageResolver 把 data-URI 或远程 URL 解析成可嵌入的光栅图。
// 每张图有独立超时，任何失败都换成灰色占位图，不让单张坏图拖垮整份报告
type imageResolver struct {
	client  *http.Client
	timeout time.Duration
}

func newImageResolver(timeout time.Duration) *imageResolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &imageResolver{
		client:  utils.NewHTTPClient(timeout),
		timeout: timeout,
	}
}

// Resolve 解析图片来源，失败时返回占位图而不是错误
func (r *imageResolver) Resolve(ctx context.Context, src string) resolvedImage {
	img, err := r.resolve(ctx, src)
	if err != nil {
		logger.Warnf("Image resolve failed, using placeholder: %v", err)
		return placeholderImage()
	}
	return img
}

func (r *imageResolver) resolve(ctx context.Context, src string) (resolvedImage, error) {
	var raw []byte
	var err error

	switch {
	case strings.HasPrefix(src, "data:"):
		raw, err = decodeDataURI(src)
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		raw, err = r.download(ctx, src)
	default:
		return resolvedImage{}, fmt.Errorf("unsupported image source")
	}
	if err != nil {
		return resolvedImage{}, err
	}

	decoded, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return resolvedImage{}, fmt.Errorf("decode image: %w", err)
	}

	return encodeJPEG(decoded)
}

func (r *imageResolver) download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if len(raw) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	return raw, nil
}

func decodeDataURI(src string) ([]byte, error) {
	comma := strings.IndexByte(src, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data URI")
	}
	meta, payload := src[:comma], src[comma+1:]

	if !strings.Contains(meta, "base64") {
		return nil, fmt.Errorf("data URI is not base64")
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data URI: %w", err)
	}
	if len(raw) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	return raw, nil
}

// encodeJPEG 重绘到 RGBA 再编码，抹掉 alpha 通道
func encodeJPEG(src image.Image) (resolvedImage, error) {
	bounds := src.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(rgba, bounds, src, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: 85}); err != nil {
		return resolvedImage{}, fmt.Errorf("encode jpeg: %w", err)
	}

	return resolvedImage{
		Data:   buf.Bytes(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// placeholderImage 400×300 的灰色占位图
func placeholderImage() resolvedImage {
	const w, h = 400, 300

	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	grey := color.RGBA{R: 0xE0, G: 0xE0, B: 0xE0, A: 0xFF}
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(grey), image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: 85}); err != nil {
		// 纯内存编码不应失败
		logger.Errorf("Placeholder encode failed: %v", err)
	}

	return resolvedImage{
		Data:        buf.Bytes(),
		Width:       w,
		Height:      h,
		Placeholder: true,
	}
}
