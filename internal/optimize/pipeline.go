package optimize

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strconv"

	"github.com/aikara/image-vault/internal/errs"
	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"

	// 注册 bmp/webp 解码器
	_ "golang.org/x/image/webp"
)

const (
	// DefaultMaxDimension 长边像素上限
	DefaultMaxDimension = 2048
	// DefaultJPEGQuality 有损重编码质量因子
	DefaultJPEGQuality = 85
)

// Pipeline 图片优化流水线：解码 → 色彩归一 → 缩放 → 重编码 →
// 元数据提取 → 输出。线性状态机，无分支循环。
type Pipeline struct {
	maxDimension int
	jpegQuality  int
}

// New 创建流水线，非法参数回退默认值
func New(maxDimension, jpegQuality int) *Pipeline {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = DefaultJPEGQuality
	}
	return &Pipeline{maxDimension: maxDimension, jpegQuality: jpegQuality}
}

// Result 流水线输出
type Result struct {
	Data      []byte
	Width     int
	Height    int
	Format    string
	ColorMode string
	// Optimized 是否执行了重编码（webp 无纯 Go 编码器，原样透传时为 false）
	Optimized bool
	Metadata  map[string]string
}

// Process 处理上传字节。optimize=false 时跳过归一/缩放/重编码，
// 仅解码提取尺寸与元数据用于记录。
func (p *Pipeline) Process(data []byte, optimize bool) (*Result, error) {
	// Decode：内容嗅探通过不代表可解码，失败归类为不支持的格式
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errs.UnsupportedFormat("failed to decode image", err)
	}

	orientation := orientationOf(data)

	if !optimize {
		return p.passthrough(data, img, format, orientation), nil
	}

	// webp 只有解码器，无法重编码，诚实透传
	if format == "webp" {
		return p.passthrough(data, img, format, orientation), nil
	}

	// 方向归一：按 EXIF 旋转像素，重编码自然剥离标记
	img = applyOrientation(img, orientation)

	// NormalizeColorMode：目标编码不支持透明时拍平到白色背景
	if hasAlpha(img) && !formatSupportsAlpha(format) {
		img = flattenOnWhite(img)
	}

	// Resize：仅缩小，长边对齐上限，保持纵横比
	bounds := img.Bounds()
	if bounds.Dx() > p.maxDimension || bounds.Dy() > p.maxDimension {
		img = imaging.Fit(img, p.maxDimension, p.maxDimension, imaging.Lanczos)
	}

	// Recompress + Encode
	encoded, err := p.encode(img, format)
	if err != nil {
		return nil, err
	}

	final := img.Bounds()
	result := &Result{
		Data:      encoded,
		Width:     final.Dx(),
		Height:    final.Dy(),
		Format:    format,
		ColorMode: colorModeOf(img),
		Optimized: true,
	}
	result.Metadata = p.buildMetadata(data, result, orientation)
	return result, nil
}

// passthrough 不重编码，只提取记录所需信息
func (p *Pipeline) passthrough(data []byte, img image.Image, format string, orientation int) *Result {
	bounds := img.Bounds()
	result := &Result{
		Data:      data,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Format:    format,
		ColorMode: colorModeOf(img),
		Optimized: false,
	}
	result.Metadata = p.buildMetadata(data, result, orientation)
	return result
}

// encode 按原始格式重编码。有损格式用质量因子，
// 无损格式用其原生压缩设置，不做质量缩放。
func (p *Pipeline) encode(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.jpegQuality})
	case "png":
		encoder := png.Encoder{CompressionLevel: png.BestCompression}
		err = encoder.Encode(&buf, img)
	case "gif":
		err = gif.Encode(&buf, img, &gif.Options{NumColors: 256})
	case "bmp":
		err = bmp.Encode(&buf, img)
	default:
		return nil, errs.UnsupportedFormat(fmt.Sprintf("cannot re-encode format %q", format), nil)
	}
	if err != nil {
		return nil, errs.Internal("failed to encode image", err)
	}
	return buf.Bytes(), nil
}

// buildMetadata 组装记录用元数据
func (p *Pipeline) buildMetadata(original []byte, r *Result, orientation int) map[string]string {
	metadata := exifFields(original)
	metadata["format"] = r.Format
	metadata["color_mode"] = r.ColorMode
	metadata["width"] = strconv.Itoa(r.Width)
	metadata["height"] = strconv.Itoa(r.Height)
	if r.Optimized {
		// 像素已按方向归一，输出不再携带方向标记
		metadata["orientation"] = "1"
	} else {
		metadata["orientation"] = strconv.Itoa(orientation)
	}
	return metadata
}

// formatSupportsAlpha 目标编码是否支持透明通道
func formatSupportsAlpha(format string) bool {
	switch format {
	case "png", "gif", "webp":
		return true
	}
	return false
}

// hasAlpha 图片是否含非不透明像素通道
func hasAlpha(img image.Image) bool {
	switch img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64, *image.Paletted:
		return !img.Bounds().Empty() && !isFullyOpaque(img)
	}
	return false
}

// isFullyOpaque 检查所有像素是否完全不透明
func isFullyOpaque(img image.Image) bool {
	type opaquer interface{ Opaque() bool }
	if o, ok := img.(opaquer); ok {
		return o.Opaque()
	}
	return true
}

// flattenOnWhite 拍平到不透明白色背景
func flattenOnWhite(img image.Image) image.Image {
	bounds := img.Bounds()
	background := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	return imaging.Overlay(background, img, image.Pt(0, 0), 1.0)
}

// colorModeOf 报告解码后的色彩模式
func colorModeOf(img image.Image) string {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return "grayscale"
	case *image.CMYK:
		return "cmyk"
	case *image.Paletted:
		return "palette"
	case *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64:
		if isFullyOpaque(img) {
			return "rgb"
		}
		return "rgba"
	case *image.YCbCr:
		return "ycbcr"
	default:
		return "rgb"
	}
}
