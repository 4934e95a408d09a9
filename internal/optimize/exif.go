package optimize

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// orientationOf 读取 EXIF 方向标记，无法读取时返回 1（正常方向）
func orientationOf(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	orientation, err := tag.Int(0)
	if err != nil || orientation < 1 || orientation > 8 {
		return 1
	}
	return orientation
}

// applyOrientation 按 EXIF 方向旋转像素。重编码后输出不再携带
// 方向标记，下游不会二次旋转。
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// exifFields 提取选定的 EXIF 字段，解码失败时返回空表
func exifFields(data []byte) map[string]string {
	fields := make(map[string]string)

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return fields
	}

	for name, tag := range map[string]exif.FieldName{
		"exif_make":     exif.Make,
		"exif_model":    exif.Model,
		"exif_datetime": exif.DateTime,
	} {
		if t, err := x.Get(tag); err == nil {
			if s, err := t.StringVal(); err == nil {
				fields[name] = s
			}
		}
	}
	return fields
}
