// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package imaging inspects downloaded cover images and renders thumbnails
// with pure Go codecs.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp" // WebP decoder
)

// MIME types of decodable cover images.
const (
	MimeTypeJPEG = "image/jpeg"
	MimeTypePNG  = "image/png"
	MimeTypeGIF  = "image/gif"
	MimeTypeWebP = "image/webp"
)

// Thumbnail bounds for cover previews.
const (
	ThumbnailWidth   = 400
	ThumbnailHeight  = 300
	ThumbnailQuality = 80
)

// ErrUnsupportedFormat is returned for data that is not a JPEG, PNG, GIF
// or WebP image.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Image is a decoded cover with EXIF orientation already applied.
type Image struct {
	img      image.Image
	Format   string
	MimeType string
	Width    int
	Height   int
}

// Variant is an encoded resized copy of an Image.
type Variant struct {
	Width  int
	Height int
	Data   []byte
}

// Decode detects the format of data, decodes it and applies the EXIF
// orientation so Width and Height describe the image as displayed.
func Decode(data []byte) (*Image, error) {
	format := detectFormat(data)
	if format == "" {
		return nil, ErrUnsupportedFormat
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if format == "jpeg" {
		img = applyOrientation(img, readExifOrientation(bytes.NewReader(data)))
	}

	b := img.Bounds()
	return &Image{
		img:      img,
		Format:   format,
		MimeType: formatToMimeType(format),
		Width:    b.Dx(),
		Height:   b.Dy(),
	}, nil
}

// Thumbnail fits the image inside width x height. Images already inside
// the bounds are re-encoded at their own size.
func (i *Image) Thumbnail(width, height, quality int) (*Variant, error) {
	resized := i.img
	if i.Width > width || i.Height > height {
		resized = imaging.Fit(i.img, width, height, imaging.Lanczos)
	}

	data, err := encodeImage(resized, i.Format, quality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	b := resized.Bounds()
	return &Variant{Width: b.Dx(), Height: b.Dy(), Data: data}, nil
}

// DetectMimeType sniffs the MIME type of data, without parameters.
func DetectMimeType(data []byte) string {
	contentType := http.DetectContentType(data)
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	return contentType
}

// IsImage reports whether mimeType is one of the decodable image types.
func IsImage(mimeType string) bool {
	switch mimeType {
	case MimeTypeJPEG, MimeTypePNG, MimeTypeGIF, MimeTypeWebP:
		return true
	default:
		return false
	}
}

// readExifOrientation returns the EXIF orientation tag or 1 (normal).
func readExifOrientation(r io.Reader) int {
	x, err := exif.Decode(r)
	if err != nil {
		return 1
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}

	orientation, err := tag.Int(0)
	if err != nil {
		return 1
	}

	return orientation
}

// applyOrientation undoes the camera rotation recorded in EXIF:
// 2 flip H, 3 rotate 180, 4 flip V, 5 transpose, 6 rotate 90 CW,
// 7 transverse, 8 rotate 90 CCW.
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

// encodeImage encodes img in format. WebP has no pure Go encoder, so WebP
// sources are written as JPEG.
func encodeImage(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// detectFormat detects the image format from raw bytes.
func detectFormat(data []byte) string {
	contentType := http.DetectContentType(data)
	// TIFF is rejected outright (CVE-2023-36308 in disintegration/imaging)
	if strings.Contains(contentType, "tiff") {
		return ""
	}
	switch {
	case strings.Contains(contentType, "jpeg"):
		return "jpeg"
	case strings.Contains(contentType, "png"):
		return "png"
	case strings.Contains(contentType, "gif"):
		return "gif"
	case strings.Contains(contentType, "webp"):
		return "webp"
	default:
		return ""
	}
}

func formatToMimeType(format string) string {
	switch format {
	case "jpeg":
		return MimeTypeJPEG
	case "png":
		return MimeTypePNG
	case "gif":
		return MimeTypeGIF
	case "webp":
		return MimeTypeWebP
	default:
		return "application/octet-stream"
	}
}

// ThumbnailExt is the file extension matching encodeImage's output for format.
func ThumbnailExt(format string) string {
	switch format {
	case "png":
		return ".png"
	case "gif":
		return ".gif"
	default:
		return ".jpg"
	}
}
