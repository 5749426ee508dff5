// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestImage creates a simple test image with the given dimensions.
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, createTestImage(width, height)))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, createTestImage(width, height), nil))
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	img, err := Decode(encodePNG(t, 64, 32))
	require.NoError(t, err)

	assert.Equal(t, "png", img.Format)
	assert.Equal(t, MimeTypePNG, img.MimeType)
	assert.Equal(t, 64, img.Width)
	assert.Equal(t, 32, img.Height)
}

func TestDecode_Unsupported(t *testing.T) {
	tests := map[string][]byte{
		"text":  []byte("definitely not an image"),
		"tiff":  {0x49, 0x49, 0x2A, 0x00, 0x08, 0x00, 0x00, 0x00},
		"empty": {},
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data)
			assert.ErrorIs(t, err, ErrUnsupportedFormat)
		})
	}
}

func TestDecode_CorruptJPEG(t *testing.T) {
	data := encodeJPEG(t, 20, 20)[:40]
	_, err := Decode(data)
	assert.Error(t, err)
}

func TestThumbnail_FitsBounds(t *testing.T) {
	img, err := Decode(encodeJPEG(t, 1200, 600))
	require.NoError(t, err)

	thumb, err := img.Thumbnail(ThumbnailWidth, ThumbnailHeight, ThumbnailQuality)
	require.NoError(t, err)

	assert.Equal(t, 400, thumb.Width)
	assert.Equal(t, 200, thumb.Height)

	decoded, format, err := image.Decode(bytes.NewReader(thumb.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 400, decoded.Bounds().Dx())
}

func TestThumbnail_SmallImageKeepsSize(t *testing.T) {
	img, err := Decode(encodePNG(t, 50, 40))
	require.NoError(t, err)

	thumb, err := img.Thumbnail(ThumbnailWidth, ThumbnailHeight, ThumbnailQuality)
	require.NoError(t, err)

	assert.Equal(t, 50, thumb.Width)
	assert.Equal(t, 40, thumb.Height)
	assert.Equal(t, MimeTypePNG, DetectMimeType(thumb.Data))
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg magic bytes", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "jpeg"},
		{"png magic bytes", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "png"},
		{"gif magic bytes", []byte{0x47, 0x49, 0x46, 0x38, 0x39, 0x61}, "gif"},
		{"unknown", []byte{0x00, 0x01, 0x02, 0x03}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectFormat(tt.data); got != tt.want {
				t.Errorf("detectFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage(MimeTypeJPEG))
	assert.True(t, IsImage(MimeTypeWebP))
	assert.False(t, IsImage("application/pdf"))
	assert.False(t, IsImage(""))
}

func TestThumbnailExt(t *testing.T) {
	assert.Equal(t, ".jpg", ThumbnailExt("jpeg"))
	assert.Equal(t, ".jpg", ThumbnailExt("webp"))
	assert.Equal(t, ".png", ThumbnailExt("png"))
	assert.Equal(t, ".gif", ThumbnailExt("gif"))
}

func TestApplyOrientation_SwapsDimensions(t *testing.T) {
	img := createTestImage(20, 10)

	for orientation := 0; orientation <= 9; orientation++ {
		result := applyOrientation(img, orientation)
		require.NotNil(t, result)

		b := result.Bounds()
		switch orientation {
		case 5, 6, 7, 8:
			assert.Equal(t, 10, b.Dx(), "orientation %d", orientation)
			assert.Equal(t, 20, b.Dy(), "orientation %d", orientation)
		default:
			assert.Equal(t, 20, b.Dx(), "orientation %d", orientation)
			assert.Equal(t, 10, b.Dy(), "orientation %d", orientation)
		}
	}
}
