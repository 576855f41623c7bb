// Package imageinfo identifies GIF, PNG and JPEG images and reads their pixel
// dimensions straight from the header bytes, without decoding any pixels.
package imageinfo

import (
	"bytes"
	"encoding/binary"
)

// Format is the container format detected by Sniff.
type Format int

const (
	Unknown Format = iota
	GIF
	PNG
	JPEG
)

// String returns a short lowercase name for the format.
func (f Format) String() string {
	switch f {
	case GIF:
		return "gif"
	case PNG:
		return "png"
	case JPEG:
		return "jpeg"
	default:
		return "unknown"
	}
}

// MIMEType returns the content type for the format, or an empty string for Unknown.
func (f Format) MIMEType() string {
	switch f {
	case GIF:
		return "image/gif"
	case PNG:
		return "image/png"
	case JPEG:
		return "image/jpeg"
	default:
		return ""
	}
}

// ImageInfo is the result of sniffing a buffer. Width and Height are -1 when
// they could not be determined.
type ImageInfo struct {
	Format Format `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// HasDimensions reports whether both dimensions are known and positive.
func (i ImageInfo) HasDimensions() bool {
	return i.Width > 0 && i.Height > 0
}

// AspectRatio returns width/height, or 0 when the dimensions are not usable.
func (i ImageInfo) AspectRatio() float64 {
	if !i.HasDimensions() {
		return 0
	}
	return float64(i.Width) / float64(i.Height)
}

var (
	gif87a       = []byte("GIF87a")
	gif89a       = []byte("GIF89a")
	pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
	pngIHDR      = []byte("IHDR")
)

const (
	markerPadding = 0xFF
	markerSOF0    = 0xC0
	markerSOF3    = 0xC3
	markerSOS     = 0xDA
)

// Sniff classifies data and extracts its dimensions. It never fails: anything
// it cannot recognize comes back as Unknown with both dimensions set to -1.
// A JPEG whose frame header cannot be located is still reported as JPEG.
func Sniff(data []byte) ImageInfo {
	size := len(data)

	switch {
	case size >= 10 && (bytes.Equal(data[:6], gif87a) || bytes.Equal(data[:6], gif89a)):
		return ImageInfo{
			Format: GIF,
			Width:  int(binary.LittleEndian.Uint16(data[6:8])),
			Height: int(binary.LittleEndian.Uint16(data[8:10])),
		}

	case size >= 24 && bytes.HasPrefix(data, pngSignature) && bytes.Equal(data[12:16], pngIHDR):
		return ImageInfo{
			Format: PNG,
			Width:  int(binary.BigEndian.Uint32(data[16:20])),
			Height: int(binary.BigEndian.Uint32(data[20:24])),
		}

	// Older PNG layout without the IHDR chunk header at offset 8. Real encoders
	// have not produced this since PNG 1.0, so this branch is a fallback only.
	case size >= 16 && bytes.HasPrefix(data, pngSignature):
		return ImageInfo{
			Format: PNG,
			Width:  int(binary.BigEndian.Uint32(data[8:12])),
			Height: int(binary.BigEndian.Uint32(data[12:16])),
		}

	case size >= 2 && data[0] == 0xFF && data[1] == 0xD8:
		info := ImageInfo{Format: JPEG, Width: -1, Height: -1}
		if w, h, ok := jpegDimensions(data); ok {
			info.Width, info.Height = w, h
		}
		return info
	}

	return ImageInfo{Format: Unknown, Width: -1, Height: -1}
}

// jpegDimensions walks the marker segments following the SOI marker until it
// finds a baseline, extended, progressive or lossless frame header (SOF0-SOF3).
// ok is false when the scan reaches SOS first, runs off the end of the buffer,
// or meets a segment length that cannot be honoured.
func jpegDimensions(data []byte) (width, height int, ok bool) {
	r := jpegReader{buf: data, pos: 2}

	b, more := r.byte()
	for more && b != markerSOS {
		for b != markerPadding {
			if b, more = r.byte(); !more {
				return 0, 0, false
			}
		}
		for b == markerPadding {
			if b, more = r.byte(); !more {
				return 0, 0, false
			}
		}
		if b == markerSOS {
			return 0, 0, false
		}

		if b >= markerSOF0 && b <= markerSOF3 {
			// segment length (2) and sample precision (1)
			if !r.skip(3) {
				return 0, 0, false
			}
			h, okH := r.uint16()
			w, okW := r.uint16()
			if !okH || !okW {
				return 0, 0, false
			}
			return int(w), int(h), true
		}

		length, okLen := r.uint16()
		if !okLen || length < 2 || !r.skip(int(length)-2) {
			return 0, 0, false
		}
		b, more = r.byte()
	}

	return 0, 0, false
}

// jpegReader is a bounds-checked cursor over a byte slice.
type jpegReader struct {
	buf []byte
	pos int
}

func (r *jpegReader) byte() (byte, bool) {
	if r.pos >= len(r.buf) {
		return 0, false
	}
	b := r.buf[r.pos]
	r.pos++
	return b, true
}

func (r *jpegReader) uint16() (uint16, bool) {
	if len(r.buf)-r.pos < 2 {
		return 0, false
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, true
}

func (r *jpegReader) skip(n int) bool {
	if n < 0 || len(r.buf)-r.pos < n {
		return false
	}
	r.pos += n
	return true
}
