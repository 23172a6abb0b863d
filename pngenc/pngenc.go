// Package pngenc writes truecolor-with-alpha PNG files chunk by chunk.
//
// Output is always a signature followed by exactly one IHDR, one IDAT and one
// IEND chunk. Scanlines are unfiltered (filter type 0) and compressed as a
// single zlib stream.
package pngenc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/antoinefink/icongen/internal/binbuf"
)

// Chunk types.
const (
	TypeIHDR = "IHDR"
	TypeIDAT = "IDAT"
	TypeIEND = "IEND"
)

const (
	bitDepth       = 8
	colorTypeRGBA  = 6
	filterTypeNone = 0
)

// ErrEmptyImage is returned for images with no pixels.
var ErrEmptyImage = errors.New("pngenc: image has zero width or height")

var signature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Signature returns a copy of the 8-byte PNG file signature.
func Signature() []byte {
	return append([]byte(nil), signature...)
}

type ihdr struct {
	Width             uint32
	Height            uint32
	BitDepth          byte
	ColorType         byte
	CompressionMethod byte
	FilterMethod      byte
	InterlaceMethod   byte
}

// Chunk encodes one chunk: big-endian payload length, the 4-byte type, the
// payload and a big-endian CRC-32 of type and payload.
func Chunk(typ string, data []byte) []byte {
	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(data)

	// Fixed-size values into a bytes.Buffer cannot fail.
	out, _ := binbuf.New(binary.BigEndian).
		Put(uint32(len(data))).
		Raw([]byte(typ)).
		Raw(data).
		Put(crc.Sum32()).
		Bytes()
	return out
}

// Scanlines returns the uncompressed image data: one filter byte followed by
// width*4 NRGBA bytes for every row, top to bottom.
func Scanlines(m image.Image) []byte {
	b := m.Bounds()
	stride := 1 + b.Dx()*4
	raw := make([]byte, 0, stride*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		raw = append(raw, filterTypeNone)
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(m.At(x, y)).(color.NRGBA)
			raw = append(raw, c.R, c.G, c.B, c.A)
		}
	}
	return raw
}

func header(width, height int) ([]byte, error) {
	return binbuf.New(binary.BigEndian).Put(ihdr{
		Width:     uint32(width),
		Height:    uint32(height),
		BitDepth:  bitDepth,
		ColorType: colorTypeRGBA,
	}).Bytes()
}

func deflate(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes m to w as an 8-bit RGBA PNG.
func Encode(w io.Writer, m image.Image) error {
	b := m.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return ErrEmptyImage
	}

	hdr, err := header(b.Dx(), b.Dy())
	if err != nil {
		return fmt.Errorf("pngenc: header: %w", err)
	}
	idat, err := deflate(Scanlines(m))
	if err != nil {
		return fmt.Errorf("pngenc: compress: %w", err)
	}

	out := Signature()
	out = append(out, Chunk(TypeIHDR, hdr)...)
	out = append(out, Chunk(TypeIDAT, idat)...)
	out = append(out, Chunk(TypeIEND, nil)...)

	_, err = w.Write(out)
	return err
}
