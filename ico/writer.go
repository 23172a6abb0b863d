package ico

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"io"

	"github.com/antoinefink/icongen/internal/binbuf"
	"github.com/antoinefink/icongen/pngenc"
)

// ErrImageTooLarge is returned when the image dimensions exceed 256x256 pixels.
var ErrImageTooLarge = errors.New("ico: image dimensions must not exceed 256x256 pixels")

const (
	headSize     = 6
	direntrySize = 16
	dibSize      = 40

	// offset of the first (and only) image block
	dataOffset = headSize + direntrySize
)

// bitmapInfo is a BITMAPINFOHEADER.
type bitmapInfo struct {
	Size          uint32
	Width         int32
	Height        int32 // XOR + AND mask, i.e. twice the image height
	Planes        uint16
	BitCount      uint16
	Compression   uint32
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
}

// EncodeBitmap writes im as a single-entry ICO holding an uncompressed 32-bit
// DIB followed by an all-opaque AND mask.
//
// The directory entry stores width and height as single bytes, so 256 is
// written as 0 and larger dimensions wrap. Planes and bit count in the entry
// are left at 0; the DIB header carries the real values.
func EncodeBitmap(w io.Writer, im image.Image) error {
	b := im.Bounds()
	width, height := b.Dx(), b.Dy()

	info := bitmapInfo{
		Size:     dibSize,
		Width:    int32(width),
		Height:   int32(height * 2),
		Planes:   1,
		BitCount: 32,
	}

	img := binbuf.New(binary.LittleEndian).Put(info)
	img.Raw(bitmapPixels(im))
	img.Raw(make([]byte, maskStride(width)*height))

	data, err := img.Bytes()
	if err != nil {
		return err
	}

	out, err := binbuf.New(binary.LittleEndian).
		Put(head{Zero: 0, Type: 1, Number: 1}).
		Put(direntry{
			Width:  uint8(width),
			Height: uint8(height),
			Size:   uint32(len(data)),
			Offset: dataOffset,
		}).
		Raw(data).
		Bytes()
	if err != nil {
		return err
	}

	_, err = w.Write(out)
	return err
}

// bitmapPixels lays out im as BGRA rows, bottom row first. 32-bit rows are
// always 4-byte aligned, so no row padding is needed.
func bitmapPixels(im image.Image) []byte {
	b := im.Bounds()
	px := make([]byte, 0, b.Dx()*b.Dy()*4)
	for y := b.Max.Y - 1; y >= b.Min.Y; y-- {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(im.At(x, y)).(color.NRGBA)
			px = append(px, c.B, c.G, c.R, c.A)
		}
	}
	return px
}

// maskStride is the byte length of one 1-bit AND mask row, padded to 32 bits.
func maskStride(width int) int {
	return (width + 31) / 32 * 4
}

// Encode writes im as a single-entry ICO with a PNG payload.
func Encode(w io.Writer, im image.Image) error {
	b := im.Bounds()

	if b.Dx() > 256 || b.Dy() > 256 {
		return ErrImageTooLarge
	}

	pngbuffer := new(bytes.Buffer)
	if err := pngenc.Encode(pngbuffer, im); err != nil {
		return err
	}

	entry := direntry{
		Width:  uint8(b.Dx()),
		Height: uint8(b.Dy()),
		Plane:  1,
		Bits:   32,
		Size:   uint32(pngbuffer.Len()),
		Offset: dataOffset,
	}

	bb, err := binbuf.New(binary.LittleEndian).
		Put(head{0, 1, 1}).
		Put(entry).
		Bytes()
	if err != nil {
		return err
	}

	if _, err = w.Write(bb); err != nil {
		return err
	}
	_, err = w.Write(pngbuffer.Bytes())
	return err
}
