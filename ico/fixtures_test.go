package ico

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"testing"

	"github.com/antoinefink/icongen/pngenc"
)

// createTestImage creates a gradient square, opaque everywhere.
func createTestImage(size int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r := uint8((x * 255) / size)
			g := uint8((y * 255) / size)
			img.SetNRGBA(x, y, color.NRGBA{
				R: (c.R + r) / 2,
				G: (c.G + g) / 2,
				B: c.B,
				A: 255,
			})
		}
	}
	return img
}

// icoFile assembles a file from already encoded entry payloads.
func icoFile(t *testing.T, entries []direntry, payloads [][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	write := func(v any) {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatal(err)
		}
	}

	write(head{Zero: 0, Type: 1, Number: uint16(len(entries))})
	offset := uint32(headSize + direntrySize*len(entries))
	for i := range entries {
		entries[i].Size = uint32(len(payloads[i]))
		entries[i].Offset = offset
		offset += entries[i].Size
		write(entries[i])
	}
	for _, p := range payloads {
		buf.Write(p)
	}
	return buf.Bytes()
}

func pngPayload(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := pngenc.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// pngICO returns a file with one PNG entry per image.
func pngICO(t *testing.T, imgs ...image.Image) []byte {
	t.Helper()

	entries := make([]direntry, len(imgs))
	payloads := make([][]byte, len(imgs))
	for i, img := range imgs {
		b := img.Bounds()
		entries[i] = direntry{Width: uint8(b.Dx()), Height: uint8(b.Dy()), Plane: 1, Bits: 32}
		payloads[i] = pngPayload(t, img)
	}
	return icoFile(t, entries, payloads)
}

func dibHeader(size, bits int, numColors uint32) []byte {
	hdr := make([]byte, dibSize)
	binary.LittleEndian.PutUint32(hdr[0:4], dibSize)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(size))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(size*2))
	binary.LittleEndian.PutUint16(hdr[12:14], 1)
	binary.LittleEndian.PutUint16(hdr[14:16], uint16(bits))
	binary.LittleEndian.PutUint32(hdr[32:36], numColors)
	return hdr
}

// bitmap24ICO stores img as a 24-bit DIB entry; mask selects transparent pixels.
func bitmap24ICO(t *testing.T, img *image.NRGBA, mask func(x, y int) bool) []byte {
	t.Helper()

	size := img.Bounds().Dx()
	rowSize := (size*3 + 3) / 4 * 4
	pixels := make([]byte, rowSize*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := img.NRGBAAt(x, size-1-y)
			off := y*rowSize + x*3
			pixels[off+0] = c.B
			pixels[off+1] = c.G
			pixels[off+2] = c.R
		}
	}

	stride := maskStride(size)
	andMask := make([]byte, stride*size)
	if mask != nil {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				if mask(x, size-1-y) {
					andMask[y*stride+x/8] |= 0x80 >> (uint(x) % 8)
				}
			}
		}
	}

	payload := append(dibHeader(size, 24, 0), pixels...)
	payload = append(payload, andMask...)
	return icoFile(t, []direntry{{Width: uint8(size), Height: uint8(size), Plane: 1, Bits: 24}}, [][]byte{payload})
}

// bitmap8ICO stores a palette image where pixel (x, y) uses index (x+y)%256.
func bitmap8ICO(t *testing.T, size int) (data []byte, palette []color.NRGBA) {
	t.Helper()

	palette = make([]color.NRGBA, 256)
	pal := make([]byte, 256*4)
	for i := range palette {
		palette[i] = color.NRGBA{R: uint8(i / 2), G: uint8(255 - i), B: uint8(i), A: 255}
		pal[i*4+0] = palette[i].B
		pal[i*4+1] = palette[i].G
		pal[i*4+2] = palette[i].R
	}

	rowSize := (size + 3) / 4 * 4
	pixels := make([]byte, rowSize*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			pixels[y*rowSize+x] = uint8((x + (size - 1 - y)) % 256)
		}
	}

	payload := append(dibHeader(size, 8, 256), pal...)
	payload = append(payload, pixels...)
	payload = append(payload, make([]byte, maskStride(size)*size)...)
	return icoFile(t, []direntry{{Width: uint8(size), Height: uint8(size), Plane: 1, Bits: 8}}, [][]byte{payload}), palette
}
