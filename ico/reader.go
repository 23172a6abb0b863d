// Package ico reads and writes Windows icon containers.
//
// Writers produce single-entry files, either an uncompressed 32-bit DIB
// (EncodeBitmap) or an embedded PNG (Encode). The reader accepts both entry
// kinds at any of the usual bit depths.
package ico

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	bmp "github.com/jsummers/gobmp"

	"github.com/antoinefink/icongen/pngenc"
)

const maxICOSize = int64(64 << 20) // hard cap to avoid OOM panics on hostile inputs

// bmpFileHeaderSize is the BITMAPFILEHEADER length that ICO entries omit.
const bmpFileHeaderSize = 14

func init() {
	image.RegisterFormat("ico", "\x00\x00\x01\x00?????\x00", Decode, DecodeConfig)
}

// Decode returns the first image of an ICO file.
func Decode(r io.Reader) (image.Image, error) {
	var d decoder
	if err := d.decode(r); err != nil {
		return nil, err
	}
	return d.images[0], nil
}

// DecodeAll returns every image of an ICO file in directory order.
func DecodeAll(r io.Reader) ([]image.Image, error) {
	var d decoder
	if err := d.decode(r); err != nil {
		return nil, err
	}
	return d.images, nil
}

// DecodeConfig returns the dimensions and colour model of the first image.
func DecodeConfig(r io.Reader) (image.Config, error) {
	var d decoder
	file, err := d.readDirectory(r)
	if err != nil {
		return image.Config{}, err
	}

	entryData, err := d.entryBytes(file, &d.entries[0])
	if err != nil {
		return image.Config{}, err
	}
	if isPNG(entryData) {
		return png.DecodeConfig(bytes.NewReader(entryData))
	}

	bf, err := newBitmapFile(entryData, &d.entries[0])
	if err != nil {
		return image.Config{}, err
	}
	return bmp.DecodeConfig(bytes.NewReader(bf.data))
}

type direntry struct {
	Width   byte
	Height  byte
	Palette byte
	_       byte
	Plane   uint16
	Bits    uint16
	Size    uint32
	Offset  uint32
}

type head struct {
	Zero   uint16
	Type   uint16
	Number uint16
}

type decoder struct {
	head    head
	entries []direntry
	images  []image.Image
}

func isPNG(data []byte) bool {
	return bytes.HasPrefix(data, pngenc.Signature())
}

func readAllICO(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxICOSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > maxICOSize {
		return nil, fmt.Errorf("ico: file too large")
	}
	return b, nil
}

// readDirectory slurps the file and parses its header and directory entries.
func (d *decoder) readDirectory(r io.Reader) ([]byte, error) {
	file, err := readAllICO(r)
	if err != nil {
		return nil, err
	}

	br := bytes.NewReader(file)
	if err := binary.Read(br, binary.LittleEndian, &d.head); err != nil {
		return nil, err
	}
	if d.head.Zero != 0 || d.head.Type != 1 {
		return nil, fmt.Errorf("ico: corrupted head: [%x,%x]", d.head.Zero, d.head.Type)
	}
	if d.head.Number == 0 {
		return nil, fmt.Errorf("ico: no images")
	}

	d.entries = make([]direntry, d.head.Number)
	if err := binary.Read(br, binary.LittleEndian, d.entries); err != nil {
		return nil, err
	}
	return file, nil
}

func (d *decoder) entryBytes(file []byte, e *direntry) ([]byte, error) {
	start := int64(e.Offset)
	size := int64(e.Size)
	if size <= 0 {
		return nil, fmt.Errorf("ico: corrupted entry (size=%d)", e.Size)
	}
	end := start + size
	if end > int64(len(file)) {
		return nil, io.ErrUnexpectedEOF
	}
	return file[start:end], nil
}

func (d *decoder) decode(r io.Reader) error {
	file, err := d.readDirectory(r)
	if err != nil {
		return err
	}

	d.images = make([]image.Image, len(d.entries))
	for i := range d.entries {
		e := &d.entries[i]

		entryData, err := d.entryBytes(file, e)
		if err != nil {
			return err
		}

		if isPNG(entryData) {
			if d.images[i], err = png.Decode(bytes.NewReader(entryData)); err != nil {
				return err
			}
			continue
		}

		if d.images[i], err = decodeBitmap(entryData, e); err != nil {
			return err
		}
	}
	return nil
}

// decodeBitmap decodes a DIB entry and applies its transparency: the AND mask
// for bit depths below 32, the alpha byte of each pixel otherwise.
func decodeBitmap(entryData []byte, e *direntry) (image.Image, error) {
	bf, err := newBitmapFile(entryData, e)
	if err != nil {
		return nil, err
	}

	bmpImg, err := bmp.Decode(bytes.NewReader(bf.data))
	if err != nil {
		return nil, err
	}

	bounds := bmpImg.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return bmpImg, nil
	}

	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	if bf.mask != nil {
		stride := maskStride(w)
		if stride*h > len(bf.mask) {
			return nil, fmt.Errorf("ico: corrupted mask data")
		}
		for row := 0; row < h; row++ {
			line := bf.mask[row*stride:]
			for col := 0; col < w; col++ {
				if (line[col/8]>>(7-uint(col)%8))&0x01 != 1 {
					mask.SetAlpha(col, h-row-1, color.Alpha{A: 255})
				}
			}
		}
	} else {
		stride := w * 4
		if bf.pixelOffset+stride*h > len(bf.data) {
			return nil, fmt.Errorf("ico: corrupted bmp alpha data")
		}
		for row := 0; row < h; row++ {
			line := bf.data[bf.pixelOffset+row*stride:]
			for col := 0; col < w; col++ {
				mask.SetAlpha(col, h-row-1, color.Alpha{A: line[col*4+3]})
			}
		}
	}

	masked := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.DrawMask(masked, masked.Bounds(), bmpImg, bounds.Min, mask, image.Point{}, draw.Src)
	return masked, nil
}

// bitmapFile is an ICO DIB entry rewritten as a standalone BMP file.
type bitmapFile struct {
	data        []byte // BITMAPFILEHEADER + DIB, without the AND mask
	mask        []byte // nil for 32-bit entries
	pixelOffset int
}

// newBitmapFile prepends a BITMAPFILEHEADER to a DIB entry, halves the
// XOR+AND height stored in the DIB header and splits off the AND mask.
// See en.wikipedia.org/wiki/BMP_file_format.
func newBitmapFile(entryData []byte, e *direntry) (*bitmapFile, error) {
	buf := make([]byte, bmpFileHeaderSize+len(entryData))
	copy(buf[bmpFileHeaderSize:], entryData)
	data := buf[bmpFileHeaderSize:]

	if len(data) < 4 {
		return nil, io.ErrUnexpectedEOF
	}
	hdrSize := binary.LittleEndian.Uint32(data[:4])
	if hdrSize < 12 {
		return nil, fmt.Errorf("ico: corrupted DIB header size (%d)", hdrSize)
	}
	if len(data) < int(hdrSize) {
		return nil, io.ErrUnexpectedEOF
	}

	var (
		w, h      uint32
		bits      uint16
		numColors uint32
	)
	if hdrSize == 12 { // BITMAPCOREHEADER
		w = uint32(binary.LittleEndian.Uint16(data[4:6]))
		h = uint32(binary.LittleEndian.Uint16(data[6:8]))
		bits = binary.LittleEndian.Uint16(data[10:12])
	} else { // BITMAPINFOHEADER and later
		if len(data) < 16 {
			return nil, io.ErrUnexpectedEOF
		}
		w = binary.LittleEndian.Uint32(data[4:8])
		h = binary.LittleEndian.Uint32(data[8:12])
		bits = binary.LittleEndian.Uint16(data[14:16])
		if len(data) >= 36 {
			numColors = binary.LittleEndian.Uint32(data[32:36])
		}
	}

	// The DIB height usually covers XOR and AND mask. Non-square entries are
	// resolved against the directory height.
	entryH := uint32(e.Height)
	if entryH == 0 {
		entryH = 256
	}
	if h%2 == 0 {
		if half := h / 2; half == entryH || half == w || h > w {
			h = half
			if hdrSize == 12 {
				if h > 0xFFFF {
					return nil, fmt.Errorf("ico: corrupted bmp height (%d)", h)
				}
				binary.LittleEndian.PutUint16(data[6:8], uint16(h))
			} else {
				binary.LittleEndian.PutUint32(data[8:12], h)
			}
		}
	}

	bf := &bitmapFile{}
	imageSize := int64(len(data))
	if bits != 32 {
		if w == 0 || h == 0 {
			return nil, fmt.Errorf("ico: corrupted bmp dimensions")
		}
		maskSize := int64(maskStride(int(w))) * int64(h)
		if maskSize > imageSize {
			return nil, fmt.Errorf("ico: corrupted bmp mask size")
		}
		imageSize -= maskSize
		if imageSize <= 0 {
			return nil, fmt.Errorf("ico: corrupted bmp image size")
		}
		bf.mask = data[imageSize:]
	}

	copy(buf[0:2], "BM")
	bmpSize := bmpFileHeaderSize + int(imageSize)
	binary.LittleEndian.PutUint32(buf[2:6], uint32(bmpSize))

	switch bits {
	case 1, 2, 4, 8:
		if x := uint32(1) << bits; numColors == 0 || numColors > x {
			numColors = x
		}
	default:
		numColors = 0
	}

	paletteEntry := uint32(4)
	if hdrSize == 12 || hdrSize == 64 {
		paletteEntry = 3
	}

	offset := uint32(bmpFileHeaderSize) + hdrSize + numColors*paletteEntry
	if hdrSize > dibSize {
		// BITMAPV4/V5 profile data offset
		offset += binary.LittleEndian.Uint32(data[hdrSize-8 : hdrSize-4])
	}
	if offset >= uint32(bmpSize) {
		return nil, fmt.Errorf("ico: corrupted bmp data offset")
	}
	binary.LittleEndian.PutUint32(buf[10:14], offset)

	bf.data = buf[:bmpSize]
	bf.pixelOffset = int(offset)
	return bf, nil
}
