// Package placeholder materializes the solid-colour application icons that
// the bundler expects, so that no binary assets live in the repository.
package placeholder

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/antoinefink/icongen/ico"
	"github.com/antoinefink/icongen/pngenc"
)

// Fill is the colour of every pixel of every asset.
var Fill = color.NRGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff}

// EncodeFunc writes an image in one file format.
type EncodeFunc func(w io.Writer, m image.Image) error

// Asset is one generated file.
type Asset struct {
	Name   string
	Size   int // width and height in pixels
	Encode EncodeFunc
}

// Assets returns the generated files in the order they are written.
func Assets() []Asset {
	return []Asset{
		{Name: "icon.ico", Size: 16, Encode: ico.EncodeBitmap},
		{Name: "icon.png", Size: 32, Encode: pngenc.Encode},
	}
}

// Solid returns a w×h image filled with c.
func Solid(w, h int, c color.Color) *image.NRGBA {
	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(m, m.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return m
}

// WriteFile encodes m into path, replacing any existing file. The file is
// always closed; a failed write may leave a partial file behind.
func WriteFile(path string, m image.Image, enc EncodeFunc) (n int64, err error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	cw := &countingWriter{w: f}
	bw := bufio.NewWriter(cw)
	if err = enc(bw, m); err != nil {
		return cw.n, err
	}
	if err = bw.Flush(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Generator writes every asset into Dir and reports each file on Out.
type Generator struct {
	Dir string
	Out io.Writer
}

// Run writes the assets in order and stops at the first failure.
func (g *Generator) Run() error {
	dir, err := filepath.Abs(g.Dir)
	if err != nil {
		return fmt.Errorf("resolve output directory: %w", err)
	}

	for _, a := range Assets() {
		path := filepath.Join(dir, a.Name)
		n, err := WriteFile(path, Solid(a.Size, a.Size, Fill), a.Encode)
		if err != nil {
			return fmt.Errorf("write %s: %w", a.Name, err)
		}
		slog.Debug("asset written", "name", a.Name, "size", a.Size, "bytes", n)
		fmt.Fprintf(g.Out, "Created %s\n", path)
	}
	fmt.Fprintln(g.Out, "Done!")
	return nil
}
