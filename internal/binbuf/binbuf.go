// Package binbuf assembles fixed-layout binary records in a single byte order.
package binbuf

import (
	"bytes"
	"encoding/binary"
)

// Builder accumulates packed values. The first error is kept and every later
// call becomes a no-op, so callers check once via Bytes.
type Builder struct {
	buf   bytes.Buffer
	order binary.ByteOrder
	err   error
}

func New(order binary.ByteOrder) *Builder {
	return &Builder{order: order}
}

// Put packs a fixed-size value (or struct of fixed-size fields).
func (b *Builder) Put(v any) *Builder {
	if b.err != nil {
		return b
	}
	b.err = binary.Write(&b.buf, b.order, v)
	return b
}

// Raw appends p unchanged.
func (b *Builder) Raw(p []byte) *Builder {
	if b.err != nil {
		return b
	}
	b.buf.Write(p)
	return b
}

func (b *Builder) Len() int {
	return b.buf.Len()
}

func (b *Builder) Bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.buf.Bytes(), nil
}
