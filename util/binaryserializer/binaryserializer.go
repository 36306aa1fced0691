package binaryserializer

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// maxItems is the number of buffers kept in the free list.
const maxItems = 1024

// binaryFreeList is a concurrent safe free list of 8 byte buffers used to
// read and write primitive integers without allocating on every call.
var binaryFreeList = make(chan []byte, maxItems)

// Borrow returns a byte slice of length 8 from the free list, allocating one
// if the list is empty.
func Borrow() []byte {
	var buf []byte
	select {
	case buf = <-binaryFreeList:
	default:
		buf = make([]byte, 8)
	}
	return buf[:8]
}

// Return puts buf back on the free list. buf MUST have been obtained from
// Borrow.
func Return(buf []byte) {
	select {
	case binaryFreeList <- buf:
	default:
	}
}

func read(r io.Reader, size int) ([]byte, error) {
	buf := Borrow()[:size]
	_, err := io.ReadFull(r, buf)
	if err != nil {
		Return(buf)
		return nil, errors.WithStack(err)
	}
	return buf, nil
}

// Uint8 reads a single byte from r.
func Uint8(r io.Reader) (uint8, error) {
	buf, err := read(r, 1)
	if err != nil {
		return 0, err
	}
	rv := buf[0]
	Return(buf)
	return rv, nil
}

// Uint16 reads two bytes from r and decodes them using byteOrder.
func Uint16(r io.Reader, byteOrder binary.ByteOrder) (uint16, error) {
	buf, err := read(r, 2)
	if err != nil {
		return 0, err
	}
	rv := byteOrder.Uint16(buf)
	Return(buf)
	return rv, nil
}

// Uint32 reads four bytes from r and decodes them using byteOrder.
func Uint32(r io.Reader, byteOrder binary.ByteOrder) (uint32, error) {
	buf, err := read(r, 4)
	if err != nil {
		return 0, err
	}
	rv := byteOrder.Uint32(buf)
	Return(buf)
	return rv, nil
}

// Uint64 reads eight bytes from r and decodes them using byteOrder.
func Uint64(r io.Reader, byteOrder binary.ByteOrder) (uint64, error) {
	buf, err := read(r, 8)
	if err != nil {
		return 0, err
	}
	rv := byteOrder.Uint64(buf)
	Return(buf)
	return rv, nil
}

// PutUint8 writes val to w.
func PutUint8(w io.Writer, val uint8) error {
	buf := Borrow()[:1]
	buf[0] = val
	_, err := w.Write(buf)
	Return(buf)
	return errors.WithStack(err)
}

// PutUint16 writes val to w using byteOrder.
func PutUint16(w io.Writer, byteOrder binary.ByteOrder, val uint16) error {
	buf := Borrow()[:2]
	byteOrder.PutUint16(buf, val)
	_, err := w.Write(buf)
	Return(buf)
	return errors.WithStack(err)
}

// PutUint32 writes val to w using byteOrder.
func PutUint32(w io.Writer, byteOrder binary.ByteOrder, val uint32) error {
	buf := Borrow()[:4]
	byteOrder.PutUint32(buf, val)
	_, err := w.Write(buf)
	Return(buf)
	return errors.WithStack(err)
}

// PutUint64 writes val to w using byteOrder.
func PutUint64(w io.Writer, byteOrder binary.ByteOrder, val uint64) error {
	buf := Borrow()[:8]
	byteOrder.PutUint64(buf, val)
	_, err := w.Write(buf)
	Return(buf)
	return errors.WithStack(err)
}
