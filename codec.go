package flatfs

import (
	"encoding/binary"

	"github.com/aligator/flatfs/checkpoint"
)

// All integers on disk are big-endian.

func beUint16(b []byte, offset int) (uint16, error) {
	if offset < 0 || len(b) < offset+2 {
		return 0, checkpoint.With(nil, ErrOutOfBounds, "offset", offset, "length", len(b))
	}
	return binary.BigEndian.Uint16(b[offset:]), nil
}

func beUint32(b []byte, offset int) (uint32, error) {
	if offset < 0 || len(b) < offset+4 {
		return 0, checkpoint.With(nil, ErrOutOfBounds, "offset", offset, "length", len(b))
	}
	return binary.BigEndian.Uint32(b[offset:]), nil
}

func putBeUint16(b []byte, offset int, v uint16) error {
	if offset < 0 || len(b) < offset+2 {
		return checkpoint.With(nil, ErrOutOfBounds, "offset", offset, "length", len(b))
	}
	binary.BigEndian.PutUint16(b[offset:], v)
	return nil
}

func putBeUint32(b []byte, offset int, v uint32) error {
	if offset < 0 || len(b) < offset+4 {
		return checkpoint.With(nil, ErrOutOfBounds, "offset", offset, "length", len(b))
	}
	binary.BigEndian.PutUint32(b[offset:], v)
	return nil
}
