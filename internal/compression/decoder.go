// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

// Package compression implements the LZ4-block codec used to shrink
// serialized snapshot state before it is sealed (C12). The decoder is
// hand-written rather than delegated to a library: it must reproduce
// exact historical error strings ("Unexpected End", "Invalid
// Duplicate") byte for byte, which no off-the-shelf decoder promises.
// The encoder has no such constraint and is free to use any encoder
// that emits the same standard LZ4 block format this decoder reads;
// see encoder.go.
package compression

import "fmt"

// Error is returned by Decompress on malformed input, mirroring the
// two historical error strings token-for-token.
type Error struct {
	msg string
}

func (e *Error) Error() string { return fmt.Sprintf("lz4: %s", e.msg) }

var (
	errUnexpectedEnd   = &Error{msg: "Unexpected End"}
	errInvalidDuplicate = &Error{msg: "Invalid Duplicate"}
)

type decoder struct {
	input  []byte
	output []byte
	token  byte
}

// Decompress reverses Compress: for any byte string s,
// Decompress(Compress(s)) == s.
func Decompress(input []byte) ([]byte, error) {
	d := &decoder{input: input, output: make([]byte, 0, 4096)}
	if err := d.complete(); err != nil {
		return nil, err
	}
	return d.output, nil
}

func (d *decoder) take(size int) ([]byte, error) {
	if len(d.input) < size {
		return nil, errUnexpectedEnd
	}
	res := d.input[:size]
	d.input = d.input[size:]
	return res, nil
}

func (d *decoder) duplicate(start, length int) {
	for i := start; i < start+length; i++ {
		d.output = append(d.output, d.output[i])
	}
}

func (d *decoder) readInt() (int, error) {
	size := 0
	for {
		extra, err := d.take(1)
		if err != nil {
			return 0, err
		}
		size += int(extra[0])
		if extra[0] != 0xFF {
			break
		}
	}
	return size, nil
}

func (d *decoder) readU16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

func (d *decoder) readLiteral() error {
	literal := int(d.token >> 4)
	if literal == 15 {
		extra, err := d.readInt()
		if err != nil {
			return err
		}
		literal += extra
	}
	buf, err := d.take(literal)
	if err != nil {
		return err
	}
	d.output = append(d.output, buf...)
	return nil
}

func (d *decoder) readDuplicate() error {
	offset, err := d.readU16()
	if err != nil {
		return err
	}

	length := 4 + int(d.token&0xF)
	if length == 4+15 {
		extra, err := d.readInt()
		if err != nil {
			return err
		}
		length += extra
	}

	start := len(d.output) - int(offset)
	if start < 0 || start >= len(d.output) {
		return errInvalidDuplicate
	}
	d.duplicate(start, length)
	return nil
}

func (d *decoder) complete() error {
	for len(d.input) > 0 {
		tok, err := d.take(1)
		if err != nil {
			return err
		}
		d.token = tok[0]

		if err := d.readLiteral(); err != nil {
			return err
		}
		if len(d.input) == 0 {
			break
		}
		if err := d.readDuplicate(); err != nil {
			return err
		}
	}
	return nil
}
