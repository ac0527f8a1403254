// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package memory

// Buffer is a caller-facing, borrow-checked handle to a secret (C3). It
// is short-lived by convention: the engine never serializes one except
// inside trusted codec paths that themselves run within a guarded
// scope. Each Buffer owns a private Boxed cell; Clone copies bytes into
// a fresh cell rather than aliasing.
type Buffer struct {
	boxed *Boxed
	len   int
}

// Ref is an active read borrow of a Buffer. It must be released via
// Close when the caller is done reading.
type Ref struct {
	buf     *Buffer
	release func()
}

// RefMut is an active write borrow of a Buffer.
type RefMut struct {
	buf     *Buffer
	release func()
}

// Alloc creates a Buffer sized len bytes and copies bytes[:len] into a
// fresh guarded cell. len == 0 is rejected: a Buffer always carries at
// least one byte of secret material.
func Alloc(bytes []byte, length int) (*Buffer, error) {
	if length > len(bytes) {
		length = len(bytes)
	}
	if length == 0 {
		return nil, ErrZeroSized
	}

	boxed, err := NewBoxed(bytes[:length])
	if err != nil {
		return nil, err
	}
	return &Buffer{boxed: boxed, len: length}, nil
}

// Len returns the number of secret bytes held by the Buffer.
func (b *Buffer) Len() int { return b.len }

// Borrow opens a read-only borrow of the Buffer's contents.
func (b *Buffer) Borrow() (*Ref, error) {
	release, err := b.boxed.BorrowRead()
	if err != nil {
		return nil, err
	}
	return &Ref{buf: b, release: release}, nil
}

// BorrowMut opens a read-write borrow of the Buffer's contents.
func (b *Buffer) BorrowMut() (*RefMut, error) {
	release, err := b.boxed.BorrowWrite()
	if err != nil {
		return nil, err
	}
	return &RefMut{buf: b, release: release}, nil
}

// Bytes returns the borrowed slice. Valid only until Close.
func (r *Ref) Bytes() []byte { return r.buf.boxed.Slice() }

// Close releases the read borrow.
func (r *Ref) Close() { r.release() }

// Bytes returns the mutable borrowed slice. Valid only until Close.
func (r *RefMut) Bytes() []byte { return r.buf.boxed.Slice() }

// Close releases the write borrow.
func (r *RefMut) Close() { r.release() }

// Clone copies the Buffer's contents into a freshly allocated Boxed
// cell; the two Buffers never alias the same memory.
func (b *Buffer) Clone() (*Buffer, error) {
	ref, err := b.Borrow()
	if err != nil {
		return nil, err
	}
	defer ref.Close()
	return Alloc(ref.Bytes(), b.len)
}

// Close zeroes and releases the underlying Boxed cell. Safe to call
// more than once.
func (b *Buffer) Close() error { return b.boxed.Close() }

// WithBytes is a convenience wrapper that opens a read borrow, invokes
// f with the borrowed slice, and guarantees the borrow is released
// before returning — even if f panics.
func (b *Buffer) WithBytes(f func([]byte) error) error {
	ref, err := b.Borrow()
	if err != nil {
		return err
	}
	defer ref.Close()
	return f(ref.Bytes())
}

func (b *Buffer) String() string { return "Content of Locked Memory is hidden" }
