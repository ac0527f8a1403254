// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package memory

// RamMemory stores a secret's bytes in a Boxed cell for longer-lived
// retention than a Buffer (C5). Unlike Buffer it is meant to be held for
// the lifetime of a shard or vault key, not just a single borrow scope.
type RamMemory struct {
	buf  *Buffer
	size int
}

// NewRamMemory copies bytes[:size] into a fresh guarded cell.
func NewRamMemory(bytes []byte, size int) (*RamMemory, error) {
	if size == 0 {
		return nil, ErrZeroSized
	}
	buf, err := Alloc(bytes, size)
	if err != nil {
		return nil, err
	}
	return &RamMemory{buf: buf, size: size}, nil
}

// Unlock returns a fresh Buffer copy of the stored bytes.
func (r *RamMemory) Unlock() (*Buffer, error) {
	if r.size == 0 {
		return nil, ErrZeroSized
	}
	return r.buf.Clone()
}

// Update replaces the stored contents. A new cell is allocated for the
// new contents and the previous cell is then zeroed and released,
// rather than mutated in place, to frustrate read-after-free disclosure
// of the prior secret.
func (r *RamMemory) Update(newBuf *Buffer, size int) error {
	ref, err := newBuf.Borrow()
	if err != nil {
		return err
	}
	fresh, err := Alloc(ref.Bytes(), size)
	ref.Close()
	if err != nil {
		return err
	}

	old := r.buf
	r.buf = fresh
	r.size = size
	return old.Close()
}

// Close zeroes and releases the underlying cell.
func (r *RamMemory) Close() error {
	if r.buf == nil {
		return nil
	}
	return r.buf.Close()
}

func (r *RamMemory) Size() int { return r.size }

func (r *RamMemory) String() string { return "Content of Locked Memory is hidden" }
