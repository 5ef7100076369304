package pool

// Block is a pool-managed reusable memory allocation. A Block is owned
// exclusively by the pool while idle and loaned to exactly one holder
// (a Frame) while checked out. Block memory must never be freed outside
// the pool; a resize replaces the allocation but keeps the id.
type Block struct {
	id   int
	data []byte
	used int
}

// ID returns the unique identifier assigned by the pool at allocation.
// The id survives resizes.
func (b *Block) ID() int {
	return b.id
}

// Capacity returns the number of bytes allocated for this Block.
func (b *Block) Capacity() int {
	return cap(b.data)
}

// Size returns the number of bytes currently in use, always <= Capacity.
func (b *Block) Size() int {
	return b.used
}

// Data returns a read-only view of the used portion of the Block.
// The returned slice is valid until the Block is released or resized.
func (b *Block) Data() []byte {
	return b.data[:b.used]
}

// CopyData copies src into the Block and sets the used size. The caller
// must ensure capacity via BlockPool.Resize first; CopyData truncates to
// capacity rather than growing.
func (b *Block) CopyData(src []byte) {
	n := len(src)
	if n > cap(b.data) {
		n = cap(b.data)
	}
	copy(b.data[:n], src[:n])
	b.used = n
}
