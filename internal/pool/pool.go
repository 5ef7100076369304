// Package pool provides reusable memory blocks for frame payloads.
//
// Detector frame rates do not allow a fresh allocation per frame. The
// pool retains every block it ever allocates and hands idle blocks back
// out grouped by capacity, so once the working set of frame sizes
// stabilises the hot path performs no allocator calls at all. Retained
// capacity never shrinks; frame sizes are few and stable within an
// acquisition, so there is no compaction.
package pool

import (
	"errors"
	"sync"

	"github.com/dw96/odin-data/pkg/log"
)

// ErrAllocationFailure is returned when the pool cannot satisfy a
// request without exceeding its configured memory limit. This is fatal
// to the acquisition and is never retried.
var ErrAllocationFailure = errors.New("pool: allocation failure")

// BlockPool owns every Block it allocates, lending them out one holder
// at a time. All methods are safe for concurrent use; the internal lock
// is held per call only.
type BlockPool struct {
	mu       sync.Mutex
	nextID   int
	inUse    map[int]*Block
	free     map[int][]*Block // keyed by capacity
	retained int64
	limit    int64 // 0 means unlimited
	logger   log.Logger
}

// NewBlockPool creates a pool with an optional total-capacity limit in
// bytes. A limit of zero disables the check.
func NewBlockPool(limit int64, logger log.Logger) *BlockPool {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &BlockPool{
		inUse:  make(map[int]*Block),
		free:   make(map[int][]*Block),
		limit:  limit,
		logger: logger,
	}
}

// Acquire returns an idle Block of capacity >= size, preferring an exact
// capacity match. If no idle Block fits, a new Block of exactly size
// bytes is allocated. Returns ErrAllocationFailure if the allocation
// would exceed the pool limit.
func (p *BlockPool) Acquire(size int) (*Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if b := p.takeFree(size); b != nil {
		b.used = 0
		p.inUse[b.id] = b
		return b, nil
	}

	if p.limit > 0 && p.retained+int64(size) > p.limit {
		p.logger.Error("block pool limit exceeded",
			log.Int("requested", size),
			log.Int64("retained", p.retained),
			log.Int64("limit", p.limit),
		)
		return nil, ErrAllocationFailure
	}

	p.nextID++
	b := &Block{id: p.nextID, data: make([]byte, size)}
	p.retained += int64(size)
	p.inUse[b.id] = b
	p.logger.Debug("allocated block",
		log.Int("id", b.id),
		log.Int("capacity", size),
		log.Int64("retained", p.retained),
	)
	return b, nil
}

// takeFree removes and returns an idle block of capacity >= size,
// preferring an exact match. Caller holds the lock.
func (p *BlockPool) takeFree(size int) *Block {
	if list := p.free[size]; len(list) > 0 {
		b := list[len(list)-1]
		p.free[size] = list[:len(list)-1]
		return b
	}
	for capa, list := range p.free {
		if capa >= size && len(list) > 0 {
			b := list[len(list)-1]
			p.free[capa] = list[:len(list)-1]
			return b
		}
	}
	return nil
}

// Release returns a Block to the free list. Releasing a Block that is
// not checked out is a no-op, so double release is harmless.
func (p *BlockPool) Release(b *Block) {
	if b == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.inUse[b.id]; !ok {
		return
	}
	delete(p.inUse, b.id)
	b.used = 0
	capa := cap(b.data)
	p.free[capa] = append(p.free[capa], b)
}

// Resize grows the Block to at least n bytes by reallocating; the old
// contents are considered stale after a growth. When n fits the current
// capacity only the used size changes. The Block keeps its id.
func (p *BlockPool) Resize(b *Block, n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n <= cap(b.data) {
		b.used = n
		return nil
	}

	grow := int64(n - cap(b.data))
	if p.limit > 0 && p.retained+grow > p.limit {
		p.logger.Error("block pool limit exceeded on resize",
			log.Int("id", b.id),
			log.Int("requested", n),
			log.Int64("retained", p.retained),
		)
		return ErrAllocationFailure
	}

	p.retained += grow
	b.data = make([]byte, n)
	b.used = n
	return nil
}

// Stats reports pool occupancy for status aggregation.
type Stats struct {
	BlocksInUse   int
	BlocksFree    int
	RetainedBytes int64
}

// Stats returns a snapshot of pool occupancy.
func (p *BlockPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	freeCount := 0
	for _, list := range p.free {
		freeCount += len(list)
	}
	return Stats{
		BlocksInUse:   len(p.inUse),
		BlocksFree:    freeCount,
		RetainedBytes: p.retained,
	}
}
