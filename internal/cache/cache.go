// Package cache implements the direct-mapped, write-back block cache used
// for both the FAT-page cache (component B) and the data-cluster cache
// (component C). Both are the same shape -- N fixed-size slots, keyed by
// `id mod N` -- so one generic type serves both, parameterized only by slot
// size and slot count.
//
// This generalizes the teacher's blockcache.BlockCache, which keeps every
// block of a (small, fully addressable) file system object resident at
// once with no eviction. A FATX volume's FAT and data regions are far too
// large for that, so this cache only ever holds NumSlots blocks at a time
// and evicts -- flushing first if the departing occupant is dirty -- the
// moment a different block wants the same slot.
package cache

import (
	"fmt"

	"github.com/boljen/go-bitmap"

	"github.com/dargueta/fatx/fatxerr"
)

// FetchBlockCallback reads the contents of block `id` from backing storage
// into `buffer`, which is always exactly BytesPerBlock long.
type FetchBlockCallback func(id uint32, buffer []byte) error

// FlushBlockCallback writes `buffer`, the contents of block `id`, to backing
// storage. `buffer` is always exactly BytesPerBlock long.
type FlushBlockCallback func(id uint32, buffer []byte) error

const emptySlot = ^uint32(0)

// Cache is a direct-mapped write-back cache of fixed-size blocks.
type Cache struct {
	bytesPerBlock uint32
	numSlots      uint32
	fetch         FetchBlockCallback
	flush         FlushBlockCallback

	// slotOccupant[i] is the block ID currently resident in slot i, or
	// emptySlot if the slot has never been populated.
	slotOccupant []uint32
	loaded       bitmap.Bitmap
	dirty        bitmap.Bitmap
	data         []byte
}

// New creates a Cache with the given slot size and slot count. No slots are
// preloaded; call Preload explicitly for blocks that must be resident up
// front (e.g. FAT page 0 at volume open).
func New(bytesPerBlock, numSlots uint32, fetch FetchBlockCallback, flush FlushBlockCallback) *Cache {
	slotOccupant := make([]uint32, numSlots)
	for i := range slotOccupant {
		slotOccupant[i] = emptySlot
	}

	return &Cache{
		bytesPerBlock: bytesPerBlock,
		numSlots:      numSlots,
		fetch:         fetch,
		flush:         flush,
		slotOccupant:  slotOccupant,
		loaded:        bitmap.New(int(numSlots)),
		dirty:         bitmap.New(int(numSlots)),
		data:          make([]byte, uint64(bytesPerBlock)*uint64(numSlots)),
	}
}

func (c *Cache) slotFor(id uint32) uint32 { return id % c.numSlots }

func (c *Cache) slotBytes(slot uint32) []byte {
	start := uint64(slot) * uint64(c.bytesPerBlock)
	return c.data[start : start+uint64(c.bytesPerBlock)]
}

// flushSlot writes a dirty slot's current contents back to the block it
// actually holds, then marks it clean. No-op if the slot isn't dirty.
func (c *Cache) flushSlot(slot uint32) error {
	if !c.loaded.Get(int(slot)) || !c.dirty.Get(int(slot)) {
		return nil
	}
	occupant := c.slotOccupant[slot]
	if err := c.flush(occupant, c.slotBytes(slot)); err != nil {
		return fatxerr.BadDescriptor.WithMessage(
			fmt.Sprintf("failed to flush block %d from slot %d: %s", occupant, slot, err))
	}
	c.dirty.Set(int(slot), false)
	return nil
}

// ensureLoaded guarantees that slot `id mod NumSlots` holds block `id`,
// evicting (flushing first, if dirty) and refetching as needed.
func (c *Cache) ensureLoaded(id uint32) (uint32, error) {
	slot := c.slotFor(id)
	if c.loaded.Get(int(slot)) && c.slotOccupant[slot] == id {
		return slot, nil
	}

	if err := c.flushSlot(slot); err != nil {
		return 0, err
	}

	buf := c.slotBytes(slot)
	if err := c.fetch(id, buf); err != nil {
		return 0, fatxerr.BadDescriptor.WithMessage(
			fmt.Sprintf("failed to load block %d: %s", id, err))
	}

	c.slotOccupant[slot] = id
	c.loaded.Set(int(slot), true)
	c.dirty.Set(int(slot), false)
	return slot, nil
}

// Get returns the live, mutable backing bytes for block `id`, populating its
// slot on miss. The returned slice aliases the cache's internal storage and
// is only valid until the next call that might evict this slot (any Get or
// Preload for a different block hashing to the same slot).
func (c *Cache) Get(id uint32) ([]byte, error) {
	slot, err := c.ensureLoaded(id)
	if err != nil {
		return nil, err
	}
	return c.slotBytes(slot), nil
}

// MarkDirty flags the slot currently holding block `id` as dirty. The caller
// must have already fetched the slot via Get and written into the returned
// buffer.
func (c *Cache) MarkDirty(id uint32) {
	slot := c.slotFor(id)
	if c.slotOccupant[slot] == id {
		c.dirty.Set(int(slot), true)
	}
}

// Preload forces block `id` to be resident, exactly like Get but discarding
// the returned bytes. Used to warm FAT page 0 at volume open.
func (c *Cache) Preload(id uint32) error {
	_, err := c.ensureLoaded(id)
	return err
}

// FlushAll writes every dirty slot back to storage and marks the cache
// entirely clean. Used on volume Close.
func (c *Cache) FlushAll() error {
	for slot := uint32(0); slot < c.numSlots; slot++ {
		if err := c.flushSlot(slot); err != nil {
			return err
		}
	}
	return nil
}

// BytesPerBlock returns the size of a single cached block, in bytes.
func (c *Cache) BytesPerBlock() uint32 { return c.bytesPerBlock }

// NumSlots returns the number of slots in the cache.
func (c *Cache) NumSlots() uint32 { return c.numSlots }
