// Package fat implements the FAT allocation engine (component D) and the
// cluster-chain walker (component E): reading and mutating FAT entries,
// scanning for free clusters, and mapping a file offset to its owning
// cluster.
//
// Grounded on the teacher's file_systems/fat/common.go (FAT variant
// detection from cluster count) and driverbase.go's listClusters /
// getClusterInChain (chain-walking shape), generalized from the teacher's
// 12/16/32-bit little-endian FAT with a fully-resident boot sector to
// FATX's 16/32-bit big-endian FAT fronted by a paged cache.
package fat

import (
	"encoding/binary"

	"github.com/dargueta/fatx/fatxerr"
	"github.com/dargueta/fatx/internal/cache"
)

// Variant distinguishes the two FATX on-disk entry widths.
type Variant int

const (
	Variant16 Variant = iota
	Variant32
)

// ClusterSize is the fixed size, in bytes, of a data cluster (invariant, §3).
const ClusterSize = 16384

// PageSize is the fixed size, in bytes, of one FAT cache page (invariant, §3).
const PageSize = 4096

// fatx16CutoverClusters is the cluster-count threshold at which the FAT
// variant switches from 16-bit to 32-bit entries (§3).
const fatx16CutoverClusters = 65525

// DetermineVariant derives the FAT variant from the total cluster count, per
// spec §3: FATX16 below the cutover, FATX32 at or above it.
func DetermineVariant(clusterCount uint32) Variant {
	if clusterCount < fatx16CutoverClusters {
		return Variant16
	}
	return Variant32
}

// EntrySize returns the width, in bytes, of a single FAT entry for the given
// variant.
func EntrySize(v Variant) uint32 {
	if v == Variant16 {
		return 2
	}
	return 4
}

// EntriesPerPage returns how many FAT entries fit in one 4 KiB page for the
// given variant. This is derived arithmetically (PageSize / EntrySize)
// rather than hardcoded, since the two counts the source documentation
// quotes for FATX16 (256) and FATX32 (1024) are only self-consistent for
// the 32-bit case -- 256 16-bit entries would occupy 512 bytes, not a full
// 4 KiB page. The page-size invariant in §3 is authoritative; entry density
// follows from it.
func EntriesPerPage(v Variant) uint32 {
	return PageSize / EntrySize(v)
}

// locate returns the page number and in-page entry index holding cluster n's
// FAT entry.
func locate(n uint32, v Variant) (page, index uint32) {
	epp := EntriesPerPage(v)
	return n / epp, n % epp
}

// Engine reads and writes FAT entries through a page cache.
type Engine struct {
	pages        *cache.Cache
	variant      Variant
	clusterCount uint32
}

// New creates a FAT engine over the given page cache.
func New(pages *cache.Cache, variant Variant, clusterCount uint32) *Engine {
	return &Engine{pages: pages, variant: variant, clusterCount: clusterCount}
}

// Variant returns the FAT variant this engine was constructed with.
func (e *Engine) Variant() Variant { return e.variant }

// ReadEntry reads FAT entry n, byte-swapped from big-endian and zero-extended
// to uint32 regardless of variant.
func (e *Engine) ReadEntry(n uint32) (uint32, error) {
	page, index := locate(n, e.variant)
	buf, err := e.pages.Get(page)
	if err != nil {
		return 0, err
	}

	off := index * EntrySize(e.variant)
	if e.variant == Variant16 {
		return uint32(binary.BigEndian.Uint16(buf[off : off+2])), nil
	}
	return binary.BigEndian.Uint32(buf[off : off+4]), nil
}

// WriteEntry writes value v into FAT entry n, big-endian, and marks the
// owning page dirty.
func (e *Engine) WriteEntry(n uint32, v uint32) error {
	page, index := locate(n, e.variant)
	buf, err := e.pages.Get(page)
	if err != nil {
		return err
	}

	off := index * EntrySize(e.variant)
	if e.variant == Variant16 {
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(v))
	} else {
		binary.BigEndian.PutUint32(buf[off:off+4], v)
	}
	e.pages.MarkDirty(page)
	return nil
}

// IsEOC reports whether v is an end-of-chain marker for this engine's
// variant.
func (e *Engine) IsEOC(v uint32) bool {
	if e.variant == Variant16 {
		return v >= 0xFFF8
	}
	return v >= 0xFFFFFFF8
}

// IsFree reports whether v marks a cluster as unallocated.
func (e *Engine) IsFree(v uint32) bool {
	return v == 0
}

// EOCValue returns the canonical end-of-chain marker to write when
// terminating a new chain, for this engine's variant.
func (e *Engine) EOCValue() uint32 {
	if e.variant == Variant16 {
		return 0xFFFF
	}
	return 0xFFFFFFFF
}

// ClusterCount returns the total number of clusters on the volume.
func (e *Engine) ClusterCount() uint32 { return e.clusterCount }

// FindFreeCluster linearly scans the FAT starting just after `start`,
// wrapping around, for the first free entry. It returns 0 (never a valid
// cluster number) if every cluster is allocated. The caller must write a
// chain entry or terminator into the returned cluster's FAT slot before
// releasing the volume lock, or a subsequent scan may hand out the same
// cluster again.
func (e *Engine) FindFreeCluster(start uint32) (uint32, error) {
	if e.clusterCount == 0 {
		return 0, nil
	}

	for i := uint32(0); i < e.clusterCount; i++ {
		candidate := (start + 1 + i) % e.clusterCount
		if candidate == 0 {
			continue
		}

		v, err := e.ReadEntry(candidate)
		if err != nil {
			return 0, err
		}
		if e.IsFree(v) {
			return candidate, nil
		}
	}
	return 0, nil
}

// WalkToOffset advances from `first` by `offset / ClusterSize` hops along the
// FAT chain and returns the landed cluster and the intra-cluster byte
// offset. It fails with BadDescriptor if the chain ends (EOC or free) before
// the hop count is satisfied -- a corrupt or truncated chain.
func (e *Engine) WalkToOffset(first uint32, offset int64) (uint32, int, error) {
	hops := offset / ClusterSize
	intra := int(offset % ClusterSize)

	current := first
	for i := int64(0); i < hops; i++ {
		next, err := e.ReadEntry(current)
		if err != nil {
			return 0, 0, err
		}
		if e.IsEOC(next) || e.IsFree(next) {
			return 0, 0, fatxerr.BadDescriptor.WithMessage(
				"cluster chain ended before reaching the requested offset")
		}
		current = next
	}
	return current, intra, nil
}
