// Package directory implements directory iteration, name lookup, and new
// entry allocation (component F). A directory is a chain of 16 KiB clusters,
// each holding 256 packed 64-byte entries (§3).
//
// Grounded on the teacher's driverbase.go (readDirFromDirent,
// clusterToDirentSlice) for the iteration shape, generalized from "read an
// entire cluster's worth of entries into a slice" to the spec's
// one-entry-at-a-time iterator with an explicit {cluster, entry index}
// cursor, and on allocatormap.go's reuse-before-extend allocation idiom
// (scan for a free slot before growing) adapted from a bitmap allocator to
// scanning live directory entries for a deleted/terminator slot.
package directory

import (
	"github.com/dargueta/fatx/fatxerr"
	"github.com/dargueta/fatx/internal/cache"
	"github.com/dargueta/fatx/internal/direntcodec"
	"github.com/dargueta/fatx/internal/fat"
)

// EntriesPerCluster is the fixed number of directory entries packed into one
// data cluster (§3): 16384 / 64.
const EntriesPerCluster = fat.ClusterSize / direntcodec.EntrySize

// Location pins a directory entry to the slot it occupies on disk, so it can
// be rewritten later (e.g. to update fileSize after a write). It replaces
// the teacher's approach of returning a raw pointer into cluster-cache
// memory, which silently dangles once the slot is evicted (§9).
type Location struct {
	Cluster    uint32
	EntryIndex uint32
}

// Iterator walks the entries of one directory's cluster chain in on-disk
// order.
type Iterator struct {
	data    *cache.Cache
	fat     *fat.Engine
	cluster uint32
	entryNo uint32
}

// NewIterator creates an iterator over the directory whose chain begins at
// firstCluster.
func NewIterator(data *cache.Cache, fatEngine *fat.Engine, firstCluster uint32) *Iterator {
	return &Iterator{data: data, fat: fatEngine, cluster: firstCluster}
}

// Next returns the next raw entry in the directory, which may be deleted or
// otherwise invalid -- callers filter with Entry.IsValid(). The third return
// value is false (with a nil error) once the terminator or end-of-chain is
// reached.
func (it *Iterator) Next() (direntcodec.Entry, Location, bool, error) {
	if it.entryNo == EntriesPerCluster {
		next, err := it.fat.ReadEntry(it.cluster)
		if err != nil {
			return direntcodec.Entry{}, Location{}, false, err
		}
		if it.fat.IsEOC(next) {
			return direntcodec.Entry{}, Location{}, false, nil
		}
		it.cluster = next
		it.entryNo = 0
	}

	buf, err := it.data.Get(it.cluster)
	if err != nil {
		return direntcodec.Entry{}, Location{}, false, err
	}

	off := it.entryNo * direntcodec.EntrySize
	entry := direntcodec.Decode(buf[off : off+direntcodec.EntrySize])
	if entry.IsTerminator() {
		return direntcodec.Entry{}, Location{}, false, nil
	}

	loc := Location{Cluster: it.cluster, EntryIndex: it.entryNo}
	it.entryNo++
	return entry, loc, true, nil
}

// ReadAll collects every valid (non-deleted) entry in the directory, in
// on-disk order. The driver itself streams entries one at a time through
// Iterator.Next (see Volume.ReadDir); this is a bulk-listing convenience
// kept for tests that want the whole directory as a slice.
func ReadAll(data *cache.Cache, fatEngine *fat.Engine, firstCluster uint32) ([]direntcodec.Entry, error) {
	it := NewIterator(data, fatEngine, firstCluster)
	var entries []direntcodec.Entry
	for {
		entry, _, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return entries, nil
		}
		if entry.IsValid() {
			entries = append(entries, entry)
		}
	}
}

// FindByName scans a directory's chain for a live entry whose filename
// matches exactly, byte for byte.
func FindByName(data *cache.Cache, fatEngine *fat.Engine, firstCluster uint32, name string) (direntcodec.Entry, Location, bool, error) {
	it := NewIterator(data, fatEngine, firstCluster)
	for {
		entry, loc, ok, err := it.Next()
		if err != nil {
			return direntcodec.Entry{}, Location{}, false, err
		}
		if !ok {
			return direntcodec.Entry{}, Location{}, false, nil
		}
		if entry.IsValid() && entry.Filename == name {
			return entry, loc, true, nil
		}
	}
}

// Resolve walks `segments` starting from the directory at `firstCluster`,
// returning the entry (and its location) the final segment names. An empty
// segment list returns a zero Entry and Location with a nil error; the root
// case (no entry backs it) is the caller's responsibility.
func Resolve(data *cache.Cache, fatEngine *fat.Engine, firstCluster uint32, segments []string) (direntcodec.Entry, Location, error) {
	cluster := firstCluster
	var entry direntcodec.Entry
	var loc Location

	for i, seg := range segments {
		found, foundLoc, ok, err := FindByName(data, fatEngine, cluster, seg)
		if err != nil {
			return direntcodec.Entry{}, Location{}, err
		}
		if !ok {
			return direntcodec.Entry{}, Location{}, fatxerr.NotFound.WithMessage(seg)
		}

		if i < len(segments)-1 {
			if !found.IsDirectory() {
				return direntcodec.Entry{}, Location{}, fatxerr.NotFound.WithMessage(seg + " is not a directory")
			}
			cluster = found.FirstCluster
		}
		entry, loc = found, foundLoc
	}
	return entry, loc, nil
}

// ReadAt re-reads the entry currently stored at loc.
func ReadAt(data *cache.Cache, loc Location) (direntcodec.Entry, error) {
	buf, err := data.Get(loc.Cluster)
	if err != nil {
		return direntcodec.Entry{}, err
	}
	off := loc.EntryIndex * direntcodec.EntrySize
	return direntcodec.Decode(buf[off : off+direntcodec.EntrySize]), nil
}

// WriteAt serializes entry into the slot at loc and marks the owning
// cluster dirty.
func WriteAt(data *cache.Cache, loc Location, entry *direntcodec.Entry) error {
	buf, err := data.Get(loc.Cluster)
	if err != nil {
		return err
	}
	off := loc.EntryIndex * direntcodec.EntrySize
	direntcodec.Encode(entry, buf[off:off+direntcodec.EntrySize])
	data.MarkDirty(loc.Cluster)
	return nil
}

// Allocate finds a slot for a new directory entry in the chain starting at
// dirFirstCluster, per §4.F: reuse a deleted slot or an as-yet-unused
// terminator slot inside the existing chain before extending it; only
// allocate and link in a fresh cluster (seeded near allocateNear, typically
// the directory's own first cluster) if the chain is exhausted. A slot found
// inside the existing chain is NOT yet marked dirty; callers write the new
// entry with WriteAt, which marks it. A freshly linked cluster is initialized
// and marked dirty here.
func Allocate(data *cache.Cache, fatEngine *fat.Engine, dirFirstCluster uint32, allocateNear uint32) (Location, error) {
	cluster := dirFirstCluster
	entryNo := uint32(0)

	for {
		if entryNo == EntriesPerCluster {
			next, err := fatEngine.ReadEntry(cluster)
			if err != nil {
				return Location{}, err
			}
			if !fatEngine.IsEOC(next) {
				cluster = next
				entryNo = 0
				continue
			}

			newCluster, err := fatEngine.FindFreeCluster(allocateNear)
			if err != nil {
				return Location{}, err
			}
			if newCluster == 0 {
				return Location{}, fatxerr.NoSpace.WithMessage("no free cluster to extend directory")
			}

			if err := fatEngine.WriteEntry(cluster, newCluster); err != nil {
				return Location{}, err
			}
			if err := fatEngine.WriteEntry(newCluster, fatEngine.EOCValue()); err != nil {
				return Location{}, err
			}

			buf, err := data.Get(newCluster)
			if err != nil {
				return Location{}, err
			}
			direntcodec.InitClusterBytes(buf)
			data.MarkDirty(newCluster)

			return Location{Cluster: newCluster, EntryIndex: 0}, nil
		}

		buf, err := data.Get(cluster)
		if err != nil {
			return Location{}, err
		}
		off := entryNo * direntcodec.EntrySize
		entry := direntcodec.Decode(buf[off : off+direntcodec.EntrySize])

		if entry.IsReusable() || entry.IsTerminator() {
			return Location{Cluster: cluster, EntryIndex: entryNo}, nil
		}
		entryNo++
	}
}
