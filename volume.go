package fatx

import (
	"os"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/dargueta/fatx/fatxerr"
	"github.com/dargueta/fatx/internal/cache"
	"github.com/dargueta/fatx/internal/device"
	"github.com/dargueta/fatx/internal/direntcodec"
	"github.com/dargueta/fatx/internal/directory"
	"github.com/dargueta/fatx/internal/fat"
	"github.com/dargueta/fatx/internal/pathutil"
)

// fatPageCacheSlots and dataClusterCacheSlots are the two caches' fixed slot
// counts (§4.B, §4.C). Both caches are direct-mapped, so a bigger working set
// than this thrashes rather than growing -- acceptable for a driver whose
// clients touch one file and its ancestor directories at a time.
const (
	fatPageCacheSlots     = 32
	dataClusterCacheSlots = 32
)

// Volume is an open FATX file system. The zero value is not usable; create
// one with Open.
//
// Every exported method takes the volume lock (component I) before touching
// any shared state and releases it before returning. The spec's design notes
// call for a recursive mutex so public operations can freely call each other
// without self-deadlocking; this driver instead takes the stricter
// alternative it also sanctions (§9): the lock lives only at the public
// boundary, and every method does its work by calling unexported, lock-free
// helpers. No method here ever calls another exported method, so a plain
// sync.Mutex is sufficient and there is no recursion to support.
type Volume struct {
	mu sync.Mutex

	dev     device.BlockDevice
	options Options
	geom    geometry

	fatCache  *cache.Cache
	dataCache *cache.Cache
	fatEngine *fat.Engine
}

// Open mounts a FATX volume on dev. It derives the volume's geometry from
// dev's size (or block geometry, for devices that can report one -- §4.A),
// constructs both caches, and preloads FAT page 0 so the first allocation or
// lookup doesn't pay a cache-miss penalty it could have paid up front (§3).
func Open(dev device.BlockDevice, options Options) (*Volume, error) {
	clusterCount, err := device.ClusterCount(dev, fat.ClusterSize)
	if err != nil {
		return nil, err
	}
	if clusterCount < 2 {
		return nil, fatxerr.InitFailure.WithMessage("device is too small to hold a FATX volume")
	}

	geom := computeGeometry(clusterCount)

	v := &Volume{
		dev:     dev,
		options: options,
		geom:    geom,
	}

	v.fatCache = cache.New(fat.PageSize, fatPageCacheSlots, v.fetchPage, v.flushPage)
	v.dataCache = cache.New(fat.ClusterSize, dataClusterCacheSlots, v.fetchCluster, v.flushCluster)
	v.fatEngine = fat.New(v.fatCache, geom.variant, clusterCount)

	if err := v.fatCache.Preload(0); err != nil {
		return nil, fatxerr.InitFailure.Wrap(err)
	}
	return v, nil
}

func (v *Volume) fetchPage(id uint32, buf []byte) error {
	v.options.trace("fat: fetch page %d", id)
	return device.ReadAt(v.dev, v.geom.pageOffset(id), buf)
}

func (v *Volume) flushPage(id uint32, buf []byte) error {
	v.options.trace("fat: flush page %d", id)
	return device.WriteAt(v.dev, v.geom.pageOffset(id), buf)
}

func (v *Volume) fetchCluster(id uint32, buf []byte) error {
	v.options.trace("data: fetch cluster %d", id)
	return device.ReadAt(v.dev, v.geom.clusterOffset(id), buf)
}

func (v *Volume) flushCluster(id uint32, buf []byte) error {
	v.options.trace("data: flush cluster %d", id)
	return device.WriteAt(v.dev, v.geom.clusterOffset(id), buf)
}

// Close flushes both caches to the backing device. It aggregates failures
// from each cache independently with go-multierror rather than stopping at
// the first one, so a failure flushing the FAT doesn't mask a subsequent
// failure flushing data clusters.
func (v *Volume) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var result *multierror.Error
	if err := v.fatCache.FlushAll(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := v.dataCache.FlushAll(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// resolve splits path and, unless it names the root, looks up the entry and
// its on-disk location starting from the root directory.
func (v *Volume) resolve(path string) (direntcodec.Entry, directory.Location, []string, error) {
	segments, err := pathutil.Split(path)
	if err != nil {
		return direntcodec.Entry{}, directory.Location{}, nil, err
	}
	if len(segments) == 0 {
		return direntcodec.Entry{}, directory.Location{}, segments, nil
	}

	entry, loc, err := directory.Resolve(v.dataCache, v.fatEngine, RootCluster, segments)
	return entry, loc, segments, err
}

// Stat returns file/directory metadata for path, per §4.H. The root
// directory has no backing entry of its own, so it reports a synthetic mode
// and size built from Options alone.
func (v *Volume) Stat(path string) (FileStat, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	entry, _, segments, err := v.resolve(path)
	if err != nil {
		return FileStat{}, err
	}

	mode := v.options.FilePermissions
	if len(segments) == 0 {
		return FileStat{
			Mode:  mode | os.ModeDir,
			Nlink: 1,
			UID:   v.options.UID,
			GID:   v.options.GID,
		}, nil
	}

	if entry.IsDirectory() {
		mode |= os.ModeDir
	}
	return FileStat{
		Mode:       mode,
		Size:       int64(entry.FileSize),
		Nlink:      1,
		UID:        v.options.UID,
		GID:        v.options.GID,
		AccessedAt: direntcodec.ToTime(entry.AccessDate, entry.AccessTime),
		ModifiedAt: direntcodec.ToTime(entry.ModificationDate, entry.ModificationTime),
	}, nil
}

// Read copies up to len(buf) bytes from path starting at offset into buf,
// per §4.H. It returns Overflow once offset reaches the file's declared
// size, and BadDescriptor if the chain ends before that size is reached --
// on-disk corruption, since a well-formed chain is always at least as long
// as the size it backs.
func (v *Volume) Read(path string, buf []byte, offset int64) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	entry, _, segments, err := v.resolve(path)
	if err != nil {
		return 0, err
	}
	if len(segments) == 0 {
		return 0, fatxerr.NotFound.WithMessage("cannot read the root directory as a file")
	}
	if offset >= int64(entry.FileSize) {
		return 0, fatxerr.Overflow
	}

	want := len(buf)
	if remaining := int64(entry.FileSize) - offset; int64(want) > remaining {
		want = int(remaining)
	}

	cluster, intra, err := v.fatEngine.WalkToOffset(entry.FirstCluster, offset)
	if err != nil {
		return 0, err
	}

	read := 0
	for read < want {
		data, err := v.dataCache.Get(cluster)
		if err != nil {
			return read, err
		}

		chunk := want - read
		if room := fat.ClusterSize - intra; chunk > room {
			chunk = room
		}
		copy(buf[read:read+chunk], data[intra:intra+chunk])
		read += chunk
		intra = 0
		if read == want {
			break
		}

		next, err := v.fatEngine.ReadEntry(cluster)
		if err != nil {
			return read, err
		}
		if v.fatEngine.IsEOC(next) || v.fatEngine.IsFree(next) {
			return read, fatxerr.BadDescriptor.WithMessage("cluster chain ended before declared file size")
		}
		cluster = next
	}
	return read, nil
}

// nextClusterForWrite advances from `current` along the file's chain,
// allocating and linking a fresh cluster (seeded near allocNear) if the
// chain ends in EOC. Unlike fat.Engine.WalkToOffset, encountering EOC here is
// the expected case of appending past the last byte currently reachable, not
// corruption; encountering an explicitly free entry mid-chain still is.
func (v *Volume) nextClusterForWrite(current, allocNear uint32) (uint32, error) {
	next, err := v.fatEngine.ReadEntry(current)
	if err != nil {
		return 0, err
	}

	if v.fatEngine.IsEOC(next) {
		newCluster, err := v.fatEngine.FindFreeCluster(allocNear)
		if err != nil {
			return 0, err
		}
		if newCluster == 0 {
			return 0, fatxerr.NoSpace
		}
		if err := v.fatEngine.WriteEntry(current, newCluster); err != nil {
			return 0, err
		}
		if err := v.fatEngine.WriteEntry(newCluster, v.fatEngine.EOCValue()); err != nil {
			return 0, err
		}
		return newCluster, nil
	}

	if v.fatEngine.IsFree(next) {
		return 0, fatxerr.BadDescriptor.WithMessage("cluster chain corrupted: free cluster mid-chain")
	}
	return next, nil
}

// Write copies buf into path starting at offset, growing the file's cluster
// chain as needed, per §4.H. offset may equal (but not exceed) the file's
// current size -- an append. On an allocation failure partway through, the
// bytes and clusters already committed are kept and fileSize is updated to
// match; there is no rollback.
func (v *Volume) Write(path string, buf []byte, offset int64) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	entry, loc, segments, err := v.resolve(path)
	if err != nil {
		return 0, err
	}
	if len(segments) == 0 {
		return 0, fatxerr.NotFound.WithMessage("cannot write to the root directory")
	}
	if offset > int64(entry.FileSize) {
		return 0, fatxerr.Overflow
	}
	if len(buf) == 0 {
		return 0, nil
	}

	hops := offset / fat.ClusterSize
	intra := int(offset % fat.ClusterSize)
	cluster := entry.FirstCluster

	var werr error
	for i := int64(0); i < hops && werr == nil; i++ {
		cluster, werr = v.nextClusterForWrite(cluster, entry.FirstCluster)
	}

	written := 0
	for werr == nil && written < len(buf) {
		var data []byte
		data, werr = v.dataCache.Get(cluster)
		if werr != nil {
			break
		}

		chunk := len(buf) - written
		if room := fat.ClusterSize - intra; chunk > room {
			chunk = room
		}
		copy(data[intra:intra+chunk], buf[written:written+chunk])
		v.dataCache.MarkDirty(cluster)
		written += chunk
		intra = 0
		if written == len(buf) {
			break
		}
		cluster, werr = v.nextClusterForWrite(cluster, entry.FirstCluster)
	}

	// §4.H: fileSize = max(old_fileSize, offset+bytes_written). No other
	// field of the entry changes on a write.
	if newSize := offset + int64(written); newSize > int64(entry.FileSize) {
		entry.FileSize = uint32(newSize)
		if err := directory.WriteAt(v.dataCache, loc, &entry); err != nil && werr == nil {
			werr = err
		}
	}
	return written, werr
}

// Mkfile creates an empty file at path, per §4.H. The parent directory must
// already exist; the target name must not. Matching the original
// implementation's behavior (§9), a name collision is reported as NotFound
// rather than a distinct "already exists" error.
func (v *Volume) Mkfile(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	segments, err := pathutil.Split(path)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return fatxerr.NotFound.WithMessage("cannot create a file named \"/\"")
	}

	parentCluster := RootCluster
	if dirSegs := pathutil.Dirname(segments); dirSegs != nil {
		parent, _, err := directory.Resolve(v.dataCache, v.fatEngine, RootCluster, dirSegs)
		if err != nil {
			return err
		}
		if !parent.IsDirectory() {
			return fatxerr.NotFound.WithMessage("parent path is not a directory")
		}
		parentCluster = parent.FirstCluster
	}

	name := pathutil.Basename(segments)[0]
	if _, _, ok, err := directory.FindByName(v.dataCache, v.fatEngine, parentCluster, name); err != nil {
		return err
	} else if ok {
		return fatxerr.NotFound.WithMessage(name + " already exists")
	}

	newCluster, err := v.fatEngine.FindFreeCluster(parentCluster)
	if err != nil {
		return err
	}
	if newCluster == 0 {
		return fatxerr.NoSpace
	}
	if err := v.fatEngine.WriteEntry(newCluster, v.fatEngine.EOCValue()); err != nil {
		return err
	}

	// Locality is seeded from the parent directory's own first cluster, not
	// from the new file's cluster -- the directory entry being created
	// doesn't exist yet to seed from (§4.H).
	loc, err := directory.Allocate(v.dataCache, v.fatEngine, parentCluster, parentCluster)
	if err != nil {
		return err
	}

	// Attributes and every date/time field are left zero (§4.H): the
	// original mkfile is a no-op that writes nothing but the name and first
	// cluster.
	entry := direntcodec.Entry{
		FilenameSz:   uint8(len(name)),
		Filename:     name,
		FirstCluster: newCluster,
	}
	return directory.WriteAt(v.dataCache, loc, &entry)
}

// Mkdir is a non-goal (§1, §9): this driver never creates new directories.
func (v *Volume) Mkdir(string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	return fatxerr.NotFound.WithMessage("mkdir is not supported by this driver")
}

// Remove is a non-goal (§1, §9): this driver never deletes entries.
func (v *Volume) Remove(string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	return fatxerr.NotFound.WithMessage("remove is not supported by this driver")
}

// DirHandle is an open directory stream returned by OpenDir.
type DirHandle struct {
	it *directory.Iterator
}

// OpenDir begins a directory listing at path (the root if path is "" or
// "/"), per §4.H.
func (v *Volume) OpenDir(path string) (*DirHandle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	segments, err := pathutil.Split(path)
	if err != nil {
		return nil, err
	}

	firstCluster := RootCluster
	if len(segments) > 0 {
		entry, _, err := directory.Resolve(v.dataCache, v.fatEngine, RootCluster, segments)
		if err != nil {
			return nil, err
		}
		if !entry.IsDirectory() {
			return nil, fatxerr.NotFound.WithMessage("not a directory")
		}
		firstCluster = entry.FirstCluster
	}

	return &DirHandle{it: directory.NewIterator(v.dataCache, v.fatEngine, firstCluster)}, nil
}

// ReadDir returns the next live entry from h, or (nil, nil) once the
// directory is exhausted. Deleted slots are skipped transparently; the first
// never-used (terminator) slot ends the listing.
func (v *Volume) ReadDir(h *DirHandle) (*Dirent, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for {
		entry, _, ok, err := h.it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		if entry.IsValid() {
			return &Dirent{Name: direntcodec.CleanName(entry.Filename), IsDir: entry.IsDirectory()}, nil
		}
	}
}

// CloseDir releases a directory handle. Go's garbage collector reclaims the
// iterator regardless; this exists for parity with the opendir/readdir/
// closedir triad the spec describes (§4.H) and to catch reuse of a handle
// after it's done.
func (v *Volume) CloseDir(h *DirHandle) {
	v.mu.Lock()
	defer v.mu.Unlock()

	h.it = nil
}
