package directory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/fatx/internal/cache"
	"github.com/dargueta/fatx/internal/direntcodec"
	"github.com/dargueta/fatx/internal/directory"
	"github.com/dargueta/fatx/internal/fat"
)

// testVolume wires a FAT engine and data cache over plain in-memory slices,
// large enough for the small directory-chain scenarios these tests exercise.
type testVolume struct {
	fatEngine *fat.Engine
	data      *cache.Cache
}

func newTestVolume(t *testing.T, clusterCount uint32) *testVolume {
	pages := make([][]byte, 8)
	for i := range pages {
		pages[i] = make([]byte, fat.PageSize)
	}
	fatCache := cache.New(fat.PageSize, 32,
		func(id uint32, buf []byte) error { copy(buf, pages[id]); return nil },
		func(id uint32, buf []byte) error { copy(pages[id], buf); return nil },
	)

	clusters := make([][]byte, clusterCount+8)
	for i := range clusters {
		clusters[i] = make([]byte, fat.ClusterSize)
	}
	dataCache := cache.New(fat.ClusterSize, 32,
		func(id uint32, buf []byte) error { require.Less(t, int(id), len(clusters)); copy(buf, clusters[id]); return nil },
		func(id uint32, buf []byte) error { require.Less(t, int(id), len(clusters)); copy(clusters[id], buf); return nil },
	)

	return &testVolume{
		fatEngine: fat.New(fatCache, fat.Variant16, clusterCount),
		data:      dataCache,
	}
}

// initDir allocates cluster `first` as an empty, freshly-terminated
// directory cluster chained to EOC.
func (tv *testVolume) initDir(t *testing.T, first uint32) {
	require.NoError(t, tv.fatEngine.WriteEntry(first, tv.fatEngine.EOCValue()))
	buf, err := tv.data.Get(first)
	require.NoError(t, err)
	direntcodec.InitClusterBytes(buf)
	tv.data.MarkDirty(first)
}

func (tv *testVolume) addEntry(t *testing.T, dirFirst uint32, name string, isDir bool, firstCluster uint32) {
	loc, err := directory.Allocate(tv.data, tv.fatEngine, dirFirst, dirFirst)
	require.NoError(t, err)

	attrs := uint8(0)
	if isDir {
		attrs = direntcodec.AttrDirectory
	}
	entry := direntcodec.Entry{
		FilenameSz:   uint8(len(name)),
		Attributes:   attrs,
		Filename:     name,
		FirstCluster: firstCluster,
	}
	require.NoError(t, directory.WriteAt(tv.data, loc, &entry))
}

func TestReadAllOnEmptyDirectoryIsEmpty(t *testing.T) {
	tv := newTestVolume(t, 50)
	tv.initDir(t, 1)

	entries, err := directory.ReadAll(tv.data, tv.fatEngine, 1)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAddAndFindEntries(t *testing.T) {
	tv := newTestVolume(t, 50)
	tv.initDir(t, 1)

	tv.addEntry(t, 1, "A", false, 10)
	tv.addEntry(t, 1, "B", false, 11)
	tv.addEntry(t, 1, "C", true, 12)

	entries, err := directory.ReadAll(tv.data, tv.fatEngine, 1)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "A", entries[0].Filename)
	assert.Equal(t, "B", entries[1].Filename)
	assert.Equal(t, "C", entries[2].Filename)
	assert.True(t, entries[2].IsDirectory())

	found, _, ok, err := directory.FindByName(tv.data, tv.fatEngine, 1, "B")
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 11, found.FirstCluster)

	_, _, ok, err = directory.FindByName(tv.data, tv.fatEngine, 1, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllocateReusesDeletedSlot(t *testing.T) {
	tv := newTestVolume(t, 50)
	tv.initDir(t, 1)

	tv.addEntry(t, 1, "A", false, 10)
	loc, err := directory.Allocate(tv.data, tv.fatEngine, 1, 1)
	require.NoError(t, err)

	// Mark the first entry deleted directly, then allocate again: it
	// should be reused in place rather than appending a new slot.
	entry, err := directory.ReadAt(tv.data, directory.Location{Cluster: 1, EntryIndex: 0})
	require.NoError(t, err)
	entry.FilenameSz = direntcodec.Deleted
	require.NoError(t, directory.WriteAt(tv.data, directory.Location{Cluster: 1, EntryIndex: 0}, &entry))

	reused, err := directory.Allocate(tv.data, tv.fatEngine, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, directory.Location{Cluster: 1, EntryIndex: 0}, reused)
	assert.NotEqual(t, loc, reused)
}

func TestAllocateExtendsChainWhenClusterFull(t *testing.T) {
	tv := newTestVolume(t, 50)
	tv.initDir(t, 1)

	for i := 0; i < directory.EntriesPerCluster; i++ {
		tv.addEntry(t, 1, "x", false, 20)
	}

	loc, err := directory.Allocate(tv.data, tv.fatEngine, 1, 1)
	require.NoError(t, err)
	assert.NotEqual(t, uint32(1), loc.Cluster, "must have allocated a new cluster")
	assert.EqualValues(t, 0, loc.EntryIndex)

	next, err := tv.fatEngine.ReadEntry(1)
	require.NoError(t, err)
	assert.Equal(t, loc.Cluster, next)

	nextFat, err := tv.fatEngine.ReadEntry(loc.Cluster)
	require.NoError(t, err)
	assert.True(t, tv.fatEngine.IsEOC(nextFat))
}

func TestResolveNestedPath(t *testing.T) {
	tv := newTestVolume(t, 50)
	tv.initDir(t, 1) // root-like directory at cluster 1
	tv.initDir(t, 5) // subdirectory "sub" at cluster 5

	tv.addEntry(t, 1, "sub", true, 5)
	tv.addEntry(t, 5, "file.txt", false, 9)

	entry, _, err := directory.Resolve(tv.data, tv.fatEngine, 1, []string{"sub", "file.txt"})
	require.NoError(t, err)
	assert.EqualValues(t, 9, entry.FirstCluster)
}

func TestResolveThroughNonDirectoryFails(t *testing.T) {
	tv := newTestVolume(t, 50)
	tv.initDir(t, 1)
	tv.addEntry(t, 1, "plain", false, 7)

	_, _, err := directory.Resolve(tv.data, tv.fatEngine, 1, []string{"plain", "x"})
	assert.Error(t, err)
}
