package fat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/fatx/internal/cache"
	"github.com/dargueta/fatx/internal/fat"
)

func newEngine(t *testing.T, variant fat.Variant, clusterCount uint32) (*fat.Engine, *cache.Cache) {
	// One page per 4 KiB of FAT entries, rounded up.
	pages := make([][]byte, clusterCount*fat.EntrySize(variant)/fat.PageSize+1)
	for i := range pages {
		pages[i] = make([]byte, fat.PageSize)
	}
	fetch := func(id uint32, buf []byte) error {
		require.Less(t, int(id), len(pages))
		copy(buf, pages[id])
		return nil
	}
	flush := func(id uint32, buf []byte) error {
		require.Less(t, int(id), len(pages))
		copy(pages[id], buf)
		return nil
	}
	c := cache.New(fat.PageSize, 32, fetch, flush)
	return fat.New(c, variant, clusterCount), c
}

func TestDetermineVariant(t *testing.T) {
	assert.Equal(t, fat.Variant16, fat.DetermineVariant(100))
	assert.Equal(t, fat.Variant16, fat.DetermineVariant(65524))
	assert.Equal(t, fat.Variant32, fat.DetermineVariant(65525))
}

func TestReadWriteRoundTrip16(t *testing.T) {
	e, _ := newEngine(t, fat.Variant16, 1000)

	require.NoError(t, e.WriteEntry(5, 0x1234))
	v, err := e.ReadEntry(5)
	require.NoError(t, err)
	assert.EqualValues(t, 0x1234, v)
}

func TestReadWriteRoundTrip32(t *testing.T) {
	e, _ := newEngine(t, fat.Variant32, 100000)

	require.NoError(t, e.WriteEntry(9000, 0xDEADBEEF))
	v, err := e.ReadEntry(9000)
	require.NoError(t, err)
	assert.EqualValues(t, 0xDEADBEEF, v)
}

func TestIsEOCThresholds(t *testing.T) {
	e16, _ := newEngine(t, fat.Variant16, 1000)
	assert.True(t, e16.IsEOC(0xFFF8))
	assert.False(t, e16.IsEOC(0xFFF7))

	e32, _ := newEngine(t, fat.Variant32, 100000)
	assert.True(t, e32.IsEOC(0xFFFFFFF8))
	assert.False(t, e32.IsEOC(0xFFFFFFF7))
}

func TestFindFreeClusterSkipsZeroAndAllocated(t *testing.T) {
	e, _ := newEngine(t, fat.Variant16, 10)

	// Allocate everything except cluster 4.
	for i := uint32(1); i < 10; i++ {
		if i == 4 {
			continue
		}
		require.NoError(t, e.WriteEntry(i, 0xFFFF))
	}

	found, err := e.FindFreeCluster(0)
	require.NoError(t, err)
	assert.EqualValues(t, 4, found)
}

func TestFindFreeClusterReturnsZeroWhenFull(t *testing.T) {
	e, _ := newEngine(t, fat.Variant16, 4)
	for i := uint32(1); i < 4; i++ {
		require.NoError(t, e.WriteEntry(i, 0xFFFF))
	}

	found, err := e.FindFreeCluster(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, found)
}

func TestWalkToOffsetFollowsChain(t *testing.T) {
	e, _ := newEngine(t, fat.Variant32, 100)
	require.NoError(t, e.WriteEntry(1, 2))
	require.NoError(t, e.WriteEntry(2, 3))
	require.NoError(t, e.WriteEntry(3, 0xFFFFFFFF))

	cluster, intra, err := e.WalkToOffset(1, fat.ClusterSize+100)
	require.NoError(t, err)
	assert.EqualValues(t, 2, cluster)
	assert.Equal(t, 100, intra)
}

func TestWalkToOffsetDetectsCorruption(t *testing.T) {
	e, _ := newEngine(t, fat.Variant32, 100)
	require.NoError(t, e.WriteEntry(1, 0)) // free -- corrupt chain

	_, _, err := e.WalkToOffset(1, fat.ClusterSize)
	assert.Error(t, err)
}
