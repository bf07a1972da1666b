package fatx

import "github.com/dargueta/fatx/internal/fat"

// FATStartOffset is the fixed byte offset where the FAT begins (§3
// invariant). The first 0x1000 bytes of the volume are a superblock region
// this driver does not parse; geometry is derived from cluster count, not
// from anything stored there.
const FATStartOffset = int64(0x1000)

// RootCluster is the synthetic first cluster of the root directory (§3).
const RootCluster = uint32(1)

// roundUp rounds n up to the next multiple of `multiple`.
func roundUp(n, multiple int64) int64 {
	return ((n + multiple - 1) / multiple) * multiple
}

// geometry holds everything derived from a volume's cluster count at open
// time (§3).
type geometry struct {
	variant      fat.Variant
	clusterCount uint32
	fatPages     uint32
	dataStart    int64
}

// computeGeometry derives a volume's FAT variant, FAT region size, and data
// region start offset purely from its cluster count, per §3:
//
//	data_start = 0x1000 + round_up(nClusters * entry_bytes, 4096) - cluster_size
//
// The cluster-size subtraction encodes that on-disk cluster 1 -- not 0 -- is
// the first data cluster (§9): "the first page after the FAT counts as page
// 1, so we'll just be skipping it."
func computeGeometry(clusterCount uint32) geometry {
	variant := fat.DetermineVariant(clusterCount)
	fatBytes := int64(clusterCount) * int64(fat.EntrySize(variant))
	fatRegionBytes := roundUp(fatBytes, fat.PageSize)

	return geometry{
		variant:      variant,
		clusterCount: clusterCount,
		fatPages:     uint32(fatRegionBytes / fat.PageSize),
		dataStart:    FATStartOffset + fatRegionBytes - fat.ClusterSize,
	}
}

// clusterOffset returns cluster n's absolute byte offset in the backing
// device.
func (g geometry) clusterOffset(n uint32) int64 {
	return g.dataStart + int64(n)*fat.ClusterSize
}

// pageOffset returns FAT page p's absolute byte offset in the backing
// device.
func (g geometry) pageOffset(p uint32) int64 {
	return FATStartOffset + int64(p)*fat.PageSize
}
