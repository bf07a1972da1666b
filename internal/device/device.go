// Package device implements positioned I/O against the backing object a
// volume is mounted on (component A: Device I/O).
package device

import (
	"io"

	"github.com/dargueta/fatx/fatxerr"
)

// BlockDevice is the collaborator interface the core needs from a backing
// object, whether it's a regular file holding a disk image or a raw block
// device. It deliberately asks for nothing beyond positioned read/write and
// a size -- geometry probing for real block devices is a host responsibility
// (see GeometryProber).
type BlockDevice interface {
	io.ReaderAt
	io.WriterAt
	// SizeInBytes returns the total addressable size of the backing object.
	SizeInBytes() (int64, error)
}

// GeometryProber is implemented by backing objects that know their own
// block-device geometry (e.g. by issuing the host's block-size/block-count
// ioctls). A *os.File open on a regular disk image does not implement this;
// callers that need to mount an actual block device pass Open a BlockDevice
// that also implements GeometryProber.
type GeometryProber interface {
	// BlockGeometry returns the device's block count and block size. The
	// second return value is false when the geometry could not be probed.
	BlockGeometry() (blockCount uint64, blockSize uint, ok bool)
}

// ClusterCount derives the total number of clusters on the volume from the
// backing object, per spec §4.A: regular files derive it from their size;
// devices that can report block geometry derive it from block count and
// block size.
func ClusterCount(dev BlockDevice, clusterSize int64) (uint32, error) {
	if prober, ok := dev.(GeometryProber); ok {
		if blockCount, blockSize, ok := prober.BlockGeometry(); ok && blockSize > 0 {
			blocksPerCluster := uint64(clusterSize) / uint64(blockSize)
			if blocksPerCluster == 0 {
				return 0, fatxerr.InitFailure.WithMessage(
					"device block size is larger than the cluster size")
			}
			return uint32(blockCount / blocksPerCluster), nil
		}
	}

	size, err := dev.SizeInBytes()
	if err != nil {
		return 0, fatxerr.InitFailure.Wrap(err)
	}
	return uint32(size >> 14), nil // size / 16384
}

// ReadAt reads exactly len(buf) bytes from the device at the given offset,
// turning a short read into an error rather than silently returning partial
// data.
func ReadAt(dev BlockDevice, offset int64, buf []byte) error {
	n, err := dev.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return fatxerr.BadDescriptor.Wrap(err)
	}
	if n != len(buf) {
		return fatxerr.BadDescriptor.WithMessage("short read from backing device")
	}
	return nil
}

// WriteAt writes exactly len(buf) bytes to the device at the given offset.
func WriteAt(dev BlockDevice, offset int64, buf []byte) error {
	n, err := dev.WriteAt(buf, offset)
	if err != nil {
		return fatxerr.BadDescriptor.Wrap(err)
	}
	if n != len(buf) {
		return fatxerr.BadDescriptor.WithMessage("short write to backing device")
	}
	return nil
}

// FileBackedDevice adapts any io.ReaderAt + io.WriterAt + io.Seeker (e.g. an
// *os.File, or an in-memory bytesextra.ReadWriteSeeker used in tests) to
// BlockDevice. It never implements GeometryProber: regular files always fall
// back to the size-based cluster count computation.
type FileBackedDevice struct {
	io.ReaderAt
	io.WriterAt
	Seeker io.Seeker
}

// NewFileBackedDevice wraps anything with ReadAt, WriteAt and Seek as a
// BlockDevice.
func NewFileBackedDevice(f interface {
	io.ReaderAt
	io.WriterAt
	io.Seeker
}) *FileBackedDevice {
	return &FileBackedDevice{ReaderAt: f, WriterAt: f, Seeker: f}
}

// SizeInBytes implements BlockDevice by seeking to the end of the stream.
func (d *FileBackedDevice) SizeInBytes() (int64, error) {
	return d.Seeker.Seek(0, io.SeekEnd)
}
