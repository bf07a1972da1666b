// Package fatx implements a read/write driver for the FATX file system (the
// Xbox FAT variant): FAT allocation, a two-tier block cache, and directory
// and file operations, all serialized behind a single volume lock (§1, §2).
package fatx

import (
	"os"
	"time"
)

// Options configures a Volume at Open time.
type Options struct {
	// UID and GID are reported for every file and directory; FATX carries no
	// per-file ownership on disk.
	UID uint32
	GID uint32

	// FilePermissions is the permission bits reported for every file and
	// directory (the low 9 bits of os.FileMode); FATX carries no per-file
	// permission bits on disk.
	FilePermissions os.FileMode

	// Trace, if non-nil, is called with a human-readable line for every
	// cache fetch and flush. Intended for debugging, not structured log
	// aggregation -- FATX volumes have no audit trail of their own to feed.
	Trace func(format string, args ...any)
}

// FileStat mirrors the fields a stat() call can actually populate from a
// FATX directory entry (§4.H). There is no inode concept, so Nlink is always
// 1, the synthetic root included.
type FileStat struct {
	Mode       os.FileMode
	Size       int64
	Nlink      uint32
	UID        uint32
	GID        uint32
	AccessedAt time.Time
	ModifiedAt time.Time
}

// Dirent is one entry returned by ReadDir.
type Dirent struct {
	Name  string
	IsDir bool
}

func (o Options) trace(format string, args ...any) {
	if o.Trace != nil {
		o.Trace(format, args...)
	}
}
