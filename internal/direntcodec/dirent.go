// Package direntcodec encodes and decodes FATX's 64-byte directory entry
// format and converts between its packed date/time fields and time.Time.
//
// Grounded on the teacher's file_systems/fat/dirent.go (NewRawDirentFromBytes,
// DateFromInt, TimestampFromParts, AttrFlagsToFileMode), adapted from FAT's
// 8.3 name/extension little-endian layout to FATX's 64-byte, mostly
// big-endian layout (§3) with its filenameSz-based terminator/deleted
// convention instead of a leading 0xE5/0x05/0x00 byte in an 11-byte name
// field.
package direntcodec

import (
	"strings"
	"time"

	"github.com/noxer/bytewriter"

	"encoding/binary"
)

// EntrySize is the fixed size, in bytes, of one on-disk directory entry (§3).
const EntrySize = 64

// MaxNameLength is the longest filename a directory entry can hold (§3, §6).
const MaxNameLength = 42

// filenameSz sentinel values (§3).
const (
	// Terminator marks "this and every later entry in this cluster has
	// never been used".
	Terminator = 0xFF
	// Deleted marks a reusable, previously-occupied slot.
	Deleted = 0xE5
)

// Attribute bit flags (§3).
const (
	AttrHidden    = 0x02
	AttrDirectory = 0x10
)

// Entry is the decoded form of a 64-byte directory entry.
type Entry struct {
	FilenameSz       uint8
	Attributes       uint8
	Filename         string
	FirstCluster     uint32
	FileSize         uint32
	CreationDate     uint16
	CreationTime     uint16
	AccessDate       uint16
	AccessTime       uint16
	ModificationDate uint16
	ModificationTime uint16
}

// IsTerminator reports whether this is the never-used terminator sentinel:
// no later entry in this cluster is in use either.
func (e *Entry) IsTerminator() bool { return e.FilenameSz == Terminator }

// IsValid reports whether this entry currently describes a live file or
// directory.
func (e *Entry) IsValid() bool { return e.FilenameSz <= MaxNameLength }

// IsReusable reports whether this slot can be claimed by a new entry: either
// explicitly deleted, or carrying some other filenameSz too long to be
// valid, but not the terminator (§4.F).
func (e *Entry) IsReusable() bool {
	return !e.IsTerminator() && !e.IsValid()
}

// IsDirectory reports whether the folder attribute bit is set.
func (e *Entry) IsDirectory() bool { return e.Attributes&AttrDirectory != 0 }

// Decode parses one 64-byte directory entry from buf.
func Decode(buf []byte) Entry {
	filenameSz := buf[0]
	nameLen := int(filenameSz)
	if nameLen > MaxNameLength {
		nameLen = 0
	}

	return Entry{
		FilenameSz:       filenameSz,
		Attributes:       buf[1],
		Filename:         string(buf[2 : 2+nameLen]),
		FirstCluster:     binary.BigEndian.Uint32(buf[44:48]),
		FileSize:         binary.BigEndian.Uint32(buf[48:52]),
		CreationDate:     binary.BigEndian.Uint16(buf[52:54]),
		CreationTime:     binary.BigEndian.Uint16(buf[54:56]),
		AccessDate:       binary.BigEndian.Uint16(buf[56:58]),
		AccessTime:       binary.BigEndian.Uint16(buf[58:60]),
		ModificationDate: binary.BigEndian.Uint16(buf[60:62]),
		ModificationTime: binary.BigEndian.Uint16(buf[62:64]),
	}
}

// Encode serializes e into buf, which must be exactly EntrySize bytes. The
// fixed-width big-endian tail (bytes 44-63) is streamed out with
// noxer/bytewriter the same way the teacher's unixv1 formatter streams
// fields into a pre-sliced output region.
func Encode(e *Entry, buf []byte) {
	buf[0] = e.FilenameSz
	buf[1] = e.Attributes

	nameLen := len(e.Filename)
	if nameLen > MaxNameLength {
		nameLen = MaxNameLength
	}
	for i := 2; i < 44; i++ {
		buf[i] = 0
	}
	copy(buf[2:2+nameLen], e.Filename)

	// writer is exactly the 20-byte region these eight fields add up to, so
	// binary.Write can never fail here; errors are discarded deliberately.
	writer := bytewriter.New(buf[44:64])
	_ = binary.Write(writer, binary.BigEndian, e.FirstCluster)
	_ = binary.Write(writer, binary.BigEndian, e.FileSize)
	_ = binary.Write(writer, binary.BigEndian, e.CreationDate)
	_ = binary.Write(writer, binary.BigEndian, e.CreationTime)
	_ = binary.Write(writer, binary.BigEndian, e.AccessDate)
	_ = binary.Write(writer, binary.BigEndian, e.AccessTime)
	_ = binary.Write(writer, binary.BigEndian, e.ModificationDate)
	_ = binary.Write(writer, binary.BigEndian, e.ModificationTime)
}

// InitClusterBytes sets every directory entry slot in a freshly-allocated
// directory cluster to the terminator sentinel (§4.F, init_dir_cluster).
func InitClusterBytes(clusterBuf []byte) {
	for i := 0; i+EntrySize <= len(clusterBuf); i += EntrySize {
		clusterBuf[i] = Terminator
	}
}

// fatxEpoch is 1980-01-01 00:00:00 local time, the earliest representable
// FATX timestamp.
var fatxEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.Local)

// DateFromUint16 unpacks a FAT date field: [year-1980:7][month:4][day:5].
func DateFromUint16(v uint16) (year int, month time.Month, day int) {
	return 1980 + int(v>>9), time.Month((v >> 5) & 0x0F), int(v & 0x1F)
}

// TimeFromUint16 unpacks a FAT time field: [hour:5][minute:6][second/2:5].
func TimeFromUint16(v uint16) (hour, minute, second int) {
	return int(v >> 11), int((v >> 5) & 0x3F), int(v&0x1F) * 2
}

// ToTime converts a FATX date/time pair to a time.Time using the host's
// local-time rules, the same way the original C implementation builds a
// broken-down time and resolves DST with tm_isdst = -1: Go's time.Date
// performs that resolution implicitly when given time.Local.
func ToTime(date, clock uint16) time.Time {
	year, month, day := DateFromUint16(date)
	hour, minute, second := TimeFromUint16(clock)
	return time.Date(year, month, day, hour, minute, second, 0, time.Local)
}

// FromTime converts a time.Time into FATX date/time fields. Times before the
// FATX epoch are clamped to it.
func FromTime(t time.Time) (date, clock uint16) {
	if t.Before(fatxEpoch) {
		t = fatxEpoch
	}
	local := t.Local()

	date = uint16((local.Year()-1980)<<9) | uint16(local.Month())<<5 | uint16(local.Day())
	clock = uint16(local.Hour())<<11 | uint16(local.Minute())<<5 | uint16(local.Second()/2)
	return date, clock
}

// CleanName trims the entry name the way a name reported by readdir should
// look: it's already unpadded ASCII on disk, but this guards against stray
// NUL padding some writers leave behind.
func CleanName(name string) string {
	return strings.TrimRight(name, "\x00")
}
