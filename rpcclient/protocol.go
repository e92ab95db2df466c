package rpcclient

import "time"

// requestTag identifies the variant of a requestEnvelope, in the ordinal
// order given by spec §6.1.
type requestTag uint8

const (
	tagList requestTag = iota
	tagStat
	tagDelete
	tagCreateFile
	tagCreateDirectory
	tagOpen
	tagClose
	tagMove
	tagGetFreeSpace
	tagRead
	tagWrite
	tagSetEndOfFile
)

// responseTag is the Ok/Err discriminant of a responseEnvelope.
type responseTag uint8

const (
	tagOk responseTag = iota
	tagErr
)

// ErrorKind is the wire-level error enum a daemon response may carry.
type ErrorKind uint8

const (
	KindFileNotFound ErrorKind = iota
	KindNoSuchHandle
	KindFileExists
	KindPermissionDenied
	KindCouldNotFindDisk
	KindOther
)

// FileHandle identifies an open file on the daemon; 0 means "no handle".
type FileHandle uint32

// requestEnvelope is the flat, tagged-union rendering of spec §6.1's request
// sum type: every field any variant needs is present, zero-valued when the
// active Tag doesn't use it.
type requestEnvelope struct {
	Tag     requestTag `cbor:"0,keyasint"`
	Path    string     `cbor:"1,keyasint"`
	To      string     `cbor:"2,keyasint"`
	Handle  uint32     `cbor:"3,keyasint"`
	Offset  uint64     `cbor:"4,keyasint"`
	Length  uint32     `cbor:"5,keyasint"`
	Replace bool       `cbor:"6,keyasint"`
}

// wireFileInfo mirrors spec §6.1's FileInfo on the wire: times are
// seconds+nanoseconds since epoch, not time.Time, matching the bit-exact
// description literally.
type wireFileInfo struct {
	CreationSec      int64  `cbor:"0,keyasint"`
	CreationNsec     uint32 `cbor:"1,keyasint"`
	LastModifiedSec  int64  `cbor:"2,keyasint"`
	LastModifiedNsec uint32 `cbor:"3,keyasint"`
	LastAccessedSec  int64  `cbor:"4,keyasint"`
	LastAccessedNsec uint32 `cbor:"5,keyasint"`
	Name             string `cbor:"6,keyasint"`
	Size             uint64 `cbor:"7,keyasint"`
	Mode             uint32 `cbor:"8,keyasint"`
	Ino              uint64 `cbor:"9,keyasint"`
}

// responseEnvelope is the flat rendering of spec §6.1's Ok(T)/Err(ErrorKind)
// response sum type. Which fields are meaningful depends on the request
// that produced this response and on Tag/ErrorKind.
type responseEnvelope struct {
	Tag            responseTag    `cbor:"0,keyasint"`
	ErrorKind      ErrorKind      `cbor:"1,keyasint"`
	Infos          []wireFileInfo `cbor:"2,keyasint"`
	Info           wireFileInfo   `cbor:"3,keyasint"`
	Handle         uint32         `cbor:"4,keyasint"`
	LengthReadable uint32         `cbor:"5,keyasint"`
	TotalBytes     uint64         `cbor:"6,keyasint"`
	FreeBytes      uint64         `cbor:"7,keyasint"`
}

// FileInfo is the client-facing, time.Time-based rendering of wireFileInfo.
type FileInfo struct {
	CreationTime time.Time
	LastModified time.Time
	LastAccessed time.Time
	Name         string
	Size         uint64
	Mode         uint32
	Ino          uint64
}

// IsDir reports whether mode's type bits mark a directory (spec §3).
func (fi FileInfo) IsDir() bool {
	return fi.Mode&0xF000 == 0x4000
}

// IsSymlink reports whether mode's type bits mark a symbolic link (spec §3).
func (fi FileInfo) IsSymlink() bool {
	return fi.Mode&0xF000 == 0xA000
}

func fromWireFileInfo(w wireFileInfo) FileInfo {
	return FileInfo{
		CreationTime: time.Unix(w.CreationSec, int64(w.CreationNsec)),
		LastModified: time.Unix(w.LastModifiedSec, int64(w.LastModifiedNsec)),
		LastAccessed: time.Unix(w.LastAccessedSec, int64(w.LastAccessedNsec)),
		Name:         w.Name,
		Size:         w.Size,
		Mode:         w.Mode,
		Ino:          w.Ino,
	}
}

// FreeSpace is the result of GetFreeSpace.
type FreeSpace struct {
	TotalBytes uint64
	FreeBytes  uint64
}
