// Package hostmount binds volume.Handler to the host mount framework
// (winfsp/cgofuse's FUSE-shaped callback convention) actually available in
// this build's dependency stack. FUSE's calling convention isn't Dokan's:
// this package is the concrete, partial adapter that translates one onto
// the other, documenting the handful of callbacks that don't line up 1:1.
package hostmount

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/winfsp/cgofuse/fuse"

	"github.com/go-androidfs/androidfs/rpcclient"
	"github.com/go-androidfs/androidfs/volume"
)

// FileSystem implements fuse.FileSystemInterface by delegating to a
// volume.Handler. One instance per mounted volume, matching Handler's own
// per-volume lifetime.
type FileSystem struct {
	fuse.FileSystemBase

	handler *volume.Handler
	log     *logrus.Entry

	mu       sync.Mutex
	handles  map[uint64]rpcclient.FileHandle
	nextFuse uint64
}

func New(handler *volume.Handler, log *logrus.Entry) *FileSystem {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &FileSystem{
		handler:  handler,
		log:      log,
		handles:  make(map[uint64]rpcclient.FileHandle),
		nextFuse: 1,
	}
}

// registerHandle stores a remote handle under a fresh local fh number, since
// cgofuse's convention is a caller-opaque uint64 returned from Open/Create
// and passed back unchanged on every subsequent call, whereas volume.Handler
// speaks rpcclient.FileHandle directly. Dokan's convention, by contrast,
// hands the filesystem a context pointer it manages itself; cgofuse expects
// the filesystem to mint its own number. This indirection is the mapping
// that difference requires.
func (fs *FileSystem) registerHandle(remote rpcclient.FileHandle) uint64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fh := fs.nextFuse
	fs.nextFuse++
	fs.handles[fh] = remote
	return fh
}

func (fs *FileSystem) resolveHandle(fh uint64) (rpcclient.FileHandle, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	remote, ok := fs.handles[fh]
	return remote, ok
}

func (fs *FileSystem) releaseHandle(fh uint64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.handles, fh)
}

// errnoFor maps an rpcclient sentinel error to the errno cgofuse expects
// (spec §4.4's callbacks all return a negative errno on failure).
func errnoFor(err error) int {
	switch {
	case err == nil:
		return 0
	case isErr(err, rpcclient.ErrFileNotFound):
		return -fuse.ENOENT
	case isErr(err, rpcclient.ErrNoSuchHandle):
		return -fuse.EBADF
	case isErr(err, rpcclient.ErrFileExists):
		return -fuse.EEXIST
	case isErr(err, rpcclient.ErrPermissionDenied):
		return -fuse.EACCES
	case isErr(err, rpcclient.ErrCouldNotFindDisk):
		return -fuse.ENODEV
	case isErr(err, volume.ErrNotImplemented):
		return -fuse.ENOSYS
	default:
		return -fuse.EIO
	}
}

func isErr(err, target error) bool {
	for e := err; e != nil; {
		if e == target {
			return true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}

// Getattr implements the FUSE stat callback on top of
// volume.Handler.GetFileInformation (spec §4.4's get_file_information).
func (fs *FileSystem) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	info, err := fs.handler.GetFileInformation(path)
	if err != nil {
		return errnoFor(err)
	}
	fillStat(stat, info)
	return 0
}

func fillStat(stat *fuse.Stat_t, info rpcclient.FileInfo) {
	*stat = fuse.Stat_t{}
	stat.Size = int64(info.Size)
	stat.Mode = info.Mode
	if info.IsDir() {
		stat.Mode = (stat.Mode &^ 0xF000) | uint32(fuse.S_IFDIR)
	} else if !info.IsSymlink() {
		stat.Mode = (stat.Mode &^ 0xF000) | uint32(fuse.S_IFREG)
	}
	stat.Mtim = toFuseTimespec(info.LastModified)
	stat.Atim = toFuseTimespec(info.LastAccessed)
	stat.Ctim = toFuseTimespec(info.CreationTime)
	stat.Birthtim = toFuseTimespec(info.CreationTime)
}

func toFuseTimespec(t time.Time) fuse.Timespec {
	return fuse.Timespec{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

// Open implements the FUSE open callback: spec §4.4's create_file with
// disposition OPEN_EXISTING.
func (fs *FileSystem) Open(path string, flags int) (int, uint64) {
	res, err := fs.handler.CreateFile(path, volume.DispositionOpenExisting)
	if err != nil {
		return errnoFor(err), 0
	}
	if res.IsDir {
		return 0, 0
	}
	return 0, fs.registerHandle(res.Handle)
}

// Create implements the FUSE create callback: spec §4.4's create_file with
// disposition OPEN_IF.
func (fs *FileSystem) Create(path string, flags int, mode uint32) (int, uint64) {
	res, err := fs.handler.CreateFile(path, volume.DispositionOpenIf)
	if err != nil {
		return errnoFor(err), 0
	}
	if res.IsDir {
		return 0, 0
	}
	return 0, fs.registerHandle(res.Handle)
}

// Release implements the FUSE close callback: spec §4.4's close_file.
func (fs *FileSystem) Release(path string, fh uint64) int {
	if remote, ok := fs.resolveHandle(fh); ok {
		fs.handler.CloseFile(remote)
		fs.releaseHandle(fh)
	}
	return 0
}

// Read implements the FUSE read callback: spec §4.4's read_file.
func (fs *FileSystem) Read(path string, buff []byte, ofst int64, fh uint64) int {
	remote, ok := fs.resolveHandle(fh)
	if !ok {
		return -fuse.EBADF
	}
	n, err := fs.handler.ReadFile(remote, uint64(ofst), buff)
	if err != nil {
		return errnoFor(err)
	}
	return n
}

// Write implements the FUSE write callback: spec §4.4's write_file.
func (fs *FileSystem) Write(path string, buff []byte, ofst int64, fh uint64) int {
	remote, ok := fs.resolveHandle(fh)
	if !ok {
		return -fuse.EBADF
	}
	n, err := fs.handler.WriteFile(remote, uint64(ofst), buff)
	if err != nil {
		return errnoFor(err)
	}
	return n
}

// Truncate implements the FUSE truncate callback: spec §4.4's
// set_end_of_file. cgofuse may call this with fh==0 (path-only truncate,
// e.g. via the truncate(2) syscall rather than ftruncate); that shape has no
// volume.Handler equivalent since set_end_of_file is handle-based, so it's
// reported unimplemented rather than silently ignored.
func (fs *FileSystem) Truncate(path string, size int64, fh uint64) int {
	remote, ok := fs.resolveHandle(fh)
	if !ok {
		return -fuse.ENOSYS
	}
	if err := fs.handler.SetEndOfFile(remote, uint64(size)); err != nil {
		return errnoFor(err)
	}
	return 0
}

// Unlink implements the FUSE unlink callback: spec §4.4's delete_file.
func (fs *FileSystem) Unlink(path string) int {
	return errnoFor(fs.handler.DeleteFile(path))
}

// Rmdir implements the FUSE rmdir callback: spec §4.4's delete_directory.
func (fs *FileSystem) Rmdir(path string) int {
	return errnoFor(fs.handler.DeleteDirectory(path))
}

// Readdir implements the FUSE readdir callback: spec §4.4's find_files.
func (fs *FileSystem) Readdir(path string,
	fill func(name string, stat *fuse.Stat_t, ofst int64) bool,
	ofst int64, fh uint64) int {

	infos, err := fs.handler.FindFiles(path)
	if err != nil {
		return errnoFor(err)
	}
	fill(".", nil, 0)
	fill("..", nil, 0)
	for _, info := range infos {
		var stat fuse.Stat_t
		fillStat(&stat, info)
		if !fill(info.Name, &stat, 0) {
			break
		}
	}
	return 0
}

// Statfs implements the FUSE statfs callback: spec §4.4's
// get_disk_free_space and get_volume_information's size-reporting half.
func (fs *FileSystem) Statfs(path string, stat *fuse.Statfs_t) int {
	free, err := fs.handler.GetDiskFreeSpace()
	if err != nil {
		return errnoFor(err)
	}
	const blockSize = 4096
	*stat = fuse.Statfs_t{}
	stat.Bsize = blockSize
	stat.Frsize = blockSize
	stat.Blocks = free.TotalBytes / blockSize
	stat.Bfree = free.FreeBytes / blockSize
	stat.Bavail = stat.Bfree
	stat.Namemax = 4095
	return 0
}
