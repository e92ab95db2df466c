package rpcclient

import (
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Client-local error strata (spec §7 strata 1): transport and decode
// failures never leave the process, they're always wrapped in one of these
// two before being handed to a caller.
var (
	// ErrIO marks a transport failure: the connection dropped or a read/write
	// on it failed.
	ErrIO = errors.New("rpcclient: io failure")
	// ErrInvalidData marks a frame that failed to decode.
	ErrInvalidData = errors.New("rpcclient: received invalid data")
)

// Remote logical errors (spec §6.1/§7 stratum 2), one sentinel per ErrorKind.
var (
	ErrFileNotFound     = errors.New("rpcclient: file not found")
	ErrNoSuchHandle     = errors.New("rpcclient: no such handle")
	ErrFileExists       = errors.New("rpcclient: file exists")
	ErrPermissionDenied = errors.New("rpcclient: permission denied")
	ErrCouldNotFindDisk = errors.New("rpcclient: could not find disk")
	ErrOther            = errors.New("rpcclient: other remote error")
)

var errorKindTable = map[ErrorKind]error{
	KindFileNotFound:     ErrFileNotFound,
	KindNoSuchHandle:     ErrNoSuchHandle,
	KindFileExists:       ErrFileExists,
	KindPermissionDenied: ErrPermissionDenied,
	KindCouldNotFindDisk: ErrCouldNotFindDisk,
	KindOther:            ErrOther,
}

func errorForKind(k ErrorKind) error {
	if err, ok := errorKindTable[k]; ok {
		return err
	}
	return ErrOther
}

// Client is a single mutex-serialized RPC connection to one daemon. All
// exported methods take the client by value-receiver-like shared use (a
// *Client is meant to be shared across many concurrent filesystem
// callbacks); every call acquires mu for the full request/response
// round-trip, and read/write additionally hold it across their bulk phase
// (spec §4.3/§5).
type Client struct {
	conn net.Conn
	mu   sync.Mutex
	log  *logrus.Entry
}

// New wraps an already-connected socket to the daemon.
func New(conn net.Conn, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{conn: conn, log: log}
}

// Close releases the underlying connection. Not part of spec §4.3's
// operation list verbatim, but needed so a forced unmount can release the
// socket promptly (SPEC_FULL §8).
func (c *Client) Close() error {
	return c.conn.Close()
}

// call performs one request/response round trip under mu. It does not
// perform the bulk phase; Read/Write do that themselves after calling this.
func (c *Client) call(req requestEnvelope) (responseEnvelope, error) {
	payload, err := encodePayload(req)
	if err != nil {
		return responseEnvelope{}, errors.Wrap(ErrInvalidData, err.Error())
	}
	if err := writeFrame(c.conn, payload); err != nil {
		return responseEnvelope{}, errors.Wrap(ErrIO, err.Error())
	}
	respBytes, err := readFrame(c.conn)
	if err != nil {
		return responseEnvelope{}, errors.Wrap(ErrIO, err.Error())
	}
	var resp responseEnvelope
	if err := decodePayload(respBytes, &resp); err != nil {
		return responseEnvelope{}, errors.Wrap(ErrInvalidData, err.Error())
	}
	if resp.Tag == tagErr {
		return resp, errorForKind(resp.ErrorKind)
	}
	return resp, nil
}

// ListFiles lists the directory at path.
func (c *Client) ListFiles(path string) ([]FileInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.call(requestEnvelope{Tag: tagList, Path: path})
	if err != nil {
		return nil, err
	}
	out := make([]FileInfo, len(resp.Infos))
	for i, w := range resp.Infos {
		out[i] = fromWireFileInfo(w)
	}
	return out, nil
}

// StatFile stats a single path.
func (c *Client) StatFile(path string) (FileInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.call(requestEnvelope{Tag: tagStat, Path: path})
	if err != nil {
		return FileInfo{}, err
	}
	return fromWireFileInfo(resp.Info), nil
}

// GetFreeSpace returns the volume's total/free byte counts.
func (c *Client) GetFreeSpace() (FreeSpace, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.call(requestEnvelope{Tag: tagGetFreeSpace})
	if err != nil {
		return FreeSpace{}, err
	}
	return FreeSpace{TotalBytes: resp.TotalBytes, FreeBytes: resp.FreeBytes}, nil
}

// OpenFile opens an existing file for read/write and returns its handle.
func (c *Client) OpenFile(path string) (FileHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.call(requestEnvelope{Tag: tagOpen, Path: path})
	if err != nil {
		return 0, err
	}
	return FileHandle(resp.Handle), nil
}

// CloseFile closes a previously opened handle.
func (c *Client) CloseFile(h FileHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.call(requestEnvelope{Tag: tagClose, Handle: uint32(h)})
	return err
}

// DeleteFile removes a file, or recursively removes a directory, at path.
func (c *Client) DeleteFile(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.call(requestEnvelope{Tag: tagDelete, Path: path})
	return err
}

// SetEndOfFile truncates/extends a handle to len bytes.
func (c *Client) SetEndOfFile(h FileHandle, length uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.call(requestEnvelope{Tag: tagSetEndOfFile, Handle: uint32(h), Offset: length})
	return err
}

// ReadFile performs the two-phase read described in spec §4.3: a framed
// request/response carrying length_readable, then exactly that many raw
// bytes read under the same lock, held across both phases so no other
// caller's bytes can interleave.
func (c *Client) ReadFile(h FileHandle, offset uint64, buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.call(requestEnvelope{
		Tag:    tagRead,
		Handle: uint32(h),
		Offset: offset,
		Length: uint32(len(buf)),
	})
	if err != nil {
		return 0, err
	}
	n := int(resp.LengthReadable)
	if n == 0 {
		return 0, nil
	}
	if n > len(buf) {
		return 0, errors.Wrap(ErrInvalidData, "daemon reported more bytes than requested")
	}
	if _, err := io.ReadFull(c.conn, buf[:n]); err != nil {
		return 0, errors.Wrap(ErrIO, err.Error())
	}
	return n, nil
}

// WriteFile performs the two-phase write described in spec §4.3: a framed
// request/ack, then streaming the raw bytes, all under the same lock so the
// client never sends data before the ack and nothing can interleave.
func (c *Client) WriteFile(h FileHandle, offset uint64, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.call(requestEnvelope{
		Tag:    tagWrite,
		Handle: uint32(h),
		Offset: offset,
		Length: uint32(len(data)),
	}); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if _, err := c.conn.Write(data); err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	return nil
}
