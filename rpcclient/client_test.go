package rpcclient

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDaemon serves one connection with an in-memory file "0123456789",
// enough to exercise the read-bounds and write-then-read properties from
// spec §8 without a real device.
func fakeDaemon(t *testing.T, conn net.Conn) {
	t.Helper()
	file := []byte("0123456789")
	for {
		payload, err := readFrame(conn)
		if err != nil {
			return
		}
		var req requestEnvelope
		require.NoError(t, decodePayload(payload, &req))

		switch req.Tag {
		case tagOpen:
			resp := responseEnvelope{Tag: tagOk, Handle: 1}
			b, _ := encodePayload(resp)
			_ = writeFrame(conn, b)
		case tagRead:
			offset := req.Offset
			n := uint64(req.Length)
			var readable uint64
			if offset < uint64(len(file)) {
				readable = uint64(len(file)) - offset
				if readable > n {
					readable = n
				}
			}
			resp := responseEnvelope{Tag: tagOk, LengthReadable: uint32(readable)}
			b, _ := encodePayload(resp)
			_ = writeFrame(conn, b)
			if readable > 0 {
				_, _ = conn.Write(file[offset : offset+readable])
			}
		case tagWrite:
			resp := responseEnvelope{Tag: tagOk}
			b, _ := encodePayload(resp)
			_ = writeFrame(conn, b)
			data := make([]byte, req.Length)
			_, _ = readFullHelper(conn, data)
			offset := int(req.Offset)
			for len(file) < offset+len(data) {
				file = append(file, 0)
			}
			copy(file[offset:], data)
		case tagSetEndOfFile:
			if int(req.Offset) < len(file) {
				file = file[:req.Offset]
			} else {
				for len(file) < int(req.Offset) {
					file = append(file, 0)
				}
			}
			resp := responseEnvelope{Tag: tagOk}
			b, _ := encodePayload(resp)
			_ = writeFrame(conn, b)
		case tagStat:
			if req.Path == "/missing" {
				resp := responseEnvelope{Tag: tagErr, ErrorKind: KindFileNotFound}
				b, _ := encodePayload(resp)
				_ = writeFrame(conn, b)
				continue
			}
			resp := responseEnvelope{Tag: tagOk, Info: wireFileInfo{Name: "f", Size: uint64(len(file))}}
			b, _ := encodePayload(resp)
			_ = writeFrame(conn, b)
		default:
			resp := responseEnvelope{Tag: tagOk}
			b, _ := encodePayload(resp)
			_ = writeFrame(conn, b)
		}
	}
}

func readFullHelper(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	go fakeDaemon(t, serverConn)
	t.Cleanup(func() { _ = clientConn.Close(); _ = serverConn.Close() })
	return New(clientConn, nil)
}

func TestReadBounds(t *testing.T) {
	c := newTestClient(t)
	h, err := c.OpenFile("/sdcard/file.txt")
	require.NoError(t, err)

	buf := make([]byte, 20)
	n, err := c.ReadFile(h, 3, buf)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, "3456789", string(buf[:n]))

	n, err = c.ReadFile(h, 100, buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWriteThenRead(t *testing.T) {
	c := newTestClient(t)
	h, err := c.OpenFile("/sdcard/file.txt")
	require.NoError(t, err)

	data := []byte("HELLOWORLD")
	require.NoError(t, c.WriteFile(h, 0, data))
	require.NoError(t, c.SetEndOfFile(h, uint64(len(data))))

	buf := make([]byte, len(data))
	n, err := c.ReadFile(h, 0, buf)
	require.NoError(t, err)
	assert.Equal(t, data, buf[:n])
}

func TestStatErrorMapping(t *testing.T) {
	c := newTestClient(t)
	_, err := c.StatFile("/missing")
	assert.ErrorIs(t, err, ErrFileNotFound)
}
