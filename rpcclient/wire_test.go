package rpcclient

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	req := requestEnvelope{Tag: tagStat, Path: "/sdcard/DCIM"}
	payload, err := encodePayload(req)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, payload))

	got, err := readFrame(&buf)
	require.NoError(t, err)

	var decoded requestEnvelope
	require.NoError(t, decodePayload(got, &decoded))
	assert.Equal(t, req, decoded)
}

func TestFrameBoundaryNoResidue(t *testing.T) {
	p1, err := encodePayload(requestEnvelope{Tag: tagStat, Path: "/a"})
	require.NoError(t, err)
	p2, err := encodePayload(requestEnvelope{Tag: tagStat, Path: "/b"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, p1))
	require.NoError(t, writeFrame(&buf, p2))

	got1, err := readFrame(&buf)
	require.NoError(t, err)
	var d1 requestEnvelope
	require.NoError(t, decodePayload(got1, &d1))
	assert.Equal(t, "/a", d1.Path)

	got2, err := readFrame(&buf)
	require.NoError(t, err)
	var d2 requestEnvelope
	require.NoError(t, decodePayload(got2, &d2))
	assert.Equal(t, "/b", d2.Path)

	assert.Equal(t, 0, buf.Len())
}

func TestResponseRoundTrip(t *testing.T) {
	resp := responseEnvelope{
		Tag:  tagOk,
		Info: wireFileInfo{Name: "foo.txt", Size: 10, Mode: 0100644},
	}
	payload, err := encodePayload(resp)
	require.NoError(t, err)

	var decoded responseEnvelope
	require.NoError(t, decodePayload(payload, &decoded))
	assert.Equal(t, resp, decoded)
}
