package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEnvelope(t *testing.T) {
	frame, err := Encode(MsgStructureRequest, StructureRequest{NodeIDs: []uint32{1, 2}})
	require.NoError(t, err)

	env, err := DecodeEnvelope(frame)
	require.NoError(t, err)
	assert.Equal(t, MsgStructureRequest, env.MessageType)

	var req StructureRequest
	require.NoError(t, DecodeBody(env, &req))
	assert.Equal(t, []uint32{1, 2}, req.NodeIDs)
}

func TestDecodeHello(t *testing.T) {
	frame, err := EncodeBare(Hello{
		CompatVersion:   1,
		SystemName:      "sys",
		ApplicationName: "app",
		VersionMajor:    2,
		VersionMinor:    3,
		VersionPatch:    4,
	})
	require.NoError(t, err)

	h, err := DecodeHello(frame)
	require.NoError(t, err)
	assert.Equal(t, "sys", h.SystemName)
	assert.Equal(t, "2.3.4", h.CDPVersion())
}

func TestDecodeEnvelopeMalformed(t *testing.T) {
	_, err := DecodeEnvelope([]byte("not json"))
	assert.Error(t, err)
}
