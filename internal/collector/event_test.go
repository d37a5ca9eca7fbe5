package collector

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// encoding/json marshals a plain []byte as a base64 string; RawBytes
// must instead produce a raw JSON array, per spec.md §6.
func TestRawBytesMarshalJSONIsRawArray(t *testing.T) {
	out, err := json.Marshal(RawBytes{1, 2, 255})
	require.NoError(t, err)
	require.JSONEq(t, "[1,2,255]", string(out))
}

func TestRawBytesMarshalJSONNil(t *testing.T) {
	out, err := json.Marshal(RawBytes(nil))
	require.NoError(t, err)
	require.Equal(t, "null", string(out))
}

func TestRawBytesMarshalJSONEmpty(t *testing.T) {
	out, err := json.Marshal(RawBytes{})
	require.NoError(t, err)
	require.JSONEq(t, "[]", string(out))
}

func TestRawBytesEmbeddedInPayloadIsNotBase64(t *testing.T) {
	out, err := json.Marshal(WritePayload{FileDescriptor: 1, Captured: RawBytes("hi")})
	require.NoError(t, err)
	require.Contains(t, string(out), `"Captured":[104,105]`)
	require.NotContains(t, string(out), "aGk=")
}
