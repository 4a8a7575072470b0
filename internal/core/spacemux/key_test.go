package spacemux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-isomux/pkg/iso"
)

func TestMapMTI(t *testing.T) {
	cases := map[string]string{
		"0200":  "020",
		"0210":  "020",
		"0800":  "080",
		"0810":  "080",
		"0430":  "042",
		"200":   "020",
		"0":     "000",
		"02000": "",
	}
	for in, want := range cases {
		assert.Equal(t, want, mapMTI(in, DefaultMTIMapping), in)
	}
}

func TestBuildKey_RequestAndResponseShareKey(t *testing.T) {
	req := iso.New("0200").Set(iso.FieldTerminalID, "29110001").Set(iso.FieldTraceNumber, "123")
	resp := iso.New("0210").Set(iso.FieldTerminalID, "29110001").Set(iso.FieldTraceNumber, "000123")

	k1, err := buildKey("acq.out", req, DefaultKeyFields, DefaultMTIMapping)
	require.NoError(t, err)
	k2, err := buildKey("acq.out", resp, DefaultKeyFields, DefaultMTIMapping)
	require.NoError(t, err)

	assert.Equal(t, "acq.out.0200000000029110001000123", k1)
	assert.Equal(t, k1, k2)
}

func TestBuildKey_MissingFields(t *testing.T) {
	m := iso.New("0800").Set(iso.FieldTraceNumber, "1")
	k, err := buildKey("q", m, DefaultKeyFields, DefaultMTIMapping)
	require.NoError(t, err)
	assert.Equal(t, "q.080000001", k)

	_, err = buildKey("q", iso.New("0800"), DefaultKeyFields, DefaultMTIMapping)
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestBuildKey_Version2TraceWidth(t *testing.T) {
	m := iso.New("2100").Set(iso.FieldTraceNumber, "42")
	k, err := buildKey("q", m, []int{11}, DefaultMTIMapping)
	require.NoError(t, err)
	assert.Equal(t, "q.210000000000042", k)
}

func TestBuildKey_OtherFieldsVerbatim(t *testing.T) {
	m := iso.New("0200").Set(iso.FieldRetrievalRef, "ABC123")
	k, err := buildKey("q", m, []int{37}, DefaultMTIMapping)
	require.NoError(t, err)
	assert.Equal(t, "q.020ABC123", k)
}
