package iso

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_SetGet(t *testing.T) {
	m := New("0200").
		Set(FieldTraceNumber, "000001").
		Set(FieldTerminalID, "29110001")

	assert.Equal(t, "0200", m.MTI())
	assert.True(t, m.HasField(FieldTraceNumber))
	assert.Equal(t, "29110001", m.GetString(FieldTerminalID))
	assert.False(t, m.HasField(FieldPAN))
	assert.Equal(t, "", m.GetString(FieldPAN))
	assert.Equal(t, []int{0, 11, 41}, m.Fields())

	m.Unset(FieldTraceNumber)
	assert.False(t, m.HasField(FieldTraceNumber))
	assert.Equal(t, 2, m.Len())
}

func TestMessage_NegativeFieldIgnored(t *testing.T) {
	m := New("0800").Set(-1, "x")
	assert.Equal(t, 1, m.Len())
}

func TestMessage_NilSafe(t *testing.T) {
	var m *Message
	assert.False(t, m.HasField(11))
	assert.Equal(t, "", m.GetString(11))
	assert.Nil(t, m.Fields())
	assert.Nil(t, m.Clone())
	assert.Equal(t, "<nil>", m.String())
}

func TestMessage_RequestResponse(t *testing.T) {
	req := New("0200")
	assert.True(t, req.IsRequest())
	assert.False(t, req.IsResponse())

	resp := req.Clone()
	require.NoError(t, resp.SetResponseMTI())
	assert.Equal(t, "0210", resp.MTI())
	assert.True(t, resp.IsResponse())
	assert.Equal(t, "0200", req.MTI(), "克隆后原消息不应被修改")

	assert.Error(t, resp.SetResponseMTI())
	assert.Error(t, New("02X0").SetResponseMTI())
	assert.Error(t, New("").SetResponseMTI())
}

func TestMessage_Clone(t *testing.T) {
	m := New("0800").Set(FieldTraceNumber, "1")
	m.SetDirection(DirectionOutgoing)

	c := m.Clone()
	c.Set(FieldTraceNumber, "2")

	assert.Equal(t, "1", m.GetString(FieldTraceNumber))
	assert.Equal(t, DirectionOutgoing, c.Direction())
}

func TestMessage_String(t *testing.T) {
	m := New("0200").Set(41, "29110001").Set(11, "000001")
	assert.Equal(t, "0200[11=000001 41=29110001]", m.String())
	assert.Equal(t, "incoming", DirectionIncoming.String())
	assert.Equal(t, "unknown", DirectionUnknown.String())
}
