package statistics

import (
	"testing"

	"github.com/longkeyy/datax-synctrack/common/protocol"
	"github.com/stretchr/testify/assert"
)

func TestCheckpointIDOf_IgnoresFormatting(t *testing.T) {
	a := protocol.NewStreamStateMessage("users", "public", `{"b":[1, {"d":null,"c":2}],"a":"x"}`).State
	b := protocol.NewStreamStateMessage("users", "public", "{ \"a\": \"x\",\n \"b\": [1, {\"c\": 2, \"d\": null}] }").State
	assert.Equal(t, CheckpointIDOf(a), CheckpointIDOf(b))
}

func TestCheckpointIDOf_DistinguishesPayloadAndType(t *testing.T) {
	stream := protocol.NewStreamStateMessage("users", "public", `{"cursor":1}`).State
	other := protocol.NewStreamStateMessage("users", "public", `{"cursor":2}`).State
	legacy := protocol.NewLegacyStateMessage(`{"cursor":1}`).State

	assert.NotEqual(t, CheckpointIDOf(stream), CheckpointIDOf(other))
	assert.NotEqual(t, CheckpointIDOf(stream), CheckpointIDOf(legacy))
}

func TestCheckpointIDOf_GlobalCoversSharedState(t *testing.T) {
	users := protocol.StreamState{
		StreamDescriptor: protocol.StreamDescriptor{Name: "users"},
		StreamState:      []byte(`{"cursor":1}`),
	}
	first := protocol.NewGlobalStateMessage(`{"lsn":1}`, users).State
	second := protocol.NewGlobalStateMessage(`{"lsn":2}`, users).State
	again := protocol.NewGlobalStateMessage(`{"lsn": 1}`, users).State

	assert.NotEqual(t, CheckpointIDOf(first), CheckpointIDOf(second))
	assert.Equal(t, CheckpointIDOf(first), CheckpointIDOf(again))
}

func TestCheckpointIDOf_InvalidJSONIsHashedRaw(t *testing.T) {
	a := protocol.NewLegacyStateMessage(`not json`).State
	b := protocol.NewLegacyStateMessage(`not json`).State
	assert.Equal(t, CheckpointIDOf(a), CheckpointIDOf(b))
	assert.NotEmpty(t, CheckpointIDOf(a).String())
}

func TestCheckpointIDOf_NullMemberIsSignificant(t *testing.T) {
	withNull := protocol.NewStreamStateMessage("users", "public", `{"cursor":"a","pk":null}`).State
	without := protocol.NewStreamStateMessage("users", "public", `{"cursor":"a"}`).State
	assert.NotEqual(t, CheckpointIDOf(withNull), CheckpointIDOf(without))
}

func TestCheckpointIDOf_GlobalWithInvalidRawState(t *testing.T) {
	users := func(state string) protocol.StreamState {
		return protocol.StreamState{
			StreamDescriptor: protocol.StreamDescriptor{Name: "users"},
			StreamState:      []byte(state),
		}
	}
	first := protocol.NewGlobalStateMessage(`{lsn:1`, users(`{"cursor":1}`)).State
	second := protocol.NewGlobalStateMessage(`{lsn:2`, users(`{"cursor":1}`)).State
	third := protocol.NewGlobalStateMessage(`{"lsn":1}`, users(`not json`)).State
	fourth := protocol.NewGlobalStateMessage(`{"lsn":1}`, users(`not json either`)).State
	again := protocol.NewGlobalStateMessage(`{lsn:1`, users(`{"cursor":1}`)).State

	assert.NotEqual(t, CheckpointIDOf(first), CheckpointIDOf(second))
	assert.NotEqual(t, CheckpointIDOf(third), CheckpointIDOf(fourth))
	assert.Equal(t, CheckpointIDOf(first), CheckpointIDOf(again))
}
