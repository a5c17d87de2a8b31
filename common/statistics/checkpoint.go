package statistics

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/longkeyy/datax-synctrack/common/protocol"
)

// CheckpointID identifies a checkpoint by its semantic payload. It is only used
// to pair source checkpoints with destination acknowledgements.
type CheckpointID uint64

func (id CheckpointID) String() string {
	return strconv.FormatUint(uint64(id), 16)
}

// CheckpointIDOf hashes the payload selected by the state's type: the whole
// global payload for GLOBAL, the stream state for STREAM and the legacy data
// for LEGACY. The state type is part of the hash.
func CheckpointIDOf(state *protocol.State) CheckpointID {
	stateType := state.EffectiveType()
	var payload []byte
	switch stateType {
	case protocol.StateTypeGlobal:
		if state.Global != nil {
			payload = globalPayload(state.Global)
		}
	case protocol.StateTypeStream:
		if state.Stream != nil {
			payload = state.Stream.StreamState
		}
	default:
		payload = state.Data
	}

	h := xxhash.New()
	_, _ = h.WriteString(string(stateType))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(canonicalJSON(payload))
	return CheckpointID(h.Sum64())
}

// globalPayload encodes the whole global state. A state whose raw members are
// not valid JSON cannot be encoded; its raw bytes are hashed instead.
func globalPayload(global *protocol.GlobalState) []byte {
	if payload, err := json.Marshal(global); err == nil {
		return payload
	}
	var buf bytes.Buffer
	buf.Write(global.SharedState)
	for _, s := range global.StreamStates {
		buf.WriteByte(0)
		buf.WriteString(s.StreamDescriptor.Namespace)
		buf.WriteByte(0)
		buf.WriteString(s.StreamDescriptor.Name)
		buf.WriteByte(0)
		buf.Write(s.StreamState)
	}
	return buf.Bytes()
}

// canonicalJSON re-encodes payload with sorted object keys and no
// insignificant whitespace, so that a destination echoing the state with
// different formatting still yields the same id. null members are kept.
// Invalid JSON is hashed as-is.
func canonicalJSON(payload []byte) []byte {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return trimmed
	}
	// 只接受单个 JSON 值，尾部有多余内容时按原样哈希
	if _, err := dec.Token(); err != io.EOF {
		return trimmed
	}
	out, err := json.Marshal(v)
	if err != nil {
		return trimmed
	}
	return out
}
