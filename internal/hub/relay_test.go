package hub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkoval/parley/internal/core"
	"github.com/mkoval/parley/internal/domain"
)

func TestInviteForwardsCallerAndOffer(t *testing.T) {
	reg := NewRegistry()
	callee := newFakeSession("u2")
	reg.Register("u2", callee)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	NewCallRelay(reg).Invite("u1", "Alice", "u2", offer)

	frames := callee.sent()
	require.Len(t, frames, 1)

	var evt core.CallIncomingEvent
	require.NoError(t, json.Unmarshal(frames[0], &evt))
	assert.Equal(t, core.EvtCallIncoming, evt.Type)
	assert.Equal(t, domain.UserID("u1"), evt.From.ID)
	assert.Equal(t, "Alice", evt.From.Name)
	assert.JSONEq(t, string(offer), string(evt.Signal))
}

func TestInviteToUnregisteredTargetDropsSilently(t *testing.T) {
	reg := NewRegistry()

	NewCallRelay(reg).Invite("u1", "Alice", "nobody", json.RawMessage(`{}`))
	// No session, no delivery, no panic; the caller just hears silence.
}

func TestAcceptForwardsAnswer(t *testing.T) {
	reg := NewRegistry()
	caller := newFakeSession("u1")
	reg.Register("u1", caller)

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	NewCallRelay(reg).Accept("u2", "u1", answer)

	frames := caller.sent()
	require.Len(t, frames, 1)

	var evt core.CallAcceptedEvent
	require.NoError(t, json.Unmarshal(frames[0], &evt))
	assert.Equal(t, core.EvtCallAccepted, evt.Type)
	assert.JSONEq(t, string(answer), string(evt.Signal))
}

func TestTerminateCarriesNoTarget(t *testing.T) {
	reg := NewRegistry()
	peer := newFakeSession("u1")
	reg.Register("u1", peer)

	NewCallRelay(reg).Terminate("u2", "u1")

	frames := peer.sent()
	require.Len(t, frames, 1)

	var evt core.CallEndedEvent
	require.NoError(t, json.Unmarshal(frames[0], &evt))
	assert.Equal(t, core.EvtCallEnded, evt.Type)
	assert.Empty(t, evt.To)
}

func TestRelayDoesNotMutatePayload(t *testing.T) {
	reg := NewRegistry()
	callee := newFakeSession("u2")
	reg.Register("u2", callee)

	// Whatever the endpoints negotiate rides through unchanged, even blobs
	// the server has never seen.
	blob := json.RawMessage(`{"type":"candidate","candidate":{"candidate":"foo","sdpMid":"0"}}`)
	NewCallRelay(reg).Invite("u1", "Alice", "u2", blob)

	var evt core.CallIncomingEvent
	require.NoError(t, json.Unmarshal(callee.sent()[0], &evt))
	assert.JSONEq(t, string(blob), string(evt.Signal))
}
