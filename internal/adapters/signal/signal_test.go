package signal

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/televisit/signaling/internal/app"
	"github.com/televisit/signaling/internal/config"
)

func testController(grace time.Duration) *SignalWSController {
	cfg := &config.Config{
		PingPeriod:   time.Minute,
		EndCallGrace: grace,
	}
	return NewSignalWSController(cfg, app.NewPresence(), app.NewCallStore())
}

func testConn() *wsPeerConn {
	return &wsPeerConn{send: make(chan []byte, 32)}
}

func recvJSON(t *testing.T, c *wsPeerConn) map[string]any {
	t.Helper()
	select {
	case b := <-c.send:
		var m map[string]any
		require.NoError(t, json.Unmarshal(b, &m))
		return m
	default:
		t.Fatal("expected a queued frame")
		return nil
	}
}

func requireNoFrame(t *testing.T, c *wsPeerConn) {
	t.Helper()
	select {
	case b := <-c.send:
		t.Fatalf("unexpected frame: %s", b)
	default:
	}
}

func login(t *testing.T, ctl *SignalWSController, c *wsPeerConn, id string) {
	t.Helper()
	ctl.handleMessage(c, []byte(fmt.Sprintf(`{"type":"LOGIN","userId":%q}`, id)))
	ack := recvJSON(t, c)
	require.Equal(t, "LOGIN_OK", ack["type"])
	require.Equal(t, id, ack["userId"])
}

func TestLogin_BindsIdentity(t *testing.T) {
	ctl := testController(time.Second)
	c := testConn()

	login(t, ctl, c, "doc1")

	got, ok := ctl.Presence.Lookup("doc1")
	require.True(t, ok)
	require.Same(t, app.Conn(c), got)
}

func TestLogin_EmptyIdentityRejected(t *testing.T) {
	ctl := testController(time.Second)
	c := testConn()

	ctl.handleMessage(c, []byte(`{"type":"LOGIN","userId":""}`))
	resp := recvJSON(t, c)
	require.Equal(t, "error", resp["type"])
	require.Equal(t, 0, ctl.Presence.Count())
}

func TestMalformedFrame_IsDropped(t *testing.T) {
	ctl := testController(time.Second)
	c := testConn()

	ctl.handleMessage(c, []byte(`{"type": "OFFER",`))
	requireNoFrame(t, c)
	require.Equal(t, 0, ctl.Calls.Count())
}

func TestUnknownType_RelayedWhenAddressed(t *testing.T) {
	ctl := testController(time.Second)
	a, b := testConn(), testConn()
	login(t, ctl, a, "doc1")
	login(t, ctl, b, "pat1")

	ctl.handleMessage(a, []byte(`{"type":"CHAT","to":"pat1","text":"hi","extra":{"n":1}}`))

	got := recvJSON(t, b)
	require.Equal(t, "CHAT", got["type"])
	require.Equal(t, "hi", got["text"])
	require.Equal(t, map[string]any{"n": float64(1)}, got["extra"])
}

func TestUnknownType_AbsentTargetDroppedSilently(t *testing.T) {
	ctl := testController(time.Second)
	a := testConn()
	login(t, ctl, a, "doc1")

	ctl.handleMessage(a, []byte(`{"type":"CHAT","to":"nobody","text":"hi"}`))
	requireNoFrame(t, a)
}

func TestOffer_CreatesCallAndRelaysWithGeneratedID(t *testing.T) {
	ctl := testController(time.Second)
	a, b := testConn(), testConn()
	login(t, ctl, a, "doc1")
	login(t, ctl, b, "pat1")

	ctl.handleMessage(a, []byte(`{"type":"OFFER","from":"doc1","to":"pat1","offer":"O","kind":"video","trace":"t-9"}`))

	got := recvJSON(t, b)
	require.Equal(t, "OFFER", got["type"])
	require.Equal(t, "O", got["offer"])
	require.Equal(t, "t-9", got["trace"], "unknown fields must survive the relay")
	callID, ok := got["callId"].(string)
	require.True(t, ok)
	require.NotEmpty(t, callID)

	require.Equal(t, 1, ctl.Calls.Count())
}

func TestOffer_AbsentCalleeStillCreatesCall(t *testing.T) {
	ctl := testController(time.Second)
	a := testConn()
	login(t, ctl, a, "doc1")

	ctl.handleMessage(a, []byte(`{"type":"OFFER","from":"doc1","to":"pat1","callId":"c1","offer":"O"}`))
	requireNoFrame(t, a)
	require.Equal(t, 1, ctl.Calls.Count())
}

func TestAnswer_UnknownCallStillRelays(t *testing.T) {
	ctl := testController(time.Second)
	a, b := testConn(), testConn()
	login(t, ctl, a, "doc1")
	login(t, ctl, b, "pat1")

	ctl.handleMessage(b, []byte(`{"type":"ANSWER","callId":"ghost","to":"doc1","answer":"A"}`))

	got := recvJSON(t, a)
	require.Equal(t, "ANSWER", got["type"])
	require.Equal(t, 0, ctl.Calls.Count())
}

func TestIce_StoredInOrderAndReplayedToOtherSide(t *testing.T) {
	ctl := testController(time.Second)
	a, b := testConn(), testConn()
	login(t, ctl, a, "doc1")
	login(t, ctl, b, "pat1")

	ctl.handleMessage(a, []byte(`{"type":"OFFER","from":"doc1","to":"pat1","callId":"c1","offer":"O"}`))
	recvJSON(t, b)

	for _, cand := range []string{"a", "b", "c", "b"} {
		ctl.handleMessage(a, []byte(fmt.Sprintf(`{"type":"ICE","callId":"c1","from":"doc1","to":"pat1","candidate":%q}`, cand)))
		got := recvJSON(t, b)
		require.Equal(t, "ICE", got["type"])
	}
	// One candidate from the callee side, must not leak into the
	// caller's buffer.
	ctl.handleMessage(b, []byte(`{"type":"ICE","callId":"c1","from":"pat1","to":"doc1","candidate":"z"}`))
	recvJSON(t, a)

	ctl.handleMessage(b, []byte(`{"type":"RECONNECT","userId":"pat1","callId":"c1"}`))
	snap := recvJSON(t, b)
	require.Equal(t, "RECONNECT_OK", snap["type"])
	require.Equal(t, []any{"a", "b", "c", "b"}, snap["candidates"], "caller candidates, original order, duplicates kept")
}

func TestIce_MissingCandidateSkipsStorageButRelays(t *testing.T) {
	ctl := testController(time.Second)
	a, b := testConn(), testConn()
	login(t, ctl, a, "doc1")
	login(t, ctl, b, "pat1")

	ctl.handleMessage(a, []byte(`{"type":"OFFER","from":"doc1","to":"pat1","callId":"c1","offer":"O"}`))
	recvJSON(t, b)

	ctl.handleMessage(a, []byte(`{"type":"ICE","callId":"c1","from":"doc1","to":"pat1"}`))
	got := recvJSON(t, b)
	require.Equal(t, "ICE", got["type"])

	call, ok := ctl.Calls.Get("c1")
	require.True(t, ok)
	require.Empty(t, call.CallerCandidates)
}

func TestReconnect_UnknownCallFails(t *testing.T) {
	ctl := testController(time.Second)
	c := testConn()
	login(t, ctl, c, "pat1")

	ctl.handleMessage(c, []byte(`{"type":"RECONNECT","userId":"pat1","callId":"ghost"}`))
	resp := recvJSON(t, c)
	require.Equal(t, "RECONNECT_FAILED", resp["type"])
	require.Equal(t, "not_found", resp["error"])
	require.Equal(t, "ghost", resp["callId"])
}

func TestDecline_RemovesCallImmediately(t *testing.T) {
	ctl := testController(time.Second)
	a, b := testConn(), testConn()
	login(t, ctl, a, "doc1")
	login(t, ctl, b, "pat1")

	ctl.handleMessage(a, []byte(`{"type":"OFFER","from":"doc1","to":"pat1","callId":"c1","offer":"O"}`))
	recvJSON(t, b)

	ctl.handleMessage(b, []byte(`{"type":"DECLINE_CALL","callId":"c1","to":"doc1"}`))
	got := recvJSON(t, a)
	require.Equal(t, "DECLINE_CALL", got["type"])

	ctl.handleMessage(b, []byte(`{"type":"RECONNECT","userId":"pat1","callId":"c1"}`))
	resp := recvJSON(t, b)
	require.Equal(t, "RECONNECT_FAILED", resp["type"])
}

func TestEndCall_GraceWindowThenRemoval(t *testing.T) {
	ctl := testController(40 * time.Millisecond)
	a, b := testConn(), testConn()
	login(t, ctl, a, "doc1")
	login(t, ctl, b, "pat1")

	ctl.handleMessage(a, []byte(`{"type":"OFFER","from":"doc1","to":"pat1","callId":"c1","offer":"O"}`))
	recvJSON(t, b)

	ctl.handleMessage(a, []byte(`{"type":"END_CALL","callId":"c1","from":"doc1"}`))
	got := recvJSON(t, b)
	require.Equal(t, "END_CALL", got["type"])

	// Inside the grace window the record is still there, marked ended.
	ctl.handleMessage(b, []byte(`{"type":"RECONNECT","userId":"pat1","callId":"c1"}`))
	snap := recvJSON(t, b)
	require.Equal(t, "RECONNECT_OK", snap["type"])
	require.Equal(t, "ended", snap["status"])

	require.Eventually(t, func() bool {
		_, ok := ctl.Calls.Get("c1")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

// Full offer/answer/reconnect exchange, including the callee dropping its
// connection and logging back in before asking for the snapshot.
func TestSignaling_EndToEnd(t *testing.T) {
	ctl := testController(time.Second)
	a, b := testConn(), testConn()
	login(t, ctl, a, "doc1")
	login(t, ctl, b, "pat1")

	ctl.handleMessage(a, []byte(`{"type":"OFFER","from":"doc1","to":"pat1","offer":"O"}`))
	offer := recvJSON(t, b)
	require.Equal(t, "OFFER", offer["type"])
	require.Equal(t, "O", offer["offer"])
	callID := offer["callId"].(string)
	require.NotEmpty(t, callID)

	ctl.handleMessage(b, []byte(fmt.Sprintf(`{"type":"ANSWER","callId":%q,"to":"doc1","answer":"A"}`, callID)))
	answer := recvJSON(t, a)
	require.Equal(t, "ANSWER", answer["type"])
	require.Equal(t, "A", answer["answer"])

	// Callee drops and comes back on a fresh connection.
	ctl.Presence.Unbind("pat1", b)
	b2 := testConn()
	login(t, ctl, b2, "pat1")

	ctl.handleMessage(b2, []byte(fmt.Sprintf(`{"type":"RECONNECT","userId":"pat1","callId":%q}`, callID)))
	snap := recvJSON(t, b2)
	require.Equal(t, "RECONNECT_OK", snap["type"])
	require.Equal(t, "O", snap["offer"])
	require.Equal(t, "A", snap["answer"])
	require.Equal(t, "connected", snap["status"])
}

func TestLogin_RateLimited(t *testing.T) {
	ctl := testController(time.Second)
	ctl.logins = NewLoginRateLimiter(2, time.Minute)
	c := testConn()

	login(t, ctl, c, "doc1")
	login(t, ctl, c, "doc1")

	ctl.handleMessage(c, []byte(`{"type":"LOGIN","userId":"doc1"}`))
	resp := recvJSON(t, c)
	require.Equal(t, "error", resp["type"])
	require.Equal(t, "too_many_logins", resp["error"])
}
