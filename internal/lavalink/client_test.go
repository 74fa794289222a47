package lavalink

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	chorustest "github.com/arloliu/chorus/testing"
	"github.com/arloliu/chorus/types"
)

const testPassword = "youshallnotpass"

type patchCall struct {
	guildID string
	body    updatePlayer
}

// fakeNode is an in-process Lavalink v4 server.
type fakeNode struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conn    *websocket.Conn
	dials   int
	results map[string]any
	patches []patchCall
	deletes []string
	failing bool
}

func newFakeNode(t *testing.T) *fakeNode {
	t.Helper()

	n := &fakeNode{t: t, results: make(map[string]any)}
	mux := http.NewServeMux()
	mux.HandleFunc("/v4/websocket", n.serveWS)
	mux.HandleFunc("/v4/loadtracks", n.serveLoad)
	mux.HandleFunc("/v4/sessions/", n.servePlayers)
	n.srv = httptest.NewServer(mux)
	t.Cleanup(n.srv.Close)

	return n
}

func (n *fakeNode) config() NodeConfig {
	u, err := url.Parse(n.srv.URL)
	require.NoError(n.t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(n.t, err)

	return NodeConfig{ID: "main", Host: u.Hostname(), Port: port, Password: testPassword}
}

func (n *fakeNode) serveWS(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != testPassword || r.Header.Get("User-Id") == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	n.mu.Lock()
	n.conn = conn
	n.dials++
	sessionID := "session-" + strconv.Itoa(n.dials)
	n.mu.Unlock()

	n.send(map[string]any{"op": "ready", "resumed": false, "sessionId": sessionID})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (n *fakeNode) serveLoad(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	res, ok := n.results[r.URL.Query().Get("identifier")]
	n.mu.Unlock()
	if !ok {
		res = map[string]any{"loadType": "empty", "data": map[string]any{}}
	}
	_ = json.NewEncoder(w).Encode(res)
}

func (n *fakeNode) servePlayers(w http.ResponseWriter, r *http.Request) {
	guildID := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.failing {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(restError{Status: 400, Error: "Bad Request", Message: "bad volume"})

		return
	}

	switch r.Method {
	case http.MethodPatch:
		var body updatePlayer
		_ = json.NewDecoder(r.Body).Decode(&body)
		n.patches = append(n.patches, patchCall{guildID: guildID, body: body})
		_, _ = w.Write([]byte("{}"))
	case http.MethodDelete:
		n.deletes = append(n.deletes, guildID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (n *fakeNode) send(v any) {
	n.mu.Lock()
	defer n.mu.Unlock()

	require.NotNil(n.t, n.conn)
	require.NoError(n.t, n.conn.WriteJSON(v))
}

func (n *fakeNode) drop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	_ = n.conn.Close()
}

func (n *fakeNode) addResult(identifier, loadType string, data any) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.results[identifier] = map[string]any{"loadType": loadType, "data": data}
}

func (n *fakeNode) patchCalls() []patchCall {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]patchCall, len(n.patches))
	copy(out, n.patches)

	return out
}

func (n *fakeNode) lastPatch() patchCall {
	calls := n.patchCalls()
	require.NotEmpty(n.t, calls)

	return calls[len(calls)-1]
}

func wire(encoded, title string) wireTrack {
	return wireTrack{Encoded: encoded, Info: wireTrackInfo{Title: title, Author: "Band", Length: 180_000, URI: "https://example.test/" + encoded}}
}

func startClient(t *testing.T, n *fakeNode, gw *chorustest.FakeGateway) *Client {
	t.Helper()

	c, err := New(Config{
		Nodes:         []NodeConfig{n.config()},
		UserID:        "client-1",
		RetryDelay:    10 * time.Millisecond,
		MaxRetryDelay: 50 * time.Millisecond,
	}, gw)
	require.NoError(t, err)
	require.NoError(t, c.Start(t.Context()))
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.WaitConnected(t.Context()))

	return c
}

// nextEvent reads events until one of type typ arrives.
func nextEvent(t *testing.T, c *Client, typ types.EventType) types.BackendEvent {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	gw := chorustest.NewFakeGateway()

	_, err := New(Config{UserID: "u"}, gw)
	require.ErrorIs(t, err, ErrNoNodes)

	_, err = New(Config{Nodes: []NodeConfig{{Host: "localhost"}}}, gw)
	require.ErrorIs(t, err, ErrNoUserID)

	_, err = New(Config{Nodes: []NodeConfig{{Host: "localhost"}}, UserID: "u"}, nil)
	require.ErrorIs(t, err, ErrNoVoice)
}

func TestClient_Search(t *testing.T) {
	n := newFakeNode(t)
	c := startClient(t, n, chorustest.NewFakeGateway())

	n.addResult("ytsearch:lofi", "search", []wireTrack{wire("a", "Lofi A"), wire("b", "Lofi B")})
	n.addResult("https://example.test/a", "track", wire("a", "Lofi A"))
	n.addResult("https://example.test/list", "playlist", map[string]any{
		"info":   map[string]any{"name": "Mix", "selectedTrack": -1},
		"tracks": []wireTrack{wire("a", "Lofi A"), wire("b", "Lofi B")},
	})
	n.addResult("ytsearch:broken", "error", loadError{Message: "blocked", Severity: "common"})

	t.Run("free text uses the search prefix", func(t *testing.T) {
		res, err := c.Search(t.Context(), "lofi", "user-1")
		require.NoError(t, err)
		require.Equal(t, types.LoadSearch, res.LoadType)
		require.Len(t, res.Tracks, 2)
		require.Equal(t, "Lofi A", res.Tracks[0].Info.Title)
		require.Equal(t, int64(180_000), res.Tracks[0].Info.DurationMs)
		require.Equal(t, "user-1", res.Tracks[0].Info.Requester)
	})

	t.Run("url is loaded as-is", func(t *testing.T) {
		res, err := c.Search(t.Context(), "https://example.test/a", "")
		require.NoError(t, err)
		require.Equal(t, types.LoadTrack, res.LoadType)
		require.Equal(t, "a", res.Tracks[0].Encoded)
	})

	t.Run("playlist", func(t *testing.T) {
		res, err := c.Search(t.Context(), "https://example.test/list", "")
		require.NoError(t, err)
		require.Equal(t, "Mix", res.PlaylistName)
		require.Len(t, res.Tracks, 2)
	})

	t.Run("empty", func(t *testing.T) {
		res, err := c.Search(t.Context(), "nothing", "")
		require.NoError(t, err)
		require.Equal(t, types.LoadEmpty, res.LoadType)
		require.Empty(t, res.Tracks)
	})

	t.Run("load error", func(t *testing.T) {
		_, err := c.Search(t.Context(), "broken", "")
		require.ErrorContains(t, err, "blocked")
	})
}

func TestClient_SessionPlayback(t *testing.T) {
	ctx := t.Context()
	n := newFakeNode(t)
	gw := chorustest.NewFakeGateway()
	c := startClient(t, n, gw)

	s, err := c.CreateSession(ctx, types.SessionOptions{GuildID: "42", VoiceChannelID: "v1", TextChannelID: "t1", Volume: 60, SelfDeaf: true})
	require.NoError(t, err)
	require.Equal(t, "main", s.State().NodeID)

	require.NoError(t, s.Connect(ctx))
	require.Equal(t, "v1", gw.VoiceChannel("42"))
	connect := n.lastPatch()
	require.Equal(t, "42", connect.guildID)
	require.NotNil(t, connect.body.Voice)
	require.Equal(t, "voice-42", connect.body.Voice.SessionID)
	require.Equal(t, 60, *connect.body.Volume)

	a, b := wire("a", "A").toTrack("u"), wire("b", "B").toTrack("u")
	s.Enqueue(a, b)
	require.NoError(t, s.Play(ctx))
	require.Equal(t, "a", *n.lastPatch().body.Track.Encoded)
	require.Equal(t, "A", s.State().Current.Info.Title)
	require.Len(t, s.State().Queue, 1)

	n.send(map[string]any{"op": "event", "type": eventTrackStart, "guildId": "42", "track": wire("a", "A")})
	ev := nextEvent(t, c, types.EventTrackStart)
	require.Equal(t, "42", ev.GuildID)
	require.Equal(t, "A", ev.Track.Info.Title)

	n.send(map[string]any{"op": "playerUpdate", "guildId": "42", "state": map[string]any{"position": 12_000, "connected": true}})
	require.Eventually(t, func() bool { return s.State().PositionMs == 12_000 }, time.Second, 10*time.Millisecond)

	n.send(map[string]any{"op": "event", "type": eventTrackEnd, "guildId": "42", "reason": endFinished})
	ended := nextEvent(t, c, types.EventTrackEnd)
	require.Equal(t, "A", ended.Track.Info.Title)
	require.Eventually(t, func() bool {
		cur := s.State().Current
		return cur != nil && cur.Info.Title == "B"
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, "b", *n.lastPatch().body.Track.Encoded)

	n.send(map[string]any{"op": "event", "type": eventTrackEnd, "guildId": "42", "reason": endFinished})
	queueEnd := nextEvent(t, c, types.EventQueueEnd)
	require.Equal(t, "B", queueEnd.Track.Info.Title)
	require.Nil(t, s.State().Current)

	require.NoError(t, s.Destroy(ctx))
	require.NoError(t, s.Destroy(ctx))
	require.Empty(t, gw.VoiceChannel("42"))
	n.mu.Lock()
	require.Equal(t, []string{"42"}, n.deletes)
	n.mu.Unlock()
}

func TestClient_LoopAndSkip(t *testing.T) {
	ctx := t.Context()
	n := newFakeNode(t)
	c := startClient(t, n, chorustest.NewFakeGateway())

	s, err := c.CreateSession(ctx, types.SessionOptions{GuildID: "7", VoiceChannelID: "v"})
	require.NoError(t, err)
	s.Enqueue(wire("a", "A").toTrack(""), wire("b", "B").toTrack(""))
	require.NoError(t, s.Play(ctx))

	t.Run("track loop replays on finish", func(t *testing.T) {
		s.SetLoopMode(types.LoopTrack)
		n.send(map[string]any{"op": "event", "type": eventTrackEnd, "guildId": "7", "reason": endFinished})
		nextEvent(t, c, types.EventTrackEnd)

		require.Eventually(t, func() bool { return len(n.patchCalls()) == 2 }, time.Second, 10*time.Millisecond)
		require.Equal(t, "a", *n.lastPatch().body.Track.Encoded)
	})

	t.Run("replaced does not advance", func(t *testing.T) {
		before := len(n.patchCalls())
		n.send(map[string]any{"op": "event", "type": eventTrackEnd, "guildId": "7", "reason": endReplaced})
		nextEvent(t, c, types.EventTrackEnd)
		require.Len(t, n.patchCalls(), before)
		require.Equal(t, "A", s.State().Current.Info.Title)
	})

	t.Run("skip ignores track loop", func(t *testing.T) {
		require.NoError(t, s.Skip(ctx))
		require.Equal(t, "B", s.State().Current.Info.Title)
	})

	t.Run("skip on empty queue stops and reports queue end", func(t *testing.T) {
		s.SetLoopMode(types.LoopOff)
		require.NoError(t, s.Skip(ctx))
		require.Nil(t, s.State().Current)
		require.NotNil(t, n.lastPatch().body.Track)
		require.Nil(t, n.lastPatch().body.Track.Encoded)
		require.Equal(t, "B", nextEvent(t, c, types.EventQueueEnd).Track.Info.Title)
	})
}

func TestClient_RESTError(t *testing.T) {
	ctx := t.Context()
	n := newFakeNode(t)
	c := startClient(t, n, chorustest.NewFakeGateway())

	s, err := c.CreateSession(ctx, types.SessionOptions{GuildID: "9"})
	require.NoError(t, err)

	n.mu.Lock()
	n.failing = true
	n.mu.Unlock()

	err = s.SetVolume(ctx, 100)
	require.ErrorIs(t, err, ErrRequestFailed)
	require.ErrorContains(t, err, "bad volume")
	require.Equal(t, types.DefaultVolume, s.State().Volume)
}

func TestClient_Reconnect(t *testing.T) {
	n := newFakeNode(t)
	c := startClient(t, n, chorustest.NewFakeGateway())
	require.True(t, c.Connected())

	n.drop()
	nextEvent(t, c, types.EventNodeClosed)
	ready := nextEvent(t, c, types.EventNodeReady)
	require.Equal(t, "main", ready.NodeID)
	require.True(t, c.Connected())

	n.mu.Lock()
	require.Equal(t, 2, n.dials)
	n.mu.Unlock()
}

func TestClient_NotConnected(t *testing.T) {
	c, err := New(Config{Nodes: []NodeConfig{{Host: "127.0.0.1", Port: 1}}, UserID: "u"}, chorustest.NewFakeGateway())
	require.NoError(t, err)

	require.False(t, c.Connected())
	_, err = c.Search(t.Context(), "x", "")
	require.ErrorIs(t, err, types.ErrBackendNotConnected)
	_, err = c.CreateSession(t.Context(), types.SessionOptions{GuildID: "1"})
	require.ErrorIs(t, err, types.ErrBackendNotConnected)
}
