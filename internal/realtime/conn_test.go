package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

func newTestServer(t *testing.T) (*Registry, *httptest.Server) {
	t.Helper()
	registry := NewRegistry()
	mux := http.NewServeMux()
	mux.Handle("/ws/projects/", Handler(registry, "/ws/projects/"))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return registry, server
}

func dialProject(t *testing.T, server *httptest.Server, projectID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/projects/" + projectID
	conn, err := websocket.Dial(wsURL, "", server.URL)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnectJoinsProjectGroup(t *testing.T) {
	registry, server := newTestServer(t)
	projectID := uuid.NewString()

	conn := dialProject(t, server, projectID)
	defer conn.Close()

	group := GroupForProject(projectID)
	waitFor(t, "connection to join group", func() bool {
		return len(registry.Members(group)) == 1
	})
}

func TestSubscribeAcknowledged(t *testing.T) {
	registry, server := newTestServer(t)
	projectID := uuid.NewString()

	conn := dialProject(t, server, projectID)
	defer conn.Close()

	waitFor(t, "join", func() bool {
		return len(registry.Members(GroupForProject(projectID))) == 1
	})

	if err := websocket.JSON.Send(conn, map[string]string{"type": "subscribe"}); err != nil {
		t.Fatalf("send subscribe: %v", err)
	}

	var reply struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := websocket.JSON.Receive(conn, &reply); err != nil {
		t.Fatalf("receive ack: %v", err)
	}
	if reply.Type != "subscription_success" {
		t.Fatalf("unexpected ack type %q", reply.Type)
	}
	if reply.Message != "Subscribed to project updates" {
		t.Fatalf("unexpected ack message %q", reply.Message)
	}
}

func TestRepeatedSubscribeReAcksWithoutDuplicateMembership(t *testing.T) {
	registry, server := newTestServer(t)
	projectID := uuid.NewString()

	conn := dialProject(t, server, projectID)
	defer conn.Close()

	group := GroupForProject(projectID)
	waitFor(t, "join", func() bool { return len(registry.Members(group)) == 1 })

	for i := 0; i < 3; i++ {
		if err := websocket.JSON.Send(conn, map[string]string{"type": "subscribe"}); err != nil {
			t.Fatalf("send subscribe %d: %v", i, err)
		}
		var reply struct {
			Type string `json:"type"`
		}
		if err := websocket.JSON.Receive(conn, &reply); err != nil {
			t.Fatalf("receive ack %d: %v", i, err)
		}
		if reply.Type != "subscription_success" {
			t.Fatalf("ack %d type %q", i, reply.Type)
		}
	}

	if got := len(registry.Members(group)); got != 1 {
		t.Fatalf("membership grew to %d after repeated subscribes", got)
	}
}

func TestUnrecognizedMessageIgnored(t *testing.T) {
	registry, server := newTestServer(t)
	projectID := uuid.NewString()

	conn := dialProject(t, server, projectID)
	defer conn.Close()

	group := GroupForProject(projectID)
	waitFor(t, "join", func() bool { return len(registry.Members(group)) == 1 })

	if err := websocket.JSON.Send(conn, map[string]string{"type": "rewind_time"}); err != nil {
		t.Fatalf("send unknown type: %v", err)
	}
	// The connection stays up and still answers subscribes.
	if err := websocket.JSON.Send(conn, map[string]string{"type": "subscribe"}); err != nil {
		t.Fatalf("send subscribe: %v", err)
	}
	var reply struct {
		Type string `json:"type"`
	}
	if err := websocket.JSON.Receive(conn, &reply); err != nil {
		t.Fatalf("receive ack: %v", err)
	}
	if reply.Type != "subscription_success" {
		t.Fatalf("unexpected reply %q", reply.Type)
	}
}

func TestDispatchedEventReachesConnectedClient(t *testing.T) {
	registry, server := newTestServer(t)
	dispatcher := NewDispatcher(registry)
	projectID := uuid.NewString()

	conn := dialProject(t, server, projectID)
	defer conn.Close()

	waitFor(t, "join", func() bool {
		return len(registry.Members(GroupForProject(projectID))) == 1
	})

	event, err := TaskCreated(map[string]string{"id": "t1", "title": "Ship the tracker"})
	if err != nil {
		t.Fatalf("TaskCreated: %v", err)
	}
	dispatcher.Notify(projectID, event)

	var msg struct {
		Type string `json:"type"`
		Task struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"task"`
	}
	if err := websocket.JSON.Receive(conn, &msg); err != nil {
		t.Fatalf("receive event: %v", err)
	}
	if msg.Type != "task_created" || msg.Task.ID != "t1" || msg.Task.Title != "Ship the tracker" {
		t.Fatalf("unexpected event: %+v", msg)
	}
}

func TestEventDoesNotReachOtherProjects(t *testing.T) {
	registry, server := newTestServer(t)
	dispatcher := NewDispatcher(registry)
	projectA := uuid.NewString()
	projectB := uuid.NewString()

	connA := dialProject(t, server, projectA)
	defer connA.Close()
	connB := dialProject(t, server, projectB)
	defer connB.Close()

	waitFor(t, "both joins", func() bool {
		return len(registry.Members(GroupForProject(projectA))) == 1 &&
			len(registry.Members(GroupForProject(projectB))) == 1
	})

	event, err := TaskCreated(map[string]string{"id": "t1"})
	if err != nil {
		t.Fatalf("TaskCreated: %v", err)
	}
	dispatcher.Notify(projectA, event)

	var got struct {
		Type string `json:"type"`
	}
	if err := websocket.JSON.Receive(connA, &got); err != nil {
		t.Fatalf("receive on A: %v", err)
	}
	if got.Type != "task_created" {
		t.Fatalf("A received %q", got.Type)
	}

	if err := connB.SetReadDeadline(time.Now().Add(150 * time.Millisecond)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	var leaked struct {
		Type string `json:"type"`
	}
	if err := websocket.JSON.Receive(connB, &leaked); err == nil {
		t.Fatalf("B received %q for a project it never joined", leaked.Type)
	}
}

func TestDisconnectLeavesGroupAndDispatchContinues(t *testing.T) {
	registry, server := newTestServer(t)
	dispatcher := NewDispatcher(registry)
	projectID := uuid.NewString()

	conn := dialProject(t, server, projectID)
	group := GroupForProject(projectID)
	waitFor(t, "join", func() bool { return len(registry.Members(group)) == 1 })

	conn.Close()
	waitFor(t, "leave after disconnect", func() bool {
		return len(registry.Members(group)) == 0
	})
	if got := registry.GroupCount(); got != 0 {
		t.Fatalf("expected group to be dropped, %d groups remain", got)
	}

	// Dispatch after the disconnect must be a clean no-op.
	event, err := TaskCreated(map[string]string{"id": "t1"})
	if err != nil {
		t.Fatalf("TaskCreated: %v", err)
	}
	dispatcher.Notify(projectID, event)
}

func TestMalformedProjectPathNeverJoins(t *testing.T) {
	registry, server := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/projects/not-a-uuid"
	conn, err := websocket.Dial(wsURL, "", server.URL)
	if err != nil {
		// Rejected during handshake is fine too.
		return
	}
	defer conn.Close()

	// The server closes the connection without registering it.
	waitFor(t, "rejection", func() bool { return registry.GroupCount() == 0 })

	if err := conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	var buf [64]byte
	for {
		if _, err := conn.Read(buf[:]); err != nil {
			break
		}
	}
	if got := registry.GroupCount(); got != 0 {
		t.Fatalf("malformed path produced %d groups", got)
	}
}
