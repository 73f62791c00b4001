package realtime

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

const subscriptionAck = `{"type":"subscription_success","message":"Subscribed to project updates"}`

var errBadProjectPath = errors.New("missing or malformed project id in path")

type connState int

const (
	stateConnecting connState = iota
	stateJoined
	stateClosed
)

type controlMessage struct {
	Type string `json:"type"`
}

// connection is the per-client session: Connecting -> Joined -> Closed. A
// connection maps to exactly one group for its lifetime; teardown leaves the
// group exactly once no matter how many paths signal disconnect.
type connection struct {
	registry  *Registry
	sub       *Subscriber
	group     string
	state     connState
	leaveOnce sync.Once
}

func (c *connection) teardown() {
	c.leaveOnce.Do(func() {
		if c.group != "" {
			c.registry.Leave(c.group, c.sub)
		}
		c.sub.Close()
		c.state = stateClosed
	})
}

// Handler serves the realtime endpoint. The project id is the path segment
// after prefix, e.g. /ws/projects/{project_id}.
func Handler(registry *Registry, prefix string) http.Handler {
	return websocket.Handler(func(ws *websocket.Conn) {
		handleConn(ws, registry, prefix)
	})
}

func projectIDFromPath(path, prefix string) (string, error) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" || strings.Contains(rest, "/") {
		return "", errBadProjectPath
	}
	if _, err := uuid.Parse(rest); err != nil {
		return "", errBadProjectPath
	}
	return rest, nil
}

func handleConn(ws *websocket.Conn, registry *Registry, prefix string) {
	defer func() {
		_ = ws.Close()
	}()

	c := &connection{
		registry: registry,
		sub:      NewSubscriber(ws),
		state:    stateConnecting,
	}
	// Every exit path tears down, including a failed handshake: leaving a
	// group that was never joined is a registry no-op.
	defer c.teardown()

	projectID, err := projectIDFromPath(ws.Request().URL.Path, prefix)
	if err != nil {
		log.Printf("realtime: rejecting connection from %s: %v", ws.Request().RemoteAddr, err)
		return
	}

	c.group = GroupForProject(projectID)
	registry.Join(c.group, c.sub)
	c.state = stateJoined

	decoder := json.NewDecoder(ws)
	for {
		var msg controlMessage
		if err := decoder.Decode(&msg); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("realtime: read on project %s: %v", projectID, err)
			}
			return
		}

		switch msg.Type {
		case "subscribe":
			// Idempotent re-ack; membership is fixed for the connection's
			// lifetime.
			if err := c.sub.Send([]byte(subscriptionAck)); err != nil {
				return
			}
		default:
			// Unrecognized control messages are ignored.
		}
	}
}
