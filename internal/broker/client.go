package broker

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// closeSlowConsumer is the close code sent to a client whose outbound
// queue stayed full on a CloseOnFull-policy topic; 1008 (policy
// violation) is the closest standard code for "you could not keep up".
const closeSlowConsumer = 1008

// Client is one subscriber connection: a websocket.Conn plus a bounded
// outbound queue drained by its own writer goroutine, so a slow client
// can never block the broker's dispatch path. Grounded on
// internal/fabric/websocket.go's ping-ticker-plus-pong-deadline keepalive
// shape and internal/websocket/dag_streamer.go's register/unregister via
// channel handshake with the owning hub.
type Client struct {
	conn   *websocket.Conn
	broker *Broker

	send chan []byte
	done chan struct{}

	mu            sync.Mutex
	subscriptions map[string]bool
	closed        bool
}

func newClient(conn *websocket.Conn, b *Broker, queueDepth int) *Client {
	return &Client{
		conn:          conn,
		broker:        b,
		send:          make(chan []byte, queueDepth),
		done:          make(chan struct{}),
		subscriptions: make(map[string]bool),
	}
}

// enqueue delivers one frame under policy. DropOldest pops the oldest
// queued frame and retries once so the newest sample always has room;
// CloseOnFull closes the connection the first time the queue is found
// full rather than ever discarding a recording-mirror frame.
func (c *Client) enqueue(policy Policy, frame []byte) {
	select {
	case c.send <- frame:
		return
	default:
	}

	if policy == CloseOnFull {
		c.close(closeSlowConsumer, "slow consumer")
		return
	}

	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) readLoop() {
	defer func() {
		c.broker.unregister(c)
		close(c.done)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame controlFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue // malformed subscription JSON: ignore and keep the connection open
		}
		switch frame.Action {
		case "subscribe":
			c.broker.subscribe(c, frame.Topics)
		case "unsubscribe":
			c.broker.unsubscribe(c, frame.Topics)
		}
	}
}

func (c *Client) close(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, msg)
	c.conn.Close()
}

func (c *Client) addSubscription(topic string) {
	c.mu.Lock()
	c.subscriptions[topic] = true
	c.mu.Unlock()
}

func (c *Client) removeSubscription(topic string) {
	c.mu.Lock()
	delete(c.subscriptions, topic)
	c.mu.Unlock()
}

func (c *Client) subscribedTopics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subscriptions))
	for t := range c.subscriptions {
		out = append(out, t)
	}
	return out
}
