package realtime

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tahcohcat/reconectar/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Upgrader accepts websocket handshakes from the page's own host and from
// the configured origins. A "*" entry allows every origin.
type Upgrader struct {
	up      websocket.Upgrader
	origins map[string]bool
	any     bool
}

func NewUpgrader(allowedOrigins []string) *Upgrader {
	u := &Upgrader{origins: make(map[string]bool, len(allowedOrigins))}
	for _, o := range allowedOrigins {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		if o == "*" {
			u.any = true
		} else if o != "" {
			u.origins[o] = true
		}
	}
	u.up = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     u.checkOrigin,
	}
	return u
}

// checkOrigin lets requests without an Origin header through; browsers always
// send one on cross-site handshakes.
func (u *Upgrader) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || u.any {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if strings.EqualFold(parsed.Host, r.Host) {
		return true
	}
	return u.origins[strings.ToLower(parsed.Scheme+"://"+parsed.Host)]
}

// Client is one websocket connection that receives JSON frames.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	log  *logger.Log
}

// Upgrade switches the request to the websocket protocol. A rejected origin
// gets a 403 reply.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*Client, error) {
	conn, err := u.up.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn: conn,
		send: make(chan []byte, 32),
		done: make(chan struct{}),
		log:  logger.New().With("remote", r.RemoteAddr),
	}, nil
}

// Send queues v as a JSON text frame. It reports false when the frame was
// dropped because the client is closed or too slow.
func (c *Client) Send(v interface{}) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.WithError(err).Warn("Failed to encode websocket frame")
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close shuts the connection down. It is safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Serve pumps frames until the peer disconnects. It blocks. Inbound text
// frames are handed to onMessage one at a time; nil discards them.
func (c *Client) Serve(onMessage func([]byte)) {
	go c.writePump()
	c.readPump(onMessage)
}

func (c *Client) readPump(onMessage func([]byte)) {
	defer c.Close()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("WebSocket read error")
			}
			return
		}
		if typ == websocket.TextMessage && onMessage != nil {
			onMessage(data)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.WithError(err).Warn("WebSocket write error")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
