package protocol

import (
	log "log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

// Client is a hub connection bound to one shard address. Incoming frames
// addressed to the shard are handed to the OnMessage callback from the
// Run goroutine; frames for other shards are dropped.
type Client struct {
	url       string
	shard     string
	reconnect time.Duration

	OnMessage func(*Message)

	mu   sync.Mutex
	conn *ws.Conn
}

type ClientConfig struct {
	URL       string
	Shard     string
	Reconnect time.Duration // pause between redial attempts
}

func Dial(cfg ClientConfig) (*Client, error) {
	if cfg.Reconnect <= 0 {
		cfg.Reconnect = 3 * time.Second
	}
	conn, _, err := ws.DefaultDialer.Dial(cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	log.Debug("hub link up", "url", cfg.URL, "shard", cfg.Shard)
	return &Client{
		url:       cfg.URL,
		shard:     cfg.Shard,
		reconnect: cfg.Reconnect,
		conn:      conn,
	}, nil
}

// Send stamps the frame with the client's shard as FROM and writes it.
func (c *Client) Send(m Message) error {
	m.From = c.shard
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.conn.WriteMessage(ws.TextMessage, []byte(m.String()))
	if err != nil {
		log.Error("hub write failed", "frame", m.String(), "err", err)
	}
	return err
}

// Run reads frames until Close, redialing on clean connection loss.
// It is meant to run on its own goroutine.
func (c *Client) Run() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !isClosed(err) {
				log.Error("hub read failed", "err", err)
				return
			}
			log.Warn("hub link lost, redialing", "url", c.url)
			if !c.redial() {
				return
			}
			continue
		}

		m, err := Parse(string(raw))
		if err != nil {
			log.Warn("dropping malformed frame", "frame", string(raw), "err", err)
			continue
		}
		if m.To != c.shard && m.To != "ALL" {
			continue
		}
		if c.OnMessage != nil {
			c.OnMessage(m)
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) redial() bool {
	for {
		conn, _, err := ws.DefaultDialer.Dial(c.url, nil)
		if err == nil {
			c.mu.Lock()
			closed := c.conn == nil
			if !closed {
				c.conn = conn
			}
			c.mu.Unlock()
			if closed {
				conn.Close()
				return false
			}
			log.Info("hub link restored", "url", c.url)
			return true
		}
		time.Sleep(c.reconnect)
	}
}

func isClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure) || ws.IsUnexpectedCloseError(err)
}
