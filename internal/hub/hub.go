// Package hub links the appliance to the home-automation hub: state
// transitions go out, remote wake commands come in.
package hub

import (
	"fmt"
	"strings"
	"time"

	log "log/slog"

	"parley/pkg/protocol"
)

type Config struct {
	URL   string
	Shard string
	// OnWake is invoked when the hub sends a WAKE command.
	OnWake func()
	// OnStop is invoked when the hub sends a STOP command.
	OnStop func()
}

type Hub struct {
	client *protocol.Client
}

func Dial(cfg *Config) (*Hub, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	client, err := protocol.Dial(protocol.ClientConfig{
		URL:       cfg.URL,
		Shard:     cfg.Shard,
		Reconnect: 3 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("dial hub: %w", err)
	}

	client.OnMessage = func(m *protocol.Message) {
		switch m.Verb {
		case "WAKE":
			if cfg.OnWake != nil {
				cfg.OnWake()
			}
		case "STOP":
			if cfg.OnStop != nil {
				cfg.OnStop()
			}
		default:
			log.Debug("unhandled hub frame", "frame", m.String())
		}
	}

	h := &Hub{client: client}
	go client.Run()
	return h, nil
}

// PublishSession announces a recording session edge ("started" or
// "stopped") to the hub.
func (h *Hub) PublishSession(edge string) {
	m := protocol.Message{
		To:   "HUB",
		Verb: "EVENT",
		Noun: "SESSION",
		Args: []string{strings.ToUpper(edge)},
	}
	if err := h.client.Send(m); err != nil {
		log.Warn("session publish failed", "edge", edge, "err", err)
	}
}

// PublishState announces an interaction state change to the hub.
func (h *Hub) PublishState(state string) {
	m := protocol.Message{
		To:   "HUB",
		Verb: "EVENT",
		Noun: "STATE",
		Args: []string{strings.ToUpper(state)},
	}
	if err := h.client.Send(m); err != nil {
		log.Warn("state publish failed", "state", state, "err", err)
	}
}

func (h *Hub) Close() error {
	return h.client.Close()
}
