// Package protocol implements the hub wire format: single-line
// colon-delimited frames of the shape TO:VERB:NOUN[:ARG...]:FROM carried
// over a websocket. Frames never contain whitespace.
package protocol

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

type Message struct {
	To   string
	Verb string
	Noun string
	Args []string
	From string
}

var tokenRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func isToken(s string) bool { return tokenRe.MatchString(s) }

// Parse decodes a single frame. Verb and noun are canonicalized to upper
// case; address tokens are kept as sent.
func Parse(line string) (*Message, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return nil, errors.New("empty frame")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return nil, errors.New("whitespace inside frame")
	}
	parts := strings.Split(s, ":")
	if len(parts) < 4 {
		return nil, fmt.Errorf("too few fields: got %d, want >= 4", len(parts))
	}

	m := &Message{
		To:   parts[0],
		Verb: strings.ToUpper(parts[1]),
		Noun: strings.ToUpper(parts[2]),
		Args: append([]string(nil), parts[3:len(parts)-1]...),
		From: parts[len(parts)-1],
	}

	if !isToken(m.To) && m.To != "ALL" {
		return nil, fmt.Errorf("invalid TO token: %q", m.To)
	}
	if !isToken(m.From) {
		return nil, fmt.Errorf("invalid FROM token: %q", m.From)
	}
	if !isToken(m.Verb) || !isToken(m.Noun) {
		return nil, fmt.Errorf("invalid VERB/NOUN: %q %q", m.Verb, m.Noun)
	}
	for i, a := range m.Args {
		if !isToken(a) {
			return nil, fmt.Errorf("invalid ARG[%d]: %q", i, a)
		}
	}
	return m, nil
}

func (m *Message) String() string {
	parts := make([]string, 0, 4+len(m.Args))
	parts = append(parts, m.To, m.Verb, m.Noun)
	parts = append(parts, m.Args...)
	parts = append(parts, m.From)
	return strings.Join(parts, ":")
}
