// Package chat holds the in-memory chat log and the data-channel envelope.
package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Classroom/internal/core"
)

const KindChat = "chat"

// Envelope is the structured chat message sent over the data channel.
type Envelope struct {
	Kind      string `json:"kind"`
	From      string `json:"from"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// legacyEnvelope is the shape older clients send: {t, from, text, ts}.
type legacyEnvelope struct {
	T    string `json:"t"`
	From string `json:"from"`
	Text string `json:"text"`
	TS   int64  `json:"ts"`
}

func Encode(from, text string, at time.Time) ([]byte, error) {
	return json.Marshal(Envelope{Kind: KindChat, From: from, Text: text, Timestamp: at.UnixMilli()})
}

// Decode parses a chat envelope. Anything that is not a recognized envelope
// returns core.ErrMalformedPayload.
func Decode(payload []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedPayload, err)
	}
	if env.Kind == KindChat {
		return &env, nil
	}
	var legacy legacyEnvelope
	if err := json.Unmarshal(payload, &legacy); err == nil && legacy.T == KindChat {
		return &Envelope{Kind: KindChat, From: legacy.From, Text: legacy.Text, Timestamp: legacy.TS}, nil
	}
	return nil, core.ErrMalformedPayload
}

// Text decodes a payload as UTF-8, replacing invalid sequences.
func Text(payload []byte) string {
	return strings.ToValidUTF8(string(payload), "�")
}
