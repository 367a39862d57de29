package domain

import "time"

// ChatMessage is one entry of the in-memory chat log.
type ChatMessage struct {
	ID     string    `json:"id"`
	From   string    `json:"from"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
	Mine   bool      `json:"mine"`
	System bool      `json:"system"`
}

// SystemSender is the label used for notes the client writes itself.
const SystemSender = "system"
