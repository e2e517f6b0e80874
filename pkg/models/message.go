package models

import "time"

// Message is a row of the Chats table.
type Message struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	// UID is the author; assistant replies carry the fixed assistant id.
	UID          string `json:"uid"`
	Body         string `json:"message"`
	IsAIResponse bool   `json:"is_ai_response"`
	// ParentMessageID links an assistant reply to the message that mentioned it.
	ParentMessageID string    `json:"parent_message_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewMessage is the insert payload; id and created_at are assigned by the store.
type NewMessage struct {
	Channel         string
	UID             string
	Body            string
	IsAIResponse    bool
	ParentMessageID string
}
