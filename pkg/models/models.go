package models

import (
	"time"
)

// Conversation models

// Role identifies who produced a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// MediaDescriptor is a pointer to an attachment held by the messaging
// platform. Only the reference is stored, never the payload bytes.
type MediaDescriptor struct {
	MediaID  string `json:"media_id"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename,omitempty"`
}

// Inbound models

// InboundMessage is one normalized event lifted out of a webhook delivery.
// Exactly one of Text, Selection or Media is usually set, but a media
// message may also carry caption text.
type InboundMessage struct {
	From        string           `json:"from"`
	ProfileName string           `json:"profile_name,omitempty"`
	MessageID   string           `json:"message_id"`
	Text        string           `json:"text,omitempty"`
	Selection   string           `json:"selection,omitempty"`
	Media       *MediaDescriptor `json:"media,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// Outbound models

// MenuRow is a single selectable row in an interactive list message.
// ID comes back verbatim in the selection reply.
type MenuRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// MenuSection groups rows under a section title.
type MenuSection struct {
	Title string    `json:"title"`
	Rows  []MenuRow `json:"rows"`
}

// Menu is an interactive list message offering the user a set of choices.
type Menu struct {
	Header     string        `json:"header,omitempty"`
	Body       string        `json:"body"`
	ButtonText string        `json:"button_text"`
	Sections   []MenuSection `json:"sections"`
}
