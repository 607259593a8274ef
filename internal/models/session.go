package models

import (
	"time"

	"github.com/google/uuid"
)

// Phase - фаза сессии.
type Phase string

const (
	PhaseLanding Phase = "landing"
	PhaseStory   Phase = "story"
	PhaseEnding  Phase = "ending"
)

// MessageKind - тип сообщения в чате сессии.
type MessageKind string

const (
	MessageSystem  MessageKind = "system"
	MessageUser    MessageKind = "user"
	MessageStory   MessageKind = "story"
	MessageWarning MessageKind = "warning"
	MessageError   MessageKind = "error"
	MessageComment MessageKind = "comment"
)

// ChatMessage - запись в чате/логе сессии.
type ChatMessage struct {
	ID        string      `json:"id"`
	Kind      MessageKind `json:"kind"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"createdAt"`
}

// SnapshotView - снимок без вложенных снимков в решениях, для отдачи наружу.
type SnapshotView struct {
	CurrentSegment   string         `json:"currentSegment"`
	FullHistory      []string       `json:"fullHistory"`
	Decisions        []FlatDecision `json:"decisions"`
	Depth            int            `json:"depth"`
	AvailableOptions []string       `json:"availableOptions,omitempty"`
	NarrationHandle  string         `json:"narrationHandle,omitempty"`
}

// SessionView - read-only проекция состояния сессии.
type SessionView struct {
	ID              uuid.UUID     `json:"id"`
	Phase           Phase         `json:"phase"`
	Title           string        `json:"title,omitempty"`
	InitialPrompt   string        `json:"initialPrompt,omitempty"`
	StoryID         *uuid.UUID    `json:"storyId,omitempty"`
	Snapshot        SnapshotView  `json:"snapshot"`
	PendingDecision *FlatDecision `json:"pendingDecision,omitempty"`
	EndingImage     string        `json:"endingImage,omitempty"`
	Messages        []ChatMessage `json:"messages"`
}
