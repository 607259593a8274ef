package models

import (
	"time"

	"github.com/google/uuid"
)

// StoryEventType - тип события жизненного цикла истории.
type StoryEventType string

const (
	EventStoryStarted  StoryEventType = "story_started"
	EventDecisionMade  StoryEventType = "decision_made"
	EventStoryEnded    StoryEventType = "story_ended"
	EventStoryReplayed StoryEventType = "story_replayed"
	EventStoryLoaded   StoryEventType = "story_loaded"
	EventStorySaved    StoryEventType = "story_saved"
	EventStoryDeleted  StoryEventType = "story_deleted"
)

// StoryEvent публикуется в очередь событий.
type StoryEvent struct {
	Type         StoryEventType `json:"type"`
	SessionID    uuid.UUID      `json:"sessionId,omitempty"`
	StoryID      *uuid.UUID     `json:"storyId,omitempty"`
	Depth        int            `json:"depth"`
	DecisionText string         `json:"decisionText,omitempty"`
	NodeID       string         `json:"nodeId,omitempty"`
	OccurredAt   time.Time      `json:"occurredAt"`
}
