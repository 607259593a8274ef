package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FreeFormOption - вариант, который всегда добавляется к предложенным опциям
// и означает, что игрок вводит решение сам.
const FreeFormOption = "Make your own decision"

// StorySnapshot - состояние повествования в одной точке.
// Инвариант: len(Decisions) == Depth, len(FullHistory) == Depth+1 (после генерации открывающего сегмента).
type StorySnapshot struct {
	CurrentSegment   string     `json:"currentSegment"`
	FullHistory      []string   `json:"fullHistory"`
	Decisions        []Decision `json:"decisions"`
	Depth            int        `json:"depth"`
	AvailableOptions []string   `json:"availableOptions,omitempty"`
	NarrationHandle  string     `json:"narrationHandle,omitempty"`
}

// Decision - один выбор игрока вместе со снимком, который ему предшествовал.
type Decision struct {
	ID                string         `json:"id"`
	Text              string         `json:"text"`
	Timestamp         int64          `json:"timestamp"`
	PrecedingSnapshot *StorySnapshot `json:"precedingSnapshot,omitempty"`
}

// FlatDecision - решение без вложенного снимка, в таком виде оно хранится в БД.
// Depth - глубина снимка, на котором решение было принято.
type FlatDecision struct {
	ID               string   `json:"id"`
	Text             string   `json:"text"`
	Timestamp        int64    `json:"timestamp"`
	Depth            int      `json:"depth"`
	AvailableOptions []string `json:"availableOptions,omitempty"`
}

// PersistedStory - документ сохраненной истории.
type PersistedStory struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	Title          string          `json:"title" db:"title"`
	InitialPrompt  string          `json:"initialPrompt" db:"initial_prompt"`
	FullHistory    []string        `json:"fullHistory" db:"-"`
	Decisions      []FlatDecision  `json:"decisions" db:"-"`
	SerializedTree json.RawMessage `json:"serializedTree" db:"-"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
}

// StoryUpdate - частичное обновление сохраненной истории. Nil поля не трогаются.
type StoryUpdate struct {
	Title          *string
	FullHistory    []string
	Decisions      []FlatDecision
	SerializedTree json.RawMessage
}

// IsEmpty сообщает, что в обновлении нет ни одного поля.
func (u StoryUpdate) IsEmpty() bool {
	return u.Title == nil && u.FullHistory == nil && u.Decisions == nil && u.SerializedTree == nil
}

// StorySummary - элемент списка сохраненных историй.
type StorySummary struct {
	ID            uuid.UUID `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	InitialPrompt string    `json:"initialPrompt" db:"initial_prompt"`
	Depth         int       `json:"depth" db:"depth"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}
