package storytree

import (
	"encoding/json"
	"errors"
	"fmt"

	"narrative-server/internal/models"
)

// wireNode - представление узла для хранения. Решения в нем плоские,
// без вложенных снимков, иначе размер документа рос бы квадратично от глубины.
type wireNode struct {
	ID                     string               `json:"id"`
	Decision               *models.FlatDecision `json:"decision"`
	Snapshot               *wireSnapshot        `json:"snapshot"`
	Children               []wireNode           `json:"children"`
	IsChosen               *bool                `json:"isChosen,omitempty"`
	AvailableOptionsAtNode []string             `json:"availableOptionsAtNode,omitempty"`
}

type wireSnapshot struct {
	CurrentSegment   string                `json:"currentSegment"`
	FullHistory      []string              `json:"fullHistory"`
	Decisions        []models.FlatDecision `json:"decisions"`
	Depth            int                   `json:"depth"`
	AvailableOptions []string              `json:"availableOptions,omitempty"`
}

var errEmptyTree = errors.New("serialized tree is empty")

// Marshal сериализует дерево.
func Marshal(tree *models.TreeNode) (json.RawMessage, error) {
	if tree == nil {
		return nil, errEmptyTree
	}
	data, err := json.Marshal(toWire(tree))
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации дерева: %w", err)
	}
	return data, nil
}

// Unmarshal восстанавливает дерево. Предшествующие снимки решений синтезируются
// из глубины и усеченной истории снимка узла.
func Unmarshal(data json.RawMessage) (*models.TreeNode, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, errEmptyTree
	}
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("ошибка десериализации дерева: %w", err)
	}
	if w.ID != RootID {
		return nil, fmt.Errorf("корень дерева имеет id %q вместо %q", w.ID, RootID)
	}
	return fromWire(w), nil
}

func toWire(n *models.TreeNode) wireNode {
	w := wireNode{
		ID:                     n.ID,
		Children:               make([]wireNode, 0, len(n.Children)),
		IsChosen:               n.IsChosen,
		AvailableOptionsAtNode: n.AvailableOptionsAtNode,
	}
	if n.Decision != nil {
		fallbackDepth := 0
		if n.Snapshot != nil && n.Snapshot.Depth > 0 {
			fallbackDepth = n.Snapshot.Depth - 1
		}
		flat := FlattenDecision(*n.Decision, fallbackDepth)
		w.Decision = &flat
	}
	if n.Snapshot != nil {
		w.Snapshot = &wireSnapshot{
			CurrentSegment:   n.Snapshot.CurrentSegment,
			FullHistory:      n.Snapshot.FullHistory,
			Decisions:        Flatten(n.Snapshot.Decisions),
			Depth:            n.Snapshot.Depth,
			AvailableOptions: n.Snapshot.AvailableOptions,
		}
	}
	for _, child := range n.Children {
		w.Children = append(w.Children, toWire(child))
	}
	return w
}

func fromWire(w wireNode) *models.TreeNode {
	n := &models.TreeNode{
		ID:                     w.ID,
		Children:               make([]*models.TreeNode, 0, len(w.Children)),
		IsChosen:               w.IsChosen,
		AvailableOptionsAtNode: w.AvailableOptionsAtNode,
	}
	var history []string
	if w.Snapshot != nil {
		history = w.Snapshot.FullHistory
		if history == nil {
			history = []string{}
		}
		n.Snapshot = &models.StorySnapshot{
			CurrentSegment:   w.Snapshot.CurrentSegment,
			FullHistory:      history,
			Decisions:        RestoreDecisions(w.Snapshot.Decisions, history),
			Depth:            w.Snapshot.Depth,
			AvailableOptions: w.Snapshot.AvailableOptions,
		}
	}
	if w.Decision != nil {
		d := restoreDecision(*w.Decision, w.Decision.Depth, history, nil)
		if n.Snapshot != nil && len(n.Snapshot.Decisions) > 0 {
			d = n.Snapshot.Decisions[len(n.Snapshot.Decisions)-1]
		}
		n.Decision = &d
	}
	for _, child := range w.Children {
		n.Children = append(n.Children, fromWire(child))
	}
	return n
}
