// Package storytree строит дерево решений из плоского журнала,
// ищет в нем узлы и восстанавливает состояние для повтора с любой точки.
// Все функции пакета чистые: никакого ввода-вывода и скрытого состояния.
package storytree

import (
	"narrative-server/internal/models"
)

// RootID - идентификатор корня любого дерева.
const RootID = "root"

// NewRoot создает корень с пустым снимком глубины 0.
func NewRoot() *models.TreeNode {
	return &models.TreeNode{
		ID: RootID,
		Snapshot: &models.StorySnapshot{
			FullHistory: []string{},
			Decisions:   []models.Decision{},
		},
		Children: []*models.TreeNode{},
	}
}

// FindNodeByID ищет узел обходом в глубину в порядке вставки детей.
func FindNodeByID(tree *models.TreeNode, id string) (*models.TreeNode, bool) {
	if tree == nil {
		return nil, false
	}
	var found *models.TreeNode
	Walk(tree, func(n *models.TreeNode, _ int) bool {
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found, found != nil
}

// AppendChild добавляет node в конец детей parent.
// Если ребенок с таким id уже есть, возвращается существующий узел и ничего не добавляется.
func AppendChild(parent, node *models.TreeNode) *models.TreeNode {
	for _, child := range parent.Children {
		if child.ID == node.ID {
			return child
		}
	}
	parent.Children = append(parent.Children, node)
	return node
}

// Walk обходит дерево в глубину. Если visit вернул false, обход прекращается.
func Walk(tree *models.TreeNode, visit func(n *models.TreeNode, level int) bool) {
	walk(tree, 0, visit)
}

func walk(n *models.TreeNode, level int, visit func(*models.TreeNode, int) bool) bool {
	if !visit(n, level) {
		return false
	}
	for _, child := range n.Children {
		if !walk(child, level+1, visit) {
			return false
		}
	}
	return true
}

// Count возвращает число узлов в дереве.
func Count(tree *models.TreeNode) int {
	if tree == nil {
		return 0
	}
	n := 0
	Walk(tree, func(*models.TreeNode, int) bool {
		n++
		return true
	})
	return n
}

// Clone делает глубокую копию дерева.
func Clone(tree *models.TreeNode) *models.TreeNode {
	if tree == nil {
		return nil
	}
	out := cloneNodeShallow(tree)
	out.Children = make([]*models.TreeNode, 0, len(tree.Children))
	for _, child := range tree.Children {
		out.Children = append(out.Children, Clone(child))
	}
	return out
}

// cloneNodeShallow копирует данные узла без детей.
func cloneNodeShallow(n *models.TreeNode) *models.TreeNode {
	out := &models.TreeNode{
		ID:                     n.ID,
		AvailableOptionsAtNode: cloneStrings(n.AvailableOptionsAtNode),
		Children:               []*models.TreeNode{},
	}
	if n.IsChosen != nil {
		out.IsChosen = boolPtr(*n.IsChosen)
	}
	if n.Decision != nil {
		d := *n.Decision
		out.Decision = &d
	}
	if n.Snapshot != nil {
		s := CloneSnapshot(*n.Snapshot)
		out.Snapshot = &s
	}
	return out
}

// CloneSnapshot копирует снимок вместе со срезами.
func CloneSnapshot(s models.StorySnapshot) models.StorySnapshot {
	out := s
	out.FullHistory = cloneStrings(s.FullHistory)
	if out.FullHistory == nil {
		out.FullHistory = []string{}
	}
	out.AvailableOptions = cloneStrings(s.AvailableOptions)
	// Вложенные PrecedingSnapshot разделяются: после записи в журнал они не меняются.
	out.Decisions = append(make([]models.Decision, 0, len(s.Decisions)), s.Decisions...)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func boolPtr(b bool) *bool {
	return &b
}
