package storytree

import (
	"fmt"

	"narrative-server/internal/models"
)

// ReplayFrom возвращает копию снимка узла nodeID, с которого можно продолжить игру.
// Дерево не изменяется.
//
// Заглушки отклоненных вариантов (IsChosen == false) не содержат сгенерированного
// текста, поэтому повтор с них отклоняется с ErrNodeHasNoSnapshot.
func ReplayFrom(tree *models.TreeNode, nodeID string) (models.StorySnapshot, error) {
	node, ok := FindNodeByID(tree, nodeID)
	if !ok {
		return models.StorySnapshot{}, fmt.Errorf("%w: %q", models.ErrNodeNotFound, nodeID)
	}
	if node.Snapshot == nil {
		return models.StorySnapshot{}, fmt.Errorf("%w: %q", models.ErrNodeHasNoSnapshot, nodeID)
	}
	if !node.Chosen() {
		return models.StorySnapshot{}, fmt.Errorf("%w: %q is a path not taken", models.ErrNodeHasNoSnapshot, nodeID)
	}
	return CloneSnapshot(*node.Snapshot), nil
}
