package storytree

import (
	"narrative-server/internal/models"
)

// Merge накладывает свежесобранное дерево на удерживаемое и возвращает новое дерево.
// Ни одно из входных деревьев не изменяется.
//
// Узлы сопоставляются по id. Данные выбранного узла из rebuilt заменяют старые,
// заглушка из rebuilt никогда не понижает ранее выбранный узел, а дети старого
// дерева, которых нет в rebuilt, сохраняются вместе с поддеревьями.
// Так ветки, пройденные до повтора, переживают последующие пересборки.
//
// Исключение - заглушки под узлом выбранного пути rebuilt, у которого есть дети:
// набор его вариантов определяет rebuilt, поэтому старые заглушки, которых там нет
// (например, FreeFormOption после свободного ввода), отбрасываются.
func Merge(existing, rebuilt *models.TreeNode) *models.TreeNode {
	switch {
	case existing == nil:
		return Clone(rebuilt)
	case rebuilt == nil:
		return Clone(existing)
	case existing.ID != rebuilt.ID:
		return Clone(rebuilt)
	}
	return mergeNode(existing, rebuilt)
}

func mergeNode(old, fresh *models.TreeNode) *models.TreeNode {
	var out *models.TreeNode
	if old.Chosen() && !fresh.Chosen() {
		out = cloneNodeShallow(old)
	} else {
		out = cloneNodeShallow(fresh)
	}

	freshByID := make(map[string]*models.TreeNode, len(fresh.Children))
	for _, child := range fresh.Children {
		freshByID[child.ID] = child
	}
	seen := make(map[string]bool, len(old.Children))
	ownsOptions := fresh.Chosen() && len(fresh.Children) > 0

	for _, child := range old.Children {
		seen[child.ID] = true
		match, ok := freshByID[child.ID]
		switch {
		case ok:
			out.Children = append(out.Children, mergeNode(child, match))
		case ownsOptions && !child.Chosen():
			continue
		default:
			out.Children = append(out.Children, Clone(child))
		}
	}
	for _, child := range fresh.Children {
		if !seen[child.ID] {
			out.Children = append(out.Children, Clone(child))
		}
	}
	return out
}
