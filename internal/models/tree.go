package models

// TreeNode - узел дерева решений.
// Decision == nil только у корня, IsChosen == nil тоже только у корня.
// У заглушки (IsChosen == false) Decision и последнее решение в Snapshot.Decisions
// синтетические: это отклоненный вариант, который никогда не применялся.
type TreeNode struct {
	ID                     string         `json:"id"`
	Decision               *Decision      `json:"decision"`
	Snapshot               *StorySnapshot `json:"snapshot"`
	Children               []*TreeNode    `json:"children"`
	IsChosen               *bool          `json:"isChosen,omitempty"`
	AvailableOptionsAtNode []string       `json:"availableOptionsAtNode,omitempty"`
}

// Chosen возвращает true, если узел лежит на реально пройденном пути.
// Для корня (IsChosen не задан) тоже true.
func (n *TreeNode) Chosen() bool {
	return n.IsChosen == nil || *n.IsChosen
}
