package storytree

import (
	"narrative-server/internal/models"
)

// PlaceholderPrefix - начало текста заглушки для отклоненного варианта.
// Последнее решение в снимке заглушки синтетическое (id узла, текст варианта) и никогда не применялось.
const PlaceholderPrefix = "path not taken: "

// BuildTree строит дерево целиком из журнала решений и истории сегментов.
//
// Для каждого решения i под текущим родителем создается выбранный узел глубины i+1
// и по заглушке-соседу на каждый отклоненный вариант из PrecedingSnapshot.AvailableOptions.
// Если текст решения не совпал ни с одним вариантом (свободный ввод), вариант
// FreeFormOption считается использованным и заглушки не получает.
// Если передан current с вариантами, заглушки для них вешаются на лист выбранного пути.
//
// Решения, для которых еще нет сгенерированного сегмента (len(fullHistory) <= i+1),
// в дерево не попадают.
func BuildTree(decisions []models.Decision, fullHistory []string, current *models.StorySnapshot) *models.TreeNode {
	root := NewRoot()
	root.Snapshot = chosenSnapshot(decisions, fullHistory, 0)

	resolved := len(decisions)
	if limit := len(fullHistory) - 1; resolved > limit {
		resolved = limit
	}
	if resolved < 0 {
		resolved = 0
	}

	parent := root
	for i := 0; i < resolved; i++ {
		d := decisions[i]
		options := precedingOptions(d)

		var chosen *models.TreeNode
		freeForm := !containsString(options, d.Text)
		for _, option := range options {
			switch {
			case option == d.Text:
				chosen = AppendChild(parent, newChosenNode(parent, i, decisions, fullHistory, options))
			case freeForm && option == models.FreeFormOption:
				continue
			default:
				AppendChild(parent, newPlaceholderNode(parent, i, option, d.Timestamp, options))
			}
		}
		if chosen == nil {
			chosen = AppendChild(parent, newChosenNode(parent, i, decisions, fullHistory, options))
		}
		parent = chosen
	}

	if current != nil && len(current.AvailableOptions) > 0 {
		lastText := ""
		if resolved > 0 {
			lastText = decisions[resolved-1].Text
		}
		parent.Snapshot.AvailableOptions = cloneStrings(current.AvailableOptions)
		for _, option := range current.AvailableOptions {
			if option == lastText {
				continue
			}
			AppendChild(parent, newPlaceholderNode(parent, resolved, option, 0, current.AvailableOptions))
		}
	}

	return root
}

// LeafID возвращает id листа выбранного пути, который построит BuildTree для этого журнала.
func LeafID(decisions []models.Decision, fullHistory []string) string {
	id := RootID
	for i, d := range decisions {
		if i+1 >= len(fullHistory) {
			break
		}
		id = NodeID(id, i+1, d.Text)
	}
	return id
}

func newChosenNode(parent *models.TreeNode, i int, decisions []models.Decision, fullHistory []string, options []string) *models.TreeNode {
	d := decisions[i]
	return &models.TreeNode{
		ID:                     NodeID(parent.ID, i+1, d.Text),
		Decision:               &d,
		Snapshot:               chosenSnapshot(decisions, fullHistory, i+1),
		Children:               []*models.TreeNode{},
		IsChosen:               boolPtr(true),
		AvailableOptionsAtNode: cloneStrings(options),
	}
}

// chosenSnapshot восстанавливает снимок выбранного пути на глубине depth.
// Варианты снимка берутся из следующего решения, если оно есть.
func chosenSnapshot(decisions []models.Decision, fullHistory []string, depth int) *models.StorySnapshot {
	history := []string{}
	segment := ""
	if depth < len(fullHistory) {
		history = cloneStrings(fullHistory[:depth+1])
		segment = fullHistory[depth]
	}
	snap := &models.StorySnapshot{
		CurrentSegment: segment,
		FullHistory:    history,
		Decisions:      append([]models.Decision{}, decisions[:depth]...),
		Depth:          depth,
	}
	if depth < len(decisions) {
		snap.AvailableOptions = cloneStrings(precedingOptions(decisions[depth]))
	}
	return snap
}

// newPlaceholderNode создает заглушку для отклоненного варианта option под parent.
// В журнал снимка заглушки добавляется синтетическое, никогда не примененное решение
// с id узла, чтобы сохранялся инвариант len(Decisions) == Depth.
func newPlaceholderNode(parent *models.TreeNode, i int, option string, timestamp int64, options []string) *models.TreeNode {
	id := NodeID(parent.ID, i+1, option)
	text := PlaceholderPrefix + option

	preceding := CloneSnapshot(*parent.Snapshot)
	preceding.AvailableOptions = cloneStrings(options)
	preceding.NarrationHandle = ""
	declined := models.Decision{
		ID:                id,
		Text:              option,
		Timestamp:         timestamp,
		PrecedingSnapshot: &preceding,
	}

	history := append(cloneStrings(parent.Snapshot.FullHistory), text)
	decisions := append(append([]models.Decision{}, parent.Snapshot.Decisions...), declined)

	return &models.TreeNode{
		ID:       id,
		Decision: &declined,
		Snapshot: &models.StorySnapshot{
			CurrentSegment: text,
			FullHistory:    history,
			Decisions:      decisions,
			Depth:          len(decisions),
		},
		Children:               []*models.TreeNode{},
		IsChosen:               boolPtr(false),
		AvailableOptionsAtNode: cloneStrings(options),
	}
}

func precedingOptions(d models.Decision) []string {
	if d.PrecedingSnapshot == nil {
		return nil
	}
	return d.PrecedingSnapshot.AvailableOptions
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
