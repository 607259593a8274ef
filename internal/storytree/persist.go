package storytree

import (
	"fmt"
	"time"

	"narrative-server/internal/models"
)

// Flatten убирает вложенные снимки из журнала решений.
func Flatten(decisions []models.Decision) []models.FlatDecision {
	out := make([]models.FlatDecision, 0, len(decisions))
	for j, d := range decisions {
		out = append(out, FlattenDecision(d, j))
	}
	return out
}

// FlattenDecision превращает решение в плоское. fallbackDepth используется,
// если у решения нет предшествующего снимка.
func FlattenDecision(d models.Decision, fallbackDepth int) models.FlatDecision {
	flat := models.FlatDecision{
		ID:        d.ID,
		Text:      d.Text,
		Timestamp: d.Timestamp,
		Depth:     fallbackDepth,
	}
	if d.PrecedingSnapshot != nil {
		flat.Depth = d.PrecedingSnapshot.Depth
		flat.AvailableOptions = cloneStrings(d.PrecedingSnapshot.AvailableOptions)
	}
	return flat
}

// RestoreDecisions восстанавливает журнал решений из плоского вида.
// Предшествующий снимок решения j синтезируется частично: глубина j,
// история усечена до j+1 сегментов, решения в нем без собственных снимков.
func RestoreDecisions(flat []models.FlatDecision, history []string) []models.Decision {
	out := make([]models.Decision, 0, len(flat))
	for j, f := range flat {
		out = append(out, restoreDecision(f, j, history, out))
	}
	return out
}

func restoreDecision(f models.FlatDecision, j int, history []string, prior []models.Decision) models.Decision {
	end := j + 1
	if end > len(history) {
		end = len(history)
	}
	if end < 0 {
		end = 0
	}
	truncated := cloneStrings(history[:end])
	if truncated == nil {
		truncated = []string{}
	}
	segment := ""
	if len(truncated) > 0 {
		segment = truncated[len(truncated)-1]
	}
	shallow := make([]models.Decision, len(prior))
	for k, p := range prior {
		p.PrecedingSnapshot = nil
		shallow[k] = p
	}
	return models.Decision{
		ID:        f.ID,
		Text:      f.Text,
		Timestamp: f.Timestamp,
		PrecedingSnapshot: &models.StorySnapshot{
			CurrentSegment:   segment,
			FullHistory:      truncated,
			Decisions:        shallow,
			Depth:            len(shallow),
			AvailableOptions: cloneStrings(f.AvailableOptions),
		},
	}
}

// ToPersisted собирает документ для хранилища из живого снимка и дерева.
// Журнал решений и история берутся из снимка: после повтора это журнал новой ветки.
func ToPersisted(title, initialPrompt string, snapshot models.StorySnapshot, tree *models.TreeNode, now time.Time) (models.PersistedStory, error) {
	serialized, err := Marshal(tree)
	if err != nil {
		return models.PersistedStory{}, err
	}
	return models.PersistedStory{
		Title:          title,
		InitialPrompt:  initialPrompt,
		FullHistory:    cloneStrings(snapshot.FullHistory),
		Decisions:      Flatten(snapshot.Decisions),
		SerializedTree: serialized,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// RestoredStory - состояние, восстановленное из сохраненной истории.
type RestoredStory struct {
	Snapshot models.StorySnapshot
	Tree     *models.TreeNode
	// TreeRebuilt означает, что сохраненное дерево было повреждено и собрано заново из журнала.
	TreeRebuilt bool
}

// FromPersisted восстанавливает живой снимок ("текущий сегмент = последний в истории")
// и дерево. Если сериализованное дерево пустое или повреждено, оно собирается
// заново из журнала решений.
func FromPersisted(story models.PersistedStory) (RestoredStory, error) {
	if len(story.FullHistory) == 0 {
		return RestoredStory{}, fmt.Errorf("%w: story %s has no history", models.ErrInvalidInput, story.ID)
	}
	history := cloneStrings(story.FullHistory)
	flat := story.Decisions
	if len(flat) > len(history)-1 {
		flat = flat[:len(history)-1]
	}
	decisions := RestoreDecisions(flat, history)
	// История длиннее журнала бывает только у поврежденных документов.
	history = history[:len(decisions)+1]

	snapshot := models.StorySnapshot{
		CurrentSegment: history[len(history)-1],
		FullHistory:    history,
		Decisions:      decisions,
		Depth:          len(decisions),
	}

	restored := RestoredStory{Snapshot: snapshot}
	tree, err := Unmarshal(story.SerializedTree)
	if err != nil {
		restored.Tree = BuildTree(decisions, history, nil)
		restored.TreeRebuilt = true
	} else {
		restored.Tree = tree
	}

	if leaf, ok := FindNodeByID(restored.Tree, LeafID(decisions, history)); ok && leaf.Snapshot != nil {
		restored.Snapshot.AvailableOptions = cloneStrings(leaf.Snapshot.AvailableOptions)
	}
	return restored, nil
}
