package storytree_test

import (
	"fmt"
	"testing"
	"time"

	"narrative-server/internal/models"
	"narrative-server/internal/storytree"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type generatedStory struct {
	decisions []models.Decision
	history   []string
	current   *models.StorySnapshot
	// offered[i] - число вариантов, предложенных перед решением i (вместе с FreeFormOption).
	offered []int
}

// drawStory генерирует правдоподобный журнал решений так же, как его ведет сессия.
func drawStory(t *rapid.T) generatedStory {
	n := rapid.IntRange(0, 6).Draw(t, "decisions")
	history := []string{"S0"}
	snap := models.StorySnapshot{CurrentSegment: "S0", FullHistory: []string{"S0"}, Decisions: []models.Decision{}}
	story := generatedStory{}

	for i := 0; i < n; i++ {
		k := rapid.IntRange(1, 3).Draw(t, fmt.Sprintf("k%d", i))
		options := rapid.SliceOfNDistinct(rapid.StringMatching(`[A-Za-z][A-Za-z ,!?]{0,15}`), k, k, rapid.ID[string]).
			Draw(t, fmt.Sprintf("options%d", i))
		options = append(options, models.FreeFormOption)

		text := options[rapid.IntRange(0, k-1).Draw(t, fmt.Sprintf("choice%d", i))]
		if rapid.Bool().Draw(t, fmt.Sprintf("freeForm%d", i)) {
			text = "free: " + rapid.StringMatching(`[a-z ]{1,10}`).Draw(t, fmt.Sprintf("freeText%d", i))
		}

		preceding := storytree.CloneSnapshot(snap)
		preceding.AvailableOptions = options
		d := models.Decision{
			ID:                fmt.Sprintf("d-%d", i),
			Text:              text,
			Timestamp:         int64(1700000000000 + i),
			PrecedingSnapshot: &preceding,
		}
		story.decisions = append(story.decisions, d)
		story.offered = append(story.offered, len(options))

		history = append(history, fmt.Sprintf("S%d", i+1))
		snap = models.StorySnapshot{
			CurrentSegment: history[len(history)-1],
			FullHistory:    append([]string{}, history...),
			Decisions:      append([]models.Decision{}, story.decisions...),
			Depth:          i + 1,
		}
	}
	story.history = history

	if rapid.Bool().Draw(t, "withCurrent") {
		current := storytree.CloneSnapshot(snap)
		current.AvailableOptions = []string{"Next A", "Next B", models.FreeFormOption}
		story.current = &current
	}
	return story
}

func TestProperty_IdempotentRebuild(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := drawStory(t)

		first := storytree.BuildTree(s.decisions, s.history, s.current)
		second := storytree.BuildTree(s.decisions, s.history, s.current)

		require.Equal(t, first, second)
	})
}

func TestProperty_DepthInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := drawStory(t)
		tree := storytree.BuildTree(s.decisions, s.history, s.current)

		storytree.Walk(tree, func(n *models.TreeNode, _ int) bool {
			require.NotNil(t, n.Snapshot, "node %s", n.ID)
			require.Equal(t, len(n.Snapshot.Decisions), n.Snapshot.Depth, "node %s", n.ID)
			require.Len(t, n.Snapshot.FullHistory, n.Snapshot.Depth+1, "node %s", n.ID)
			return true
		})
	})
}

func TestProperty_DeclinedOptionSiblings(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := drawStory(t)
		tree := storytree.BuildTree(s.decisions, s.history, nil)

		parent := tree
		for i, d := range s.decisions {
			chosen, declined := 0, 0
			var next *models.TreeNode
			for _, child := range parent.Children {
				require.NotNil(t, child.IsChosen)
				if *child.IsChosen {
					chosen++
					next = child
				} else {
					declined++
				}
			}
			require.Equal(t, 1, chosen, "decision %d", i)
			require.Equal(t, s.offered[i]-1, declined, "decision %d", i)
			require.Equal(t, d.Text, next.Decision.Text)
			parent = next
		}
	})
}

// TestProperty_IncrementalMergeKeepsDeclinedSiblings повторяет то, как сессия
// ведет дерево: после каждого сегмента свежая сборка накладывается на прежнее дерево.
func TestProperty_IncrementalMergeKeepsDeclinedSiblings(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := drawStory(t)

		var tree *models.TreeNode
		for j := 0; j <= len(s.decisions); j++ {
			current := s.current
			if j < len(s.decisions) {
				current = &models.StorySnapshot{AvailableOptions: s.decisions[j].PrecedingSnapshot.AvailableOptions}
			}
			tree = storytree.Merge(tree, storytree.BuildTree(s.decisions[:j], s.history[:j+1], current))
		}

		parent := tree
		for i, d := range s.decisions {
			declined := 0
			var next *models.TreeNode
			for _, child := range parent.Children {
				if child.Chosen() {
					next = child
				} else {
					declined++
				}
			}
			require.NotNil(t, next, "decision %d", i)
			require.Equal(t, s.offered[i]-1, declined, "decision %d", i)
			require.Equal(t, d.Text, next.Decision.Text)
			parent = next
		}
	})
}

func TestProperty_NavigatorNeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := drawStory(t)
		tree := storytree.BuildTree(s.decisions, s.history, s.current)

		root, ok := storytree.FindNodeByID(tree, storytree.RootID)
		require.True(t, ok)
		require.Same(t, tree, root)

		garbage := rapid.StringMatching(`[a-z0-9-]{1,20}`).Draw(t, "garbage")
		_, ok = storytree.FindNodeByID(tree, garbage)
		require.False(t, ok)
	})
}

func TestProperty_ReplayPreservesTree(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := drawStory(t)
		tree := storytree.BuildTree(s.decisions, s.history, s.current)
		before := storytree.Clone(tree)

		var ids []string
		storytree.Walk(tree, func(n *models.TreeNode, _ int) bool {
			ids = append(ids, n.ID)
			return true
		})
		id := ids[rapid.IntRange(0, len(ids)-1).Draw(t, "node")]

		snap, err := storytree.ReplayFrom(tree, id)
		node, _ := storytree.FindNodeByID(tree, id)
		if node.Chosen() {
			require.NoError(t, err)
			require.Equal(t, node.Snapshot.CurrentSegment, snap.CurrentSegment)
			require.Equal(t, node.Snapshot.Depth, snap.Depth)
		} else {
			require.ErrorIs(t, err, models.ErrNodeHasNoSnapshot)
		}
		require.Equal(t, before, tree)
	})
}

func TestProperty_PersistenceRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := drawStory(t)
		live := models.StorySnapshot{
			CurrentSegment: s.history[len(s.history)-1],
			FullHistory:    s.history,
			Decisions:      s.decisions,
			Depth:          len(s.decisions),
		}
		if s.current != nil {
			live.AvailableOptions = s.current.AvailableOptions
		}
		tree := storytree.BuildTree(s.decisions, s.history, s.current)

		persisted, err := storytree.ToPersisted("title", "A locked door", live, tree, time.Now())
		require.NoError(t, err)

		restored, err := storytree.FromPersisted(persisted)
		require.NoError(t, err)
		require.False(t, restored.TreeRebuilt)
		require.Equal(t, live.CurrentSegment, restored.Snapshot.CurrentSegment)
		require.Equal(t, live.Depth, restored.Snapshot.Depth)
		require.Equal(t, live.AvailableOptions, restored.Snapshot.AvailableOptions)
		require.Equal(t, storytree.Count(tree), storytree.Count(restored.Tree))

		rebuilt := storytree.BuildTree(restored.Snapshot.Decisions, restored.Snapshot.FullHistory, nil)
		_, ok := storytree.FindNodeByID(restored.Tree, storytree.LeafID(restored.Snapshot.Decisions, restored.Snapshot.FullHistory))
		require.True(t, ok)
		require.Equal(t, storytree.LeafID(s.decisions, s.history), storytree.LeafID(restored.Snapshot.Decisions, restored.Snapshot.FullHistory))
		require.LessOrEqual(t, storytree.Count(rebuilt), storytree.Count(restored.Tree))
	})
}

func TestFromPersisted_CorruptTreeIsRebuilt(t *testing.T) {
	decisions, history, _ := lockedDoor()
	story := models.PersistedStory{
		Title:          "Door",
		InitialPrompt:  "A locked door",
		FullHistory:    history,
		Decisions:      storytree.Flatten(decisions),
		SerializedTree: []byte(`{"id":"not-root"}`),
	}

	restored, err := storytree.FromPersisted(story)

	require.NoError(t, err)
	assert.True(t, restored.TreeRebuilt)
	assert.Equal(t, "S1", restored.Snapshot.CurrentSegment)
	assert.Equal(t, 1, restored.Snapshot.Depth)
	assert.Equal(t, 4, storytree.Count(restored.Tree))
	require.NotNil(t, restored.Snapshot.Decisions[0].PrecedingSnapshot)
	assert.Equal(t, []string{"S0"}, restored.Snapshot.Decisions[0].PrecedingSnapshot.FullHistory)
	assert.Equal(t, []string{"Open it", "Walk away", models.FreeFormOption}, restored.Snapshot.Decisions[0].PrecedingSnapshot.AvailableOptions)
}

func TestFromPersisted_EmptyHistory(t *testing.T) {
	_, err := storytree.FromPersisted(models.PersistedStory{})

	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestUnmarshal_Errors(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"null", "null"},
		{"garbage", "{not json"},
		{"wrong root", `{"id":"x","children":[]}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tree, err := storytree.Unmarshal([]byte(tc.data))
			assert.Error(t, err)
			assert.Nil(t, tree)
		})
	}
}

func TestReplayFrom_NodeWithoutSnapshot(t *testing.T) {
	tree := storytree.NewRoot()
	storytree.AppendChild(tree, &models.TreeNode{ID: "root/1-x-00000000"})

	_, err := storytree.ReplayFrom(tree, "root/1-x-00000000")
	assert.ErrorIs(t, err, models.ErrNodeHasNoSnapshot)

	_, err = storytree.ReplayFrom(tree, "missing")
	assert.ErrorIs(t, err, models.ErrNodeNotFound)
}
