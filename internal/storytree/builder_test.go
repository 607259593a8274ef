package storytree_test

import (
	"testing"

	"narrative-server/internal/models"
	"narrative-server/internal/storytree"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockedDoor возвращает журнал истории "A locked door" после выбора "Open it".
func lockedDoor() ([]models.Decision, []string, models.StorySnapshot) {
	options := []string{"Open it", "Walk away", models.FreeFormOption}
	opening := models.StorySnapshot{
		CurrentSegment:   "S0",
		FullHistory:      []string{"S0"},
		Decisions:        []models.Decision{},
		Depth:            0,
		AvailableOptions: options,
	}
	decisions := []models.Decision{{
		ID:                "01HZX0000000000000000000AA",
		Text:              "Open it",
		Timestamp:         1700000000000,
		PrecedingSnapshot: &opening,
	}}
	history := []string{"S0", "S1"}
	current := models.StorySnapshot{
		CurrentSegment:   "S1",
		FullHistory:      history,
		Decisions:        decisions,
		Depth:            1,
		AvailableOptions: []string{"Step inside", "Close it", models.FreeFormOption},
	}
	return decisions, history, current
}

func TestBuildTree_LockedDoorScenario(t *testing.T) {
	decisions, history, _ := lockedDoor()

	tree := storytree.BuildTree(decisions, history, nil)

	require.Equal(t, storytree.RootID, tree.ID)
	assert.Nil(t, tree.Decision)
	assert.Nil(t, tree.IsChosen)
	require.Len(t, tree.Children, 3)

	chosen := tree.Children[0]
	require.NotNil(t, chosen.IsChosen)
	assert.True(t, *chosen.IsChosen)
	assert.Equal(t, "Open it", chosen.Decision.Text)
	assert.Equal(t, 1, chosen.Snapshot.Depth)
	assert.Equal(t, "S1", chosen.Snapshot.CurrentSegment)
	assert.Equal(t, []string{"S0", "S1"}, chosen.Snapshot.FullHistory)
	assert.Equal(t, []string{"Open it", "Walk away", models.FreeFormOption}, chosen.AvailableOptionsAtNode)

	var placeholders []string
	for _, child := range tree.Children[1:] {
		require.NotNil(t, child.IsChosen)
		assert.False(t, *child.IsChosen)
		placeholders = append(placeholders, child.Decision.Text)
		assert.Equal(t, storytree.PlaceholderPrefix+child.Decision.Text, child.Snapshot.CurrentSegment)
		assert.Empty(t, child.Snapshot.NarrationHandle)
		assert.Empty(t, child.Children)
	}
	assert.Equal(t, []string{"Walk away", models.FreeFormOption}, placeholders)

	snap, err := storytree.ReplayFrom(tree, tree.ID)
	require.NoError(t, err)
	assert.Equal(t, "S0", snap.CurrentSegment)
	assert.Equal(t, 0, snap.Depth)

	_, found := storytree.FindNodeByID(tree, "some-garbage-id")
	assert.False(t, found)
}

func TestBuildTree_CurrentOptionsBecomeLeafPlaceholders(t *testing.T) {
	decisions, history, current := lockedDoor()

	tree := storytree.BuildTree(decisions, history, &current)

	leaf, ok := storytree.FindNodeByID(tree, storytree.LeafID(decisions, history))
	require.True(t, ok)
	assert.Equal(t, current.AvailableOptions, leaf.Snapshot.AvailableOptions)
	require.Len(t, leaf.Children, 3)
	for _, child := range leaf.Children {
		assert.False(t, child.Chosen())
		assert.Equal(t, 2, child.Snapshot.Depth)
		assert.Len(t, child.Snapshot.FullHistory, 3)
	}
}

func TestBuildTree_CurrentOptionMatchingLastDecisionIsSkipped(t *testing.T) {
	decisions, history, current := lockedDoor()
	current.AvailableOptions = []string{"Open it", "Knock"}

	tree := storytree.BuildTree(decisions, history, &current)

	leaf, ok := storytree.FindNodeByID(tree, storytree.LeafID(decisions, history))
	require.True(t, ok)
	require.Len(t, leaf.Children, 1)
	assert.Equal(t, "Knock", leaf.Children[0].Decision.Text)
}

func TestBuildTree_FreeFormDecision(t *testing.T) {
	decisions, history, _ := lockedDoor()
	decisions[0].Text = "Pick the lock with a hairpin"

	tree := storytree.BuildTree(decisions, history, nil)

	require.Len(t, tree.Children, 3)
	var chosen, declined []string
	for _, child := range tree.Children {
		if child.Chosen() {
			chosen = append(chosen, child.Decision.Text)
		} else {
			declined = append(declined, child.Decision.Text)
		}
	}
	assert.Equal(t, []string{"Pick the lock with a hairpin"}, chosen)
	assert.Equal(t, []string{"Open it", "Walk away"}, declined)
}

func TestBuildTree_LegacyDecisionsWithoutOptions(t *testing.T) {
	decisions := []models.Decision{
		{ID: "a", Text: "Go north"},
		{ID: "b", Text: "Climb", PrecedingSnapshot: &models.StorySnapshot{Depth: 1}},
	}
	history := []string{"S0", "S1", "S2"}

	tree := storytree.BuildTree(decisions, history, nil)

	assert.Equal(t, 3, storytree.Count(tree))
	require.Len(t, tree.Children, 1)
	require.Len(t, tree.Children[0].Children, 1)
	assert.Equal(t, "S2", tree.Children[0].Children[0].Snapshot.CurrentSegment)
}

func TestBuildTree_UnresolvedDecisionIsNotAttached(t *testing.T) {
	decisions, _, _ := lockedDoor()

	tree := storytree.BuildTree(decisions, []string{"S0"}, nil)

	assert.Equal(t, 1, storytree.Count(tree))
	assert.Equal(t, "S0", tree.Snapshot.CurrentSegment)
}

func TestBuildTree_PlaceholderIDsAreScopedByParent(t *testing.T) {
	options := []string{"Wait", "Run"}
	first := models.StorySnapshot{CurrentSegment: "S0", FullHistory: []string{"S0"}, AvailableOptions: options}
	d0 := models.Decision{ID: "1", Text: "Run", PrecedingSnapshot: &first}
	second := models.StorySnapshot{
		CurrentSegment: "S1", FullHistory: []string{"S0", "S1"},
		Decisions: []models.Decision{d0}, Depth: 1, AvailableOptions: options,
	}
	d1 := models.Decision{ID: "2", Text: "Run", PrecedingSnapshot: &second}

	tree := storytree.BuildTree([]models.Decision{d0, d1}, []string{"S0", "S1", "S2"}, nil)

	ids := map[string]int{}
	storytree.Walk(tree, func(n *models.TreeNode, _ int) bool {
		ids[n.ID]++
		return true
	})
	for id, count := range ids {
		assert.Equal(t, 1, count, "id %s is not unique", id)
	}
	assert.Len(t, ids, 5)
}

func TestAppendChild_Idempotent(t *testing.T) {
	root := storytree.NewRoot()
	first := storytree.AppendChild(root, &models.TreeNode{ID: "root/1-a-00000000"})
	second := storytree.AppendChild(root, &models.TreeNode{ID: "root/1-a-00000000"})

	assert.Same(t, first, second)
	assert.Len(t, root.Children, 1)
}

func TestSlug(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"Open it", "open-it"},
		{"  Walk   away!! ", "walk-away"},
		{"Make your own decision", "make-your-own-decision"},
		{"???", "option"},
		{"Открыть дверь", "открыть-дверь"},
		{"a very long option text that keeps going and going", "a-very-long-option-text-that-kee"},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, storytree.Slug(tc.in))
		})
	}
}

func TestNodeID_SameSlugDifferentText(t *testing.T) {
	a := storytree.NodeID(storytree.RootID, 1, "Open it!")
	b := storytree.NodeID(storytree.RootID, 1, "open it")

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, storytree.NodeID(storytree.RootID, 1, "Open it!"))
}

func TestBuildTree_PlaceholderDecisionIsSynthetic(t *testing.T) {
	decisions, history, _ := lockedDoor()
	tree := storytree.BuildTree(decisions, history, nil)

	away, ok := storytree.FindNodeByID(tree, storytree.NodeID(storytree.RootID, 1, "Walk away"))
	require.True(t, ok)
	require.False(t, away.Chosen())

	snap := away.Snapshot
	require.Len(t, snap.Decisions, 1)
	last := snap.Decisions[0]
	assert.Equal(t, away.ID, last.ID)
	assert.Equal(t, "Walk away", last.Text)
	assert.Equal(t, storytree.PlaceholderPrefix+"Walk away", snap.CurrentSegment)
	require.NotNil(t, last.PrecedingSnapshot)
	assert.Empty(t, last.PrecedingSnapshot.Decisions, "реальный журнал точки ветвления остается в PrecedingSnapshot")
}
