package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyforge/server/internal/models"
	"storyforge/server/internal/story"
)

const openingJSON = `{
	"title": "The Vault Job",
	"emoji": "💼",
	"intro": "The crew assembles at midnight.",
	"decision": {
		"text": "The side door or the roof?",
		"choice_x": {"label": "Side door", "description": "Quick and dirty."},
		"choice_y": {"label": "Roof line", "description": "Slow and quiet."}
	}
}`

const branchJSON = `{
	"outcome": "The lock gives on the second try.",
	"decision": {
		"text": "Alarms or cameras first?",
		"choice_x": {"label": "Kill the alarms", "description": "Loud if wrong."},
		"choice_y": {"label": "Loop the cameras", "description": "Takes time."}
	}
}`

const endingJSON = `{
	"outcome": "The feed stutters and holds.",
	"ending": "You walk out the front like you own the place."
}`

func generatedStartParams() StartParams {
	p := startParams()
	p.StoryID = ""
	p.Theme = "heist"
	return p
}

func TestGeneratedStoryOpening(t *testing.T) {
	ctx := context.Background()
	stories := story.NewRegistry()
	gen := &fakeGenerator{responses: []string{openingJSON}}
	e, _, _ := newTestEngine(t, stories, gen)

	res, err := e.Start(ctx, generatedStartParams())
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls)

	assert.True(t, strings.HasPrefix(res.Session.StoryID, "gen-"))
	st, ok := stories.Get(res.Session.StoryID)
	require.True(t, ok)
	assert.True(t, st.Generated)
	assert.Equal(t, "The Vault Job", st.Title)
	assert.Equal(t, "💼", st.Emoji)

	assert.Equal(t, "The crew assembles at midnight.", res.Text)
	require.NotNil(t, res.Node)
	assert.Equal(t, "decision_1", res.Node.ID)
	assert.Equal(t, "The side door or the roof?", res.NodeText)
	assert.Equal(t, "Side door", res.Node.Decision.ChoiceX.Label)

	// Both first outcomes exist with placeholder narratives; the four
	// second decisions are reserved but ungenerated.
	for _, c := range []story.ChoiceID{story.ChoiceX, story.ChoiceY} {
		o, ok := st.Node("outcome1" + string(c))
		require.True(t, ok)
		assert.Equal(t, "...", o.Text().Resolve())
	}
	for _, id := range []string{"decision2_XS", "decision2_XF", "decision2_YS", "decision2_YF"} {
		n, ok := st.Node(id)
		require.True(t, ok, id)
		assert.True(t, n.IsPending(), id)
	}

	require.NotNil(t, res.Session.Gen)
	assert.Equal(t, "heist", res.Session.Gen.Theme)
	assert.Equal(t, "The crew assembles at midnight.", res.Session.Gen.Opening)
}

func TestGeneratedStorySecondLayerSplice(t *testing.T) {
	ctx := context.Background()
	stories := story.NewRegistry()
	gen := &fakeGenerator{responses: []string{openingJSON, branchJSON}}
	e, _, sessions := newTestEngine(t, stories, gen)

	res, err := e.Start(ctx, generatedStartParams())
	require.NoError(t, err)

	// First draw from the test seed lands near 60 against chance 70:
	// success, branch XS.
	res2, err := e.Advance(ctx, res.Session.ID, ActionChoiceX)
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls)

	require.NotNil(t, res2.Roll)
	assert.True(t, res2.Roll.Success)
	assert.Equal(t, "The lock gives on the second try.", res2.Text,
		"the placeholder outcome narrative is backfilled before rendering")
	assert.Equal(t, "decision2_XS", res2.Node.ID)
	assert.Equal(t, "Alarms or cameras first?", res2.NodeText)

	st, ok := stories.Get(res.Session.StoryID)
	require.True(t, ok)

	o1x, ok := st.Node("outcome1X")
	require.True(t, ok)
	assert.Equal(t, "The lock gives on the second try.", o1x.Text().Resolve())

	for _, id := range []string{"outcome2_XS_X", "outcome2_XS_Y"} {
		n, ok := st.Node(id)
		require.True(t, ok, id)
		assert.True(t, n.IsOutcome())
		assert.False(t, n.IsPending())
	}
	for _, id := range []string{"end_XSXS", "end_XSXF", "end_XSYS", "end_XSYF"} {
		n, ok := st.Node(id)
		require.True(t, ok, id)
		assert.True(t, n.IsPending(), id)
	}

	// The unvisited branches stay ungenerated.
	for _, id := range []string{"decision2_XF", "decision2_YS", "decision2_YF"} {
		n, _ := st.Node(id)
		assert.True(t, n.IsPending(), id)
	}

	s, err := sessions.Get(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Side door", s.Gen.FirstChoice)
	assert.True(t, s.Gen.FirstSuccess)
	assert.Equal(t, "The lock gives on the second try.", s.Gen.FirstOutcome)
	assert.Equal(t, "Alarms or cameras first?", s.Gen.SecondDecision)
}

func TestGeneratedStoryEnding(t *testing.T) {
	ctx := context.Background()
	stories := story.NewRegistry()
	gen := &fakeGenerator{responses: []string{openingJSON, branchJSON, endingJSON}}
	e, granter, sessions := newTestEngine(t, stories, gen)

	res, err := e.Start(ctx, generatedStartParams())
	require.NoError(t, err)
	_, err = e.Advance(ctx, res.Session.ID, ActionChoiceX)
	require.NoError(t, err)

	// Second draw from the test seed lands near 94 against chance 65:
	// failure, ending XSXF.
	final, err := e.Advance(ctx, res.Session.ID, ActionChoiceX)
	require.NoError(t, err)
	assert.Equal(t, 3, gen.calls)

	assert.True(t, final.Done)
	assert.Equal(t, "You walk out the front like you own the place.", final.Text)
	require.NotNil(t, final.Final)
	assert.Equal(t, "end_XSXF", final.Final.TerminalID)
	assert.Equal(t, []string{"X", "S", "X", "F"}, final.Final.Path)

	// One of two rolls won: positive framing, coins in the one-win
	// band, reduced multiplier.
	assert.True(t, final.Final.Positive)
	assert.GreaterOrEqual(t, final.Final.Coins, 120)
	assert.LessOrEqual(t, final.Final.Coins, 280)
	assert.Equal(t, 121, final.Final.XP, "round(110 * 1.1)")

	require.Len(t, granter.calls, 1)
	assert.Equal(t, final.Final.Coins, granter.calls[0].coins)

	// The one-shot story is torn down with its session.
	_, ok := stories.Get(res.Session.StoryID)
	assert.False(t, ok)
	_, err = sessions.Get(ctx, res.Session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGenerationFailureSurfaces(t *testing.T) {
	stories := story.NewRegistry()
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	e, _, _ := newTestEngine(t, stories, gen)

	_, err := e.Start(context.Background(), generatedStartParams())
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Equal(t, 2, gen.calls, "bounded retry")
	assert.Empty(t, stories.IDs(), "no half-built story is registered")
	assert.Equal(t, int64(1), e.Stats().GenerationFailures)
}

func TestGenerationRetriesMalformedPayload(t *testing.T) {
	stories := story.NewRegistry()
	gen := &fakeGenerator{responses: []string{"not json at all", openingJSON}}
	e, _, _ := newTestEngine(t, stories, gen)

	res, err := e.Start(context.Background(), generatedStartParams())
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls)
	assert.Equal(t, "decision_1", res.Node.ID)
}

func TestGenerationRejectsIncompletePayload(t *testing.T) {
	// Syntactically valid JSON missing required fields burns an
	// attempt like any other bad payload.
	incomplete := `{"title": "No Story Here", "decision": {"text": ""}}`
	stories := story.NewRegistry()
	gen := &fakeGenerator{responses: []string{incomplete, openingJSON}}
	e, _, _ := newTestEngine(t, stories, gen)

	_, err := e.Start(context.Background(), generatedStartParams())
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls)
}

func TestGenerationRejectsOverlongPayload(t *testing.T) {
	oversized := `{
		"title": "` + strings.Repeat("t", 150) + `",
		"emoji": "💼",
		"intro": "Short enough.",
		"decision": {
			"text": "Pick.",
			"choice_x": {"label": "` + strings.Repeat("x", 120) + `", "description": "d"},
			"choice_y": {"label": "y", "description": "d"}
		}
	}`
	stories := story.NewRegistry()
	gen := &fakeGenerator{responses: []string{oversized, openingJSON}}
	e, _, _ := newTestEngine(t, stories, gen)

	res, err := e.Start(context.Background(), generatedStartParams())
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls, "an overlong payload burns an attempt")

	st, ok := stories.Get(res.Session.StoryID)
	require.True(t, ok)
	assert.Equal(t, "The Vault Job", st.Title)
	assert.Equal(t, "Side door", res.Node.Decision.ChoiceX.Label)
}

func TestGenerationDoesNotRetryPermanentErrors(t *testing.T) {
	stories := story.NewRegistry()
	gen := &fakeGenerator{err: errors.New("invalid api key"), permanent: true}
	e, _, _ := newTestEngine(t, stories, gen)

	_, err := e.Start(context.Background(), generatedStartParams())
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Equal(t, 1, gen.calls, "a permanent upstream error is not retried")
}

func TestGenerationFailureIsResumable(t *testing.T) {
	ctx := context.Background()
	stories := story.NewRegistry()
	gen := &fakeGenerator{responses: []string{openingJSON}}
	e, _, sessions := newTestEngine(t, stories, gen)

	res, err := e.Start(ctx, generatedStartParams())
	require.NoError(t, err)

	// Both branch-layer attempts fail; by then the roll, path token and
	// coins are already persisted.
	gen.err = errors.New("model unavailable")
	_, err = e.Advance(ctx, res.Session.ID, ActionChoiceX)
	require.ErrorIs(t, err, ErrGenerationFailed)

	s, err := sessions.Get(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "S"}, s.Path)
	assert.Equal(t, "outcome1X", s.CurrentNodeID)

	// The next action settles from the stored roll instead of
	// rejecting the session or drawing a new one.
	gen.err = nil
	gen.responses = []string{branchJSON}
	res2, err := e.Advance(ctx, res.Session.ID, ActionChoiceX)
	require.NoError(t, err)

	require.NotNil(t, res2.Roll)
	assert.True(t, res2.Roll.Success)
	assert.Equal(t, []string{"X", "S"}, res2.Session.Path, "the persisted roll is not re-drawn")
	assert.Equal(t, "decision2_XS", res2.Node.ID)
	assert.Equal(t, "The lock gives on the second try.", res2.Text)
}

type fakeMemory struct {
	endings      []string
	recallCalls  int
	relatedCalls int
	query        string
}

func (m *fakeMemory) StoreEnding(ctx context.Context, s *models.Session, ending string, positive bool) error {
	return nil
}

func (m *fakeMemory) RecallEndings(ctx context.Context, playerID string, limit int) ([]string, error) {
	m.recallCalls++
	return m.endings, nil
}

func (m *fakeMemory) RelatedEndings(ctx context.Context, playerID, query string, limit int) ([]string, error) {
	m.relatedCalls++
	m.query = query
	return m.endings, nil
}

func TestOpeningRecallsThematicHistory(t *testing.T) {
	ctx := context.Background()
	stories := story.NewRegistry()
	gen := &fakeGenerator{responses: []string{openingJSON}}
	e, _, _ := newTestEngine(t, stories, gen)
	mem := &fakeMemory{endings: []string{"You once walked away from a vault."}}
	e.memory = mem

	// A themed start recalls by similarity to the theme.
	_, err := e.Start(ctx, generatedStartParams())
	require.NoError(t, err)
	assert.Equal(t, 1, mem.relatedCalls)
	assert.Equal(t, "heist", mem.query)
	assert.Zero(t, mem.recallCalls)
	assert.Contains(t, gen.lastUser, "You once walked away from a vault.")

	// Without a theme, recall falls back to recency.
	p := generatedStartParams()
	p.Theme = ""
	_, err = e.Start(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 1, mem.recallCalls)
	assert.Equal(t, 1, mem.relatedCalls)
}

func TestCancelTearsDownGeneratedStory(t *testing.T) {
	ctx := context.Background()
	stories := story.NewRegistry()
	gen := &fakeGenerator{responses: []string{openingJSON}}
	e, _, _ := newTestEngine(t, stories, gen)

	res, err := e.Start(ctx, generatedStartParams())
	require.NoError(t, err)
	require.Len(t, stories.IDs(), 1)

	_, err = e.Advance(ctx, res.Session.ID, ActionCancel)
	require.NoError(t, err)
	assert.Empty(t, stories.IDs())
}

func TestRestartReplacesGeneratedStory(t *testing.T) {
	ctx := context.Background()
	stories := story.NewRegistry()
	gen := &fakeGenerator{responses: []string{openingJSON, openingJSON}}
	e, _, _ := newTestEngine(t, stories, gen)

	first, err := e.Start(ctx, generatedStartParams())
	require.NoError(t, err)
	second, err := e.Start(ctx, generatedStartParams())
	require.NoError(t, err)

	require.Len(t, stories.IDs(), 1)
	assert.Equal(t, second.Session.StoryID, stories.IDs()[0])
	assert.NotEqual(t, first.Session.StoryID, second.Session.StoryID)
}
