// Package engine implements the branching story state machine: it
// walks a story's node graph for one session at a time, resolves
// chance gates, materializes generated layers on demand, and grants
// rewards when a playthrough ends.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"storyforge/server/internal/interfaces"
	"storyforge/server/internal/models"
	"storyforge/server/internal/storage"
	"storyforge/server/internal/story"
)

// Action is one player-facing input to an active session.
type Action string

const (
	ActionChoiceX Action = "choice_x"
	ActionChoiceY Action = "choice_y"
	ActionCashOut Action = "cash_out"
	ActionCancel  Action = "cancel"
)

// Reward activity tags written to the ledger.
const (
	ActivityComplete = "story_complete"
	ActivityCashOut  = "story_cashout"
)

// Deps wires the engine's collaborators. Memory and Notifier are
// optional; Rand defaults to a time-seeded source.
type Deps struct {
	Stories   *story.Registry
	Sessions  *storage.SessionStore
	Rewards   interfaces.RewardGranter
	Generator interfaces.ContentGenerator
	Memory    interfaces.PlaythroughMemory
	Notifier  interfaces.Notifier
	Logger    *zap.Logger
	Rand      *rand.Rand

	GenerationAttempts int
	GenerationBackoff  time.Duration
	MemoryRecallLimit  int
}

// Engine drives sessions through story graphs. All mutations of one
// session happen inside a single action call guarded by the store's
// durable processing lock; distinct sessions are independent.
type Engine struct {
	stories   *story.Registry
	sessions  *storage.SessionStore
	rewards   interfaces.RewardGranter
	generator interfaces.ContentGenerator
	memory    interfaces.PlaythroughMemory
	notifier  interfaces.Notifier
	log       *zap.Logger

	randMu sync.Mutex
	rand   *rand.Rand

	genAttempts int
	genBackoff  time.Duration
	recallLimit int

	actionsProcessed   atomic.Int64
	rewardsGranted     atomic.Int64
	generationFailures atomic.Int64
}

func New(d Deps) *Engine {
	e := &Engine{
		stories:     d.Stories,
		sessions:    d.Sessions,
		rewards:     d.Rewards,
		generator:   d.Generator,
		memory:      d.Memory,
		notifier:    d.Notifier,
		log:         d.Logger,
		rand:        d.Rand,
		genAttempts: d.GenerationAttempts,
		genBackoff:  d.GenerationBackoff,
		recallLimit: d.MemoryRecallLimit,
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.rand == nil {
		e.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if e.genAttempts == 0 {
		e.genAttempts = 3
	}
	if e.genBackoff == 0 {
		e.genBackoff = time.Second
	}
	if e.recallLimit == 0 {
		e.recallLimit = 3
	}
	return e
}

// Stats is a snapshot of the engine's counters.
type Stats struct {
	ActionsProcessed   int64 `json:"actions_processed"`
	RewardsGranted     int64 `json:"rewards_granted"`
	GenerationFailures int64 `json:"generation_failures"`
}

func (e *Engine) Stats() Stats {
	return Stats{
		ActionsProcessed:   e.actionsProcessed.Load(),
		RewardsGranted:     e.rewardsGranted.Load(),
		GenerationFailures: e.generationFailures.Load(),
	}
}

// StartParams describes a new playthrough. An empty StoryID requests an
// incrementally generated story.
type StartParams struct {
	PlayerID    string
	AccountID   string
	StoryID     string
	Theme       string
	PlayerLevel int
	MessageID   string
	ChannelID   string
	GuildID     string
}

// Start begins a playthrough for the player, replacing any session they
// already have, and auto-advances through the intro node. The returned
// result carries the intro narrative and the first decision.
func (e *Engine) Start(ctx context.Context, p StartParams) (*Result, error) {
	if existing, err := e.sessions.GetByPlayer(ctx, p.PlayerID); err == nil {
		e.discard(ctx, existing)
	} else if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	var (
		st     *story.Story
		genCtx *models.GenContext
	)
	if p.StoryID == "" {
		var err error
		st, genCtx, err = e.buildOpening(ctx, p)
		if err != nil {
			e.generationFailures.Inc()
			return nil, err
		}
		e.stories.Register(st)
	} else {
		var ok bool
		st, ok = e.stories.Get(p.StoryID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrStoryNotFound, p.StoryID)
		}
	}

	intro, ok := st.Node(st.Start)
	if !ok {
		e.unregisterGenerated(st)
		return nil, fmt.Errorf("%w: start node %q in story %s", ErrNodeNotFound, st.Start, st.ID)
	}
	if !intro.IsIntro() {
		e.unregisterGenerated(st)
		return nil, fmt.Errorf("%w: story %s starts on a %s node", ErrInvalidAction, st.ID, intro.Kind)
	}
	next, ok := st.Node(intro.Intro.Next)
	if !ok {
		e.unregisterGenerated(st)
		return nil, fmt.Errorf("%w: %q referenced by intro of story %s", ErrNodeNotFound, intro.Intro.Next, st.ID)
	}

	now := time.Now().UTC()
	s := &models.Session{
		ID:            uuid.NewString(),
		PlayerID:      p.PlayerID,
		AccountID:     p.AccountID,
		StoryID:       st.ID,
		CurrentNodeID: next.ID,
		StartedAt:     now,
		MessageID:     p.MessageID,
		ChannelID:     p.ChannelID,
		GuildID:       p.GuildID,
		PlayerLevel:   p.PlayerLevel,
		ResolvedText:  make(map[string]string),
		ResolvedCoins: make(map[string]int),
		Gen:           genCtx,
	}

	introText := e.resolveText(s, intro)
	s.Coins += e.resolveCoins(s, intro)
	s.Journal = append(s.Journal, models.JournalEntry{
		Kind:   models.JournalIntro,
		NodeID: intro.ID,
		Text:   introText,
		At:     now,
	})
	nextText := e.resolveText(s, next)

	if err := e.sessions.Create(ctx, s); err != nil {
		e.unregisterGenerated(st)
		return nil, err
	}

	e.actionsProcessed.Inc()
	e.notify("session_started", s, map[string]interface{}{"story_title": st.Title})
	return &Result{Session: s, Node: next, NodeText: nextText, Text: introText}, nil
}

// Advance applies one action to the session. A second action arriving
// while one is in flight is rejected with ErrStillProcessing without
// touching session state.
func (e *Engine) Advance(ctx context.Context, sessionID string, action Action) (*Result, error) {
	s, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return e.process(ctx, s, action)
}

// AdvanceByMessage is Advance keyed by the originating message id.
func (e *Engine) AdvanceByMessage(ctx context.Context, messageID string, action Action) (*Result, error) {
	s, err := e.sessions.GetByMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return e.process(ctx, s, action)
}

// Render rebuilds the presentation view of a session without advancing
// it, for UI re-renders.
func (e *Engine) Render(ctx context.Context, sessionID string) (*Result, error) {
	s, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	st, ok := e.stories.Get(s.StoryID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStoryNotFound, s.StoryID)
	}
	node, ok := st.Node(s.CurrentNodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %q in story %s", ErrNodeNotFound, s.CurrentNodeID, st.ID)
	}
	return &Result{Session: s, Node: node, NodeText: e.resolveText(s, node)}, nil
}

func (e *Engine) process(ctx context.Context, s *models.Session, action Action) (res *Result, err error) {
	if err := e.sessions.SetProcessing(ctx, s); err != nil {
		return nil, err
	}
	finished := false
	defer func() {
		if finished {
			// The session was deleted; there is no lock left to clear.
			return
		}
		if cerr := e.sessions.ClearProcessing(ctx, s); cerr != nil {
			e.log.Error("failed to clear processing lock",
				zap.String("session_id", s.ID), zap.Error(cerr))
		}
	}()

	e.actionsProcessed.Inc()

	switch action {
	case ActionCancel:
		res, err = e.cancel(ctx, s)
	case ActionCashOut:
		res, err = e.cashOut(ctx, s)
	case ActionChoiceX:
		res, err = e.choose(ctx, s, story.ChoiceX)
	case ActionChoiceY:
		res, err = e.choose(ctx, s, story.ChoiceY)
	default:
		err = fmt.Errorf("%w: unknown action %q", ErrInvalidAction, action)
	}

	if err == nil && res.Done {
		finished = true
	}
	return res, err
}

func (e *Engine) choose(ctx context.Context, s *models.Session, choiceID story.ChoiceID) (*Result, error) {
	st, ok := e.stories.Get(s.StoryID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStoryNotFound, s.StoryID)
	}
	node, ok := st.Node(s.CurrentNodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %q in story %s", ErrNodeNotFound, s.CurrentNodeID, st.ID)
	}
	if node.IsOutcome() {
		// A previous action rolled this outcome and persisted the
		// result, then failed while generating the next layer. Resume
		// from the stored roll instead of rejecting the session.
		return e.resumeOutcome(ctx, s, st, node)
	}
	if !node.IsDecision() || node.IsPending() {
		return nil, fmt.Errorf("%w: choice %s on %s node %q", ErrInvalidAction, choiceID, node.Kind, node.ID)
	}

	choice, _ := node.Decision.Choice(choiceID)
	other := node.Decision.Other(choiceID)

	next, ok := st.Node(choice.Next)
	if !ok {
		return nil, fmt.Errorf("%w: %q referenced by %q", ErrNodeNotFound, choice.Next, node.ID)
	}

	s.Path = append(s.Path, string(choiceID))
	s.Journal = append(s.Journal, models.JournalEntry{
		Kind:        models.JournalChoice,
		NodeID:      node.ID,
		Choice:      string(choiceID),
		ChoiceLabel: choice.Label,
		OtherLabel:  other.Label,
		At:          time.Now().UTC(),
	})
	if s.Gen != nil {
		if s.Gen.FirstChoice == "" {
			s.Gen.FirstChoice = choice.Label
		} else {
			s.Gen.SecondChoice = choice.Label
		}
	}
	s.CurrentNodeID = next.ID

	switch {
	case next.IsTerminal():
		// A choice may point straight at an ending, skipping the roll.
		return e.finalize(ctx, s, st, next)
	case next.IsOutcome():
		return e.resolveOutcome(ctx, s, st, next, choice)
	default:
		nextText := e.resolveText(s, next)
		if err := e.sessions.Update(ctx, s); err != nil {
			return nil, err
		}
		e.notify("session_advanced", s, nil)
		return &Result{Session: s, Node: next, NodeText: nextText}, nil
	}
}

func (e *Engine) resolveOutcome(ctx context.Context, s *models.Session, st *story.Story, node *story.Node, choice story.Choice) (*Result, error) {
	eff := EffectiveChance(node.Outcome.SuccessChance, choice.RiskMultiplier)
	roll := e.RollChance(eff)

	token, dest := "F", node.Outcome.OnFailure
	if roll.Success {
		token, dest = "S", node.Outcome.OnSuccess
	}
	s.Path = append(s.Path, token)
	s.Coins += e.resolveCoins(s, node)
	if roll.Success {
		s.Coins += choice.BaseReward
	}
	if s.Gen != nil && len(s.Path) == 2 {
		s.Gen.FirstSuccess = roll.Success
	}

	rollCopy := roll
	entryIdx := len(s.Journal)
	s.Journal = append(s.Journal, models.JournalEntry{
		Kind:   models.JournalRoll,
		NodeID: node.ID,
		Roll:   &rollCopy,
		At:     time.Now().UTC(),
	})

	// Persist the roll before any suspension point so a crash during
	// generation can never re-roll it.
	if err := e.sessions.Update(ctx, s); err != nil {
		return nil, err
	}

	return e.settleOutcome(ctx, s, st, node, dest, rollCopy, entryIdx)
}

// resumeOutcome re-runs the settlement of an outcome whose roll was
// already persisted but whose next layer failed to generate, using the
// stored roll instead of drawing a new one.
func (e *Engine) resumeOutcome(ctx context.Context, s *models.Session, st *story.Story, node *story.Node) (*Result, error) {
	entryIdx := -1
	for i := len(s.Journal) - 1; i >= 0; i-- {
		if s.Journal[i].Kind == models.JournalRoll && s.Journal[i].NodeID == node.ID {
			entryIdx = i
			break
		}
	}
	if entryIdx < 0 || s.Journal[entryIdx].Roll == nil {
		return nil, fmt.Errorf("%w: no recorded roll for %s node %q", ErrInvalidAction, node.Kind, node.ID)
	}

	roll := *s.Journal[entryIdx].Roll
	dest := node.Outcome.OnFailure
	if roll.Success {
		dest = node.Outcome.OnSuccess
	}
	return e.settleOutcome(ctx, s, st, node, dest, roll, entryIdx)
}

// settleOutcome carries a rolled outcome to its destination:
// materializes the destination layer if it is still pending, backfills
// the outcome narrative into the roll's journal entry, and either
// finalizes or advances onto the next decision.
func (e *Engine) settleOutcome(ctx context.Context, s *models.Session, st *story.Story, node *story.Node, dest string, roll models.RollResult, entryIdx int) (*Result, error) {
	destNode, ok := st.Node(dest)
	if !ok || destNode.IsPending() {
		if !st.Generated {
			return nil, fmt.Errorf("%w: %q referenced by %q", ErrNodeNotFound, dest, node.ID)
		}
		if err := e.ensureLayer(ctx, s, st, node, dest); err != nil {
			e.generationFailures.Inc()
			return nil, err
		}
		// The session may have been torn down while the generation
		// call was in flight; a late result must not be applied.
		if _, err := e.sessions.Get(ctx, s.ID); err != nil {
			return nil, err
		}
		destNode, ok = st.Node(dest)
		if !ok || destNode.IsPending() {
			return nil, fmt.Errorf("%w: layer for %q did not materialize", ErrGenerationFailed, dest)
		}
	}

	// Re-read the outcome node: a generation layer may have backfilled
	// its placeholder narrative.
	if refreshed, ok := st.Node(node.ID); ok {
		node = refreshed
	}
	outcomeText := e.resolveText(s, node)
	s.Journal[entryIdx].Text = outcomeText

	if destNode.IsTerminal() {
		res, err := e.finalize(ctx, s, st, destNode)
		if err != nil {
			return nil, err
		}
		res.Roll = &roll
		return res, nil
	}

	s.CurrentNodeID = destNode.ID
	nextText := e.resolveText(s, destNode)
	if err := e.sessions.Update(ctx, s); err != nil {
		return nil, err
	}
	e.notify("session_advanced", s, map[string]interface{}{"roll": roll})
	return &Result{
		Session:  s,
		Node:     destNode,
		NodeText: nextText,
		Text:     outcomeText,
		Roll:     &roll,
	}, nil
}

func (e *Engine) finalize(ctx context.Context, s *models.Session, st *story.Story, node *story.Node) (*Result, error) {
	if !node.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot finalize %s node %q", ErrInvalidAction, node.Kind, node.ID)
	}

	s.CurrentNodeID = node.ID
	s.Coins += e.resolveCoins(s, node)
	text := e.resolveText(s, node)
	s.Journal = append(s.Journal, models.JournalEntry{
		Kind:   models.JournalEnding,
		NodeID: node.ID,
		Text:   text,
		At:     time.Now().UTC(),
	})

	xp := roundXP(BaseXP(s.PlayerLevel), node.Terminal.XPMultiplier)
	e.grant(ctx, s, xp, ActivityComplete, fmt.Sprintf("story %s ended at %s", st.ID, node.ID))

	if err := e.sessions.Delete(ctx, s); err != nil {
		return nil, err
	}
	e.unregisterGenerated(st)
	e.storeMemory(ctx, s, text, node.Terminal.Positive)

	final := &FinalSummary{
		Coins:      s.Coins,
		XP:         xp,
		Positive:   node.Terminal.Positive,
		TerminalID: node.ID,
		Path:       append([]string(nil), s.Path...),
	}
	e.notify("session_finished", s, map[string]interface{}{"final": final})
	return &Result{Session: s, Text: text, Done: true, Final: final}, nil
}

func (e *Engine) cashOut(ctx context.Context, s *models.Session) (*Result, error) {
	st, _ := e.stories.Get(s.StoryID)

	// Exiting before a natural ending grants a reduced XP fraction,
	// truncated rather than rounded.
	xp := int(float64(BaseXP(s.PlayerLevel)) * cashOutXPFraction)
	e.grant(ctx, s, xp, ActivityCashOut, fmt.Sprintf("story %s cashed out at %s", s.StoryID, s.CurrentNodeID))

	if err := e.sessions.Delete(ctx, s); err != nil {
		return nil, err
	}
	if st != nil {
		e.unregisterGenerated(st)
	}

	final := &FinalSummary{
		Coins:     s.Coins,
		XP:        xp,
		Positive:  s.Coins >= 0,
		Path:      append([]string(nil), s.Path...),
		CashedOut: true,
	}
	e.notify("session_cashed_out", s, map[string]interface{}{"final": final})
	return &Result{Session: s, Done: true, Final: final}, nil
}

func (e *Engine) cancel(ctx context.Context, s *models.Session) (*Result, error) {
	if err := e.sessions.Delete(ctx, s); err != nil {
		return nil, err
	}
	if st, ok := e.stories.Get(s.StoryID); ok {
		e.unregisterGenerated(st)
	}
	e.notify("session_cancelled", s, nil)
	return &Result{Session: s, Done: true, Cancelled: true}, nil
}

// discard tears down a session found when the player starts a new one.
func (e *Engine) discard(ctx context.Context, s *models.Session) {
	if err := e.sessions.Delete(ctx, s); err != nil {
		e.log.Warn("failed to delete replaced session",
			zap.String("session_id", s.ID), zap.Error(err))
	}
	if st, ok := e.stories.Get(s.StoryID); ok {
		e.unregisterGenerated(st)
	}
}

// grant credits the playthrough's rewards. A grant failure is reported
// and logged, never fatal: the player still sees their ending.
func (e *Engine) grant(ctx context.Context, s *models.Session, xp int, activity, note string) {
	if _, err := e.rewards.Grant(ctx, s.AccountID, s.Coins, xp, activity, note); err != nil {
		e.log.Error("reward grant failed",
			zap.String("session_id", s.ID),
			zap.String("account_id", s.AccountID),
			zap.Int("coins", s.Coins),
			zap.Int("xp", xp),
			zap.Error(err))
		return
	}
	e.rewardsGranted.Inc()
}

func (e *Engine) unregisterGenerated(st *story.Story) {
	if st.Generated {
		e.stories.Unregister(st.ID)
	}
}

func (e *Engine) storeMemory(ctx context.Context, s *models.Session, ending string, positive bool) {
	if e.memory == nil {
		return
	}
	if err := e.memory.StoreEnding(ctx, s, ending, positive); err != nil {
		e.log.Warn("failed to store playthrough memory",
			zap.String("session_id", s.ID), zap.Error(err))
	}
}

func (e *Engine) notify(event string, s *models.Session, payload map[string]interface{}) {
	if e.notifier == nil {
		return
	}
	e.notifier.SessionEvent(event, s, payload)
}

// RollChance draws a uniform value in [0, 100) and succeeds when it
// lands under the chance.
func (e *Engine) RollChance(chance float64) models.RollResult {
	drawn := e.randFloat() * 100
	return models.RollResult{Rolled: drawn, Needed: chance, Success: drawn < chance}
}

// resolveText resolves a node's narrative exactly once per session,
// memoizing randomized values in the session cache.
func (e *Engine) resolveText(s *models.Session, n *story.Node) string {
	tv := n.Text()
	if !tv.Dynamic() {
		return tv.Resolve()
	}
	if v, ok := s.ResolvedText[n.ID]; ok {
		return v
	}
	v := tv.Resolve()
	s.ResolvedText[n.ID] = v
	return v
}

// resolveCoins is resolveText for coin deltas.
func (e *Engine) resolveCoins(s *models.Session, n *story.Node) int {
	cv := n.CoinDelta()
	if !cv.IsSet() {
		return 0
	}
	if !cv.Dynamic() {
		return cv.Resolve()
	}
	if v, ok := s.ResolvedCoins[n.ID]; ok {
		return v
	}
	v := cv.Resolve()
	s.ResolvedCoins[n.ID] = v
	return v
}

func (e *Engine) randFloat() float64 {
	e.randMu.Lock()
	defer e.randMu.Unlock()
	return e.rand.Float64()
}

func (e *Engine) randRange(min, max int) int {
	e.randMu.Lock()
	defer e.randMu.Unlock()
	return min + e.rand.Intn(max-min+1)
}
