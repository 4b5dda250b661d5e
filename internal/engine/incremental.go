package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyforge/server/internal/models"
	"storyforge/server/internal/prompts"
	"storyforge/server/internal/retry"
	"storyforge/server/internal/story"
)

// Generated stories grow in three layers. Layer 1 is built at start:
// intro, the first decision and both first outcomes, with the four
// possible second decisions reserved as pending slots. Layer 2 is
// spliced in when the first roll lands: it backfills the reached
// outcome's placeholder narrative and fills one pending decision. Layer
// 3 does the same for the final outcome and the ending the player
// actually reached. Branches the player never visits are never
// generated.
const (
	nodeIntro            = "intro"
	nodeFirstDecision    = "decision_1"
	placeholderNarrative = "..."

	genStoryPrefix    = "gen-"
	secondDecisionPfx = "decision2_"
	endingPfx         = "end_"
)

func firstOutcomeID(c story.ChoiceID) string { return "outcome1" + string(c) }

func secondDecisionID(pathKey string) string { return secondDecisionPfx + pathKey }

func secondOutcomeID(pathKey string, c story.ChoiceID) string {
	return "outcome2_" + pathKey + "_" + string(c)
}

func endingID(pathKey string) string { return endingPfx + pathKey }

// buildOpening generates Layer 1 and assembles the story skeleton. The
// returned story is not yet registered.
func (e *Engine) buildOpening(ctx context.Context, p StartParams) (*story.Story, *models.GenContext, error) {
	var endings []string
	if e.memory != nil {
		var err error
		if p.Theme != "" {
			// A themed start pulls thematically similar history rather
			// than just the most recent endings.
			endings, err = e.memory.RelatedEndings(ctx, p.PlayerID, p.Theme, e.recallLimit)
		} else {
			endings, err = e.memory.RecallEndings(ctx, p.PlayerID, e.recallLimit)
		}
		if err != nil {
			e.log.Warn("failed to recall past endings",
				zap.String("player_id", p.PlayerID), zap.Error(err))
			endings = nil
		}
	}

	system, user := prompts.Opening(p.Theme, endings)
	var content openingContent
	if err := e.generateLayer(ctx, system, user, &content); err != nil {
		return nil, nil, err
	}

	nodes := []*story.Node{
		story.NewIntro(nodeIntro, story.Text(content.Intro), nodeFirstDecision),
		story.NewDecision(nodeFirstDecision, story.Text(content.Decision.Text),
			story.Choice{
				Label:          content.Decision.ChoiceX.Label,
				Description:    content.Decision.ChoiceX.Description,
				RiskMultiplier: 1.0,
				Next:           firstOutcomeID(story.ChoiceX),
			},
			story.Choice{
				Label:          content.Decision.ChoiceY.Label,
				Description:    content.Decision.ChoiceY.Description,
				RiskMultiplier: 1.0,
				Next:           firstOutcomeID(story.ChoiceY),
			}),
	}
	for _, c := range []story.ChoiceID{story.ChoiceX, story.ChoiceY} {
		nodes = append(nodes,
			story.NewOutcome(firstOutcomeID(c), story.Text(placeholderNarrative), genFirstRollChance,
				secondDecisionID(string(c)+"S"), secondDecisionID(string(c)+"F")),
			story.NewPending(secondDecisionID(string(c)+"S"), story.KindDecision),
			story.NewPending(secondDecisionID(string(c)+"F"), story.KindDecision),
		)
	}

	st := story.New(genStoryPrefix+uuid.NewString()[:8], content.Title, content.Emoji, nodeIntro, nodes)
	st.Generated = true

	gen := &models.GenContext{
		Theme:         p.Theme,
		Opening:       content.Intro,
		FirstDecision: content.Decision.Text,
	}
	return st, gen, nil
}

// ensureLayer materializes the pending layer that owns dest. node is
// the outcome whose roll just resolved.
func (e *Engine) ensureLayer(ctx context.Context, s *models.Session, st *story.Story, node *story.Node, dest string) error {
	if s.Gen == nil {
		return fmt.Errorf("%w: story %s has no generation context", ErrGenerationFailed, st.ID)
	}
	switch {
	case strings.HasPrefix(dest, secondDecisionPfx):
		return e.generateBranch(ctx, s, st, dest)
	case strings.HasPrefix(dest, endingPfx):
		return e.generateEnding(ctx, s, st, node, dest)
	}
	return fmt.Errorf("%w: no layer owns node %q", ErrGenerationFailed, dest)
}

// generateBranch splices Layer 2 for the branch the first roll reached:
// the first outcome's real narrative, the second decision, both second
// outcomes, and pending slots for the four reachable endings.
func (e *Engine) generateBranch(ctx context.Context, s *models.Session, st *story.Story, dest string) error {
	pathKey := strings.TrimPrefix(dest, secondDecisionPfx)
	success := strings.HasSuffix(pathKey, "S")

	system, user := prompts.Branch(s.Gen, s.Gen.FirstChoice, success)
	var content branchContent
	if err := e.generateLayer(ctx, system, user, &content); err != nil {
		return err
	}

	first, ok := st.Node(firstOutcomeID(story.ChoiceID(pathKey[:1])))
	if !ok {
		return fmt.Errorf("%w: first outcome for branch %q", ErrNodeNotFound, pathKey)
	}

	st.Add(
		story.NewOutcome(first.ID, story.Text(content.Outcome),
			first.Outcome.SuccessChance, first.Outcome.OnSuccess, first.Outcome.OnFailure),
		story.NewDecision(dest, story.Text(content.Decision.Text),
			story.Choice{
				Label:          content.Decision.ChoiceX.Label,
				Description:    content.Decision.ChoiceX.Description,
				RiskMultiplier: 1.0,
				Next:           secondOutcomeID(pathKey, story.ChoiceX),
			},
			story.Choice{
				Label:          content.Decision.ChoiceY.Label,
				Description:    content.Decision.ChoiceY.Description,
				RiskMultiplier: 1.0,
				Next:           secondOutcomeID(pathKey, story.ChoiceY),
			}),
		story.NewOutcome(secondOutcomeID(pathKey, story.ChoiceX), story.Text(placeholderNarrative),
			genSecondRollChance, endingID(pathKey+"XS"), endingID(pathKey+"XF")),
		story.NewOutcome(secondOutcomeID(pathKey, story.ChoiceY), story.Text(placeholderNarrative),
			genSecondRollChance, endingID(pathKey+"YS"), endingID(pathKey+"YF")),
		story.NewPending(endingID(pathKey+"XS"), story.KindTerminal),
		story.NewPending(endingID(pathKey+"XF"), story.KindTerminal),
		story.NewPending(endingID(pathKey+"YS"), story.KindTerminal),
		story.NewPending(endingID(pathKey+"YF"), story.KindTerminal),
	)

	s.Gen.FirstOutcome = content.Outcome
	s.Gen.SecondDecision = content.Decision.Text
	return e.sessions.Update(ctx, s)
}

// generateEnding splices Layer 3: the final outcome's narrative and the
// terminal the player reached. The terminal's coins, framing and XP
// multiplier come from roll policy, decided before the prompt is built
// so the narrative matches the numbers.
func (e *Engine) generateEnding(ctx context.Context, s *models.Session, st *story.Story, node *story.Node, dest string) error {
	if node == nil || !node.IsOutcome() {
		return fmt.Errorf("%w: ending %q not reached through an outcome", ErrGenerationFailed, dest)
	}
	secondSuccess := strings.HasSuffix(dest, "S")
	coins, positive, xpMult := e.generatedTerminalPolicy(s.Gen.FirstSuccess, secondSuccess)

	system, user := prompts.Ending(s.Gen, s.Gen.SecondChoice, secondSuccess, positive)
	var content endingContent
	if err := e.generateLayer(ctx, system, user, &content); err != nil {
		return err
	}

	st.Add(
		story.NewOutcome(node.ID, story.Text(content.Outcome),
			node.Outcome.SuccessChance, node.Outcome.OnSuccess, node.Outcome.OnFailure),
		story.NewTerminal(dest, story.Text(content.Ending), story.Coins(coins), positive, xpMult),
	)
	return nil
}

// retryClassifier is implemented by generators that can tell permanent
// upstream failures from transient ones.
type retryClassifier interface {
	IsRetryable(error) bool
}

// generateLayer runs one schema-validated generation with bounded
// retry. Malformed or invalid payloads count as failed attempts;
// permanent upstream errors stop the attempts immediately.
func (e *Engine) generateLayer(ctx context.Context, system, user string, out layerContent) error {
	err := retry.Do(ctx, e.genAttempts, retry.Linear(e.genBackoff), func(ctx context.Context) error {
		raw, err := e.generator.Generate(ctx, system, user)
		if err != nil {
			if rc, ok := e.generator.(retryClassifier); ok && !rc.IsRetryable(err) {
				return retry.Stop(err)
			}
			return err
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("malformed generation payload: %w", err)
		}
		if err := out.validate(); err != nil {
			return fmt.Errorf("generation payload rejected: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	out.normalize()
	return nil
}
