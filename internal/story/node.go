package story

// Kind discriminates the four node variants.
type Kind string

const (
	KindIntro    Kind = "intro"
	KindDecision Kind = "decision"
	KindOutcome  Kind = "outcome"
	KindTerminal Kind = "terminal"
)

// Status marks whether a node's content exists yet. Incrementally
// generated stories reserve node ids ahead of the layer that fills them
// in; a pending node must never be the current node when rendering.
type Status string

const (
	StatusGenerated Status = "generated"
	StatusPending   Status = "pending"
)

// ChoiceID identifies one of the two options on a decision node.
type ChoiceID string

const (
	ChoiceX ChoiceID = "X"
	ChoiceY ChoiceID = "Y"
)

// Node is one point in the narrative graph. Exactly one of the variant
// payloads is non-nil, matching Kind.
type Node struct {
	ID     string
	Kind   Kind
	Status Status

	Intro    *Intro
	Decision *Decision
	Outcome  *Outcome
	Terminal *Terminal
}

// Intro is a narrative-only node that auto-advances to its successor.
type Intro struct {
	Text  TextValue
	Coins CoinValue
	Next  string
}

// Choice is one of the two labeled options on a decision node.
type Choice struct {
	Label          string
	Description    string
	BaseReward     int
	RiskMultiplier float64
	Next           string
}

// Decision is a node waiting for the player to pick one of two choices.
type Decision struct {
	Text    TextValue
	ChoiceX Choice
	ChoiceY Choice
}

// Choice returns the option for the given id.
func (d *Decision) Choice(id ChoiceID) (Choice, bool) {
	switch id {
	case ChoiceX:
		return d.ChoiceX, true
	case ChoiceY:
		return d.ChoiceY, true
	}
	return Choice{}, false
}

// Other returns the option the player did not pick.
func (d *Decision) Other(id ChoiceID) Choice {
	if id == ChoiceX {
		return d.ChoiceY
	}
	return d.ChoiceX
}

// Outcome is a chance gate between a decision and its consequence. It is
// not a player action; the engine resolves it with a weighted roll.
type Outcome struct {
	Text          TextValue
	Coins         CoinValue
	SuccessChance float64
	OnSuccess     string
	OnFailure     string
}

// Terminal is an ending node. Finalizing it grants rewards and ends the
// session.
type Terminal struct {
	Text         TextValue
	Coins        CoinValue
	Positive     bool
	XPMultiplier float64
}

func (n *Node) IsIntro() bool    { return n.Kind == KindIntro }
func (n *Node) IsDecision() bool { return n.Kind == KindDecision }
func (n *Node) IsOutcome() bool  { return n.Kind == KindOutcome }
func (n *Node) IsTerminal() bool { return n.Kind == KindTerminal }

// IsPending reports whether the node is a reserved slot awaiting a
// generation layer.
func (n *Node) IsPending() bool { return n.Status == StatusPending }

// Text returns the node's narrative value regardless of kind.
func (n *Node) Text() TextValue {
	switch n.Kind {
	case KindIntro:
		return n.Intro.Text
	case KindDecision:
		return n.Decision.Text
	case KindOutcome:
		return n.Outcome.Text
	case KindTerminal:
		return n.Terminal.Text
	}
	return TextValue{}
}

// CoinDelta returns the node's declared coin delta, if any.
func (n *Node) CoinDelta() CoinValue {
	switch n.Kind {
	case KindIntro:
		return n.Intro.Coins
	case KindOutcome:
		return n.Outcome.Coins
	case KindTerminal:
		return n.Terminal.Coins
	}
	return CoinValue{}
}

// Successors returns every node id this node can advance to.
func (n *Node) Successors() []string {
	switch n.Kind {
	case KindIntro:
		return []string{n.Intro.Next}
	case KindDecision:
		return []string{n.Decision.ChoiceX.Next, n.Decision.ChoiceY.Next}
	case KindOutcome:
		return []string{n.Outcome.OnSuccess, n.Outcome.OnFailure}
	}
	return nil
}

// NewIntro builds a generated intro node.
func NewIntro(id string, text TextValue, next string) *Node {
	return &Node{ID: id, Kind: KindIntro, Status: StatusGenerated, Intro: &Intro{Text: text, Next: next}}
}

// NewDecision builds a generated decision node.
func NewDecision(id string, text TextValue, x, y Choice) *Node {
	return &Node{ID: id, Kind: KindDecision, Status: StatusGenerated, Decision: &Decision{Text: text, ChoiceX: x, ChoiceY: y}}
}

// NewOutcome builds a generated outcome node.
func NewOutcome(id string, text TextValue, chance float64, onSuccess, onFailure string) *Node {
	return &Node{ID: id, Kind: KindOutcome, Status: StatusGenerated, Outcome: &Outcome{
		Text: text, SuccessChance: chance, OnSuccess: onSuccess, OnFailure: onFailure,
	}}
}

// NewTerminal builds a generated terminal node.
func NewTerminal(id string, text TextValue, coins CoinValue, positive bool, xpMult float64) *Node {
	return &Node{ID: id, Kind: KindTerminal, Status: StatusGenerated, Terminal: &Terminal{
		Text: text, Coins: coins, Positive: positive, XPMultiplier: xpMult,
	}}
}

// NewPending reserves a node id for a layer that has not been generated
// yet.
func NewPending(id string, kind Kind) *Node {
	return &Node{ID: id, Kind: kind, Status: StatusPending}
}
