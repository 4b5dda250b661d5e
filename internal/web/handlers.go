package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"storyforge/server/internal/engine"
	"storyforge/server/internal/models"
	"storyforge/server/internal/storage"
	"storyforge/server/internal/story"
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// RewardLedger reads back granted rewards for the account endpoints.
type RewardLedger interface {
	Balance(ctx context.Context, accountID string) (coins, xp int, err error)
	History(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error)
}

type Handlers struct {
	engine   *engine.Engine
	stories  *story.Registry
	sessions *storage.SessionStore
	hub      *EventHub
	ledger   RewardLedger
	log      *zap.Logger
}

func NewHandlers(eng *engine.Engine, stories *story.Registry, sessions *storage.SessionStore, hub *EventHub, ledger RewardLedger, log *zap.Logger) *Handlers {
	return &Handlers{
		engine:   eng,
		stories:  stories,
		sessions: sessions,
		hub:      hub,
		ledger:   ledger,
		log:      log,
	}
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "storyforge",
	})
}

// StartSessionRequest begins a playthrough. An empty story_id requests
// an incrementally generated story.
type StartSessionRequest struct {
	PlayerID    string `json:"player_id"`
	AccountID   string `json:"account_id"`
	StoryID     string `json:"story_id,omitempty"`
	Theme       string `json:"theme,omitempty"`
	PlayerLevel int    `json:"player_level"`
	MessageID   string `json:"message_id,omitempty"`
	ChannelID   string `json:"channel_id,omitempty"`
	GuildID     string `json:"guild_id,omitempty"`
}

type ActionRequest struct {
	Action string `json:"action"`
}

// SessionView is the wire shape of one engine step.
type SessionView struct {
	SessionID string             `json:"session_id"`
	StoryID   string             `json:"story_id"`
	Coins     int                `json:"coins"`
	Path      []string           `json:"path"`
	Text      string             `json:"text,omitempty"`
	Roll      *models.RollResult `json:"roll,omitempty"`
	Node      *NodeView          `json:"node,omitempty"`
	Done      bool               `json:"done,omitempty"`
	Cancelled bool               `json:"cancelled,omitempty"`
	Final     *FinalView         `json:"final,omitempty"`
}

type NodeView struct {
	ID      string       `json:"id"`
	Kind    string       `json:"kind"`
	Text    string       `json:"text"`
	Choices []ChoiceView `json:"choices,omitempty"`
}

type ChoiceView struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

type FinalView struct {
	Coins      int      `json:"coins"`
	XP         int      `json:"xp"`
	Positive   bool     `json:"positive"`
	TerminalID string   `json:"terminal_id,omitempty"`
	Path       []string `json:"path"`
	CashedOut  bool     `json:"cashed_out,omitempty"`
}

func viewOf(res *engine.Result) *SessionView {
	v := &SessionView{
		SessionID: res.Session.ID,
		StoryID:   res.Session.StoryID,
		Coins:     res.Session.Coins,
		Path:      res.Session.Path,
		Text:      res.Text,
		Roll:      res.Roll,
		Done:      res.Done,
		Cancelled: res.Cancelled,
	}
	if res.Node != nil {
		v.Node = &NodeView{
			ID:   res.Node.ID,
			Kind: string(res.Node.Kind),
			Text: res.NodeText,
		}
		if res.Node.IsDecision() {
			d := res.Node.Decision
			v.Node.Choices = []ChoiceView{
				{ID: string(story.ChoiceX), Label: d.ChoiceX.Label, Description: d.ChoiceX.Description},
				{ID: string(story.ChoiceY), Label: d.ChoiceY.Label, Description: d.ChoiceY.Description},
			}
		}
	}
	if res.Final != nil {
		v.Final = &FinalView{
			Coins:      res.Final.Coins,
			XP:         res.Final.XP,
			Positive:   res.Final.Positive,
			TerminalID: res.Final.TerminalID,
			Path:       res.Final.Path,
			CashedOut:  res.Final.CashedOut,
		}
	}
	return v
}

// StartSession creates a session and plays through the intro.
func (h *Handlers) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlayerID == "" || req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "player_id and account_id are required")
		return
	}

	res, err := h.engine.Start(r.Context(), engine.StartParams{
		PlayerID:    req.PlayerID,
		AccountID:   req.AccountID,
		StoryID:     req.StoryID,
		Theme:       req.Theme,
		PlayerLevel: req.PlayerLevel,
		MessageID:   req.MessageID,
		ChannelID:   req.ChannelID,
		GuildID:     req.GuildID,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(res))
}

// SessionAction applies one action to a session.
func (h *Handlers) SessionAction(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.engine.Advance(r.Context(), sessionID, engine.Action(req.Action))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(res))
}

// GetSession re-renders a session without advancing it.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	res, err := h.engine.Render(r.Context(), sessionID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(res))
}

// CancelSession discards a session without granting anything.
func (h *Handlers) CancelSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	res, err := h.engine.Advance(r.Context(), sessionID, engine.ActionCancel)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(res))
}

// StorySummary describes one registered story.
type StorySummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Emoji     string `json:"emoji,omitempty"`
	Nodes     int    `json:"nodes"`
	Generated bool   `json:"generated,omitempty"`
}

// ListStories lists every registered story.
func (h *Handlers) ListStories(w http.ResponseWriter, r *http.Request) {
	ids := h.stories.IDs()
	out := make([]StorySummary, 0, len(ids))
	for _, id := range ids {
		st, ok := h.stories.Get(id)
		if !ok {
			continue
		}
		out = append(out, StorySummary{
			ID:        st.ID,
			Title:     st.Title,
			Emoji:     st.Emoji,
			Nodes:     st.Len(),
			Generated: st.Generated,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stories": out})
}

// ValidateStory runs the static validator against one story and
// returns every violation found.
func (h *Handlers) ValidateStory(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "story_id")

	st, ok := h.stories.Get(storyID)
	if !ok {
		writeError(w, http.StatusNotFound, "story not found")
		return
	}

	problems := story.Validate(st)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"story_id": st.ID,
		"valid":    len(problems) == 0,
		"problems": problems,
	})
}

// AccountBalance sums an account's reward ledger.
func (h *Handlers) AccountBalance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	coins, xp, err := h.ledger.Balance(r.Context(), accountID)
	if err != nil {
		h.log.Error("failed to sum ledger", zap.String("account_id", accountID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"coins":      coins,
		"xp":         xp,
	})
}

// AccountLedger returns an account's most recent grants, newest first.
func (h *Handlers) AccountLedger(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.ledger.History(r.Context(), accountID, limit)
	if err != nil {
		h.log.Error("failed to load ledger history", zap.String("account_id", accountID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read ledger")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"entries":    entries,
	})
}

// GetStats reports engine counters and feed connectivity.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	active, err := h.sessions.ListActive(r.Context())
	if err != nil {
		h.log.Error("failed to list active sessions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"engine":          h.engine.Stats(),
		"active_sessions": len(active),
		"event_clients":   h.hub.ClientCount(),
	})
}

// CleanupSessions deletes sessions idle past their TTL.
func (h *Handlers) CleanupSessions(w http.ResponseWriter, r *http.Request) {
	removed, err := h.sessions.CleanupExpired(r.Context())
	if err != nil {
		h.log.Error("session cleanup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"removed": removed})
}

// EventStream upgrades to a WebSocket and attaches the client to the
// session event feed.
func (h *Handlers) EventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		ID:   generateClientID(),
		Conn: conn,
		Send: make(chan []byte, 256),
		Hub:  h.hub,
	}
	h.hub.register <- client

	welcome, _ := json.Marshal(map[string]interface{}{
		"type": "connected",
		"id":   client.ID,
		"time": time.Now().Unix(),
	})
	select {
	case client.Send <- welcome:
	default:
	}

	go client.readPump()
}

func (h *Handlers) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound), errors.Is(err, engine.ErrStoryNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrStillProcessing):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrInvalidAction):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrGenerationFailed):
		h.log.Error("story generation failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "story generation failed, try again")
	default:
		h.log.Error("session action failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// generateClientID generates a unique client ID
func generateClientID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))[:16]
	}
	return hex.EncodeToString(b)
}
