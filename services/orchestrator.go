package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koukarei/Avery-sub001/game"
	"github.com/koukarei/Avery-sub001/models"
	"github.com/koukarei/Avery-sub001/scoring"
)

// Persistence is the durable-storage collaborator of the orchestrator. All
// writes are fired asynchronously at stage boundaries and must be idempotent
// on retry; the implementation serializes writes per round.
type Persistence interface {
	GetLeaderboardByID(ctx context.Context, id string) (*models.Leaderboard, error)
	SaveRoundSnapshot(ctx context.Context, round *models.Round) error
	SaveGeneration(ctx context.Context, gen *models.Generation) error
	SaveChatMessage(ctx context.Context, msg *models.ChatMessage) error
}

// Play protocol actions.
const (
	ActionStart    = "start"
	ActionHint     = "hint"
	ActionSubmit   = "submit"
	ActionEvaluate = "evaluate"
	ActionEnd      = "end"
)

// ActionRequest is one inbound frame on the play connection.
type ActionRequest struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type StartPayload struct {
	LeaderboardID string `json:"leaderboard_id"`
	Program       string `json:"program,omitempty"`
	Model         string `json:"model,omitempty"`
}

type HintPayload struct {
	Content string `json:"content"`
}

type SubmitPayload struct {
	Sentence      string     `json:"sentence"`
	GeneratedTime *time.Time `json:"generated_time,omitempty"`
}

// ErrorFrame carries a stable error kind to the client.
type ErrorFrame struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Envelope is the single outbound frame answering one accepted action. Every
// successful action carries enough state that the client never needs a
// follow-up fetch to render the next UI state.
type Envelope struct {
	Leaderboard *models.Leaderboard  `json:"leaderboard,omitempty"`
	Round       *models.Round        `json:"round,omitempty"`
	Chat        []models.ChatMessage `json:"chat,omitempty"`
	Generation  *models.Generation   `json:"generation,omitempty"`
	Error       *ErrorFrame          `json:"error,omitempty"`
}

// Session binds one authenticated connection to at most one active round.
// All of a session's actions are dispatched sequentially by its connection's
// dispatch loop; the mutex only guards against the idle sweeper.
type Session struct {
	ID       string
	PlayerID string

	mu    sync.Mutex
	round *game.Round

	// pipelineCtx bounds the async interpretation pipeline of the current
	// round; cancelled on end so superseded results stop early.
	pipelineCtx    context.Context
	pipelineCancel context.CancelFunc
}

func (s *Session) activeRound() *game.Round {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.round != nil && s.round.Active() {
		return s.round
	}
	return nil
}

// Orchestrator routes validated play actions to the round state machine,
// invokes the AI gateway and the scoring engine, and produces exactly one
// response envelope per accepted action.
type Orchestrator struct {
	gateway Gateway
	store   Persistence
	weights scoring.Weights
}

func NewOrchestrator(gateway Gateway, store Persistence, weights scoring.Weights) *Orchestrator {
	return &Orchestrator{
		gateway: gateway,
		store:   store,
		weights: weights,
	}
}

// NewSession creates the ephemeral binding for one connection.
func (o *Orchestrator) NewSession(playerID string) *Session {
	return &Session{
		ID:       uuid.New().String(),
		PlayerID: playerID,
	}
}

// CloseSession ends the session's round, if any, when the connection goes
// away.
func (o *Orchestrator) CloseSession(s *Session) {
	if round := s.activeRound(); round != nil {
		if snap, err := round.End(time.Now()); err == nil {
			o.persistSnapshot(snap)
		}
	}
	s.mu.Lock()
	if s.pipelineCancel != nil {
		s.pipelineCancel()
	}
	s.mu.Unlock()
}

// HandleAction processes one inbound frame and returns its response
// envelope. Recoverable failures come back as error envelopes; a
// protocol_violation envelope tells the caller to close the connection after
// writing it.
func (o *Orchestrator) HandleAction(ctx context.Context, s *Session, raw []byte) Envelope {
	var req ActionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		slog.Warn("Malformed action frame", "session_id", s.ID, "error", err)
		return errorEnvelope(game.NewError(game.KindProtocolViolation, "malformed action frame"))
	}

	var env Envelope
	switch req.Action {
	case ActionStart:
		env = o.handleStart(ctx, s, req.Payload)
	case ActionHint:
		env = o.handleHint(ctx, s, req.Payload)
	case ActionSubmit:
		env = o.handleSubmit(ctx, s, req.Payload)
	case ActionEvaluate:
		env = o.handleEvaluate(ctx, s)
	case ActionEnd:
		env = o.handleEnd(s)
	default:
		slog.Warn("Unknown action", "session_id", s.ID, "action", req.Action)
		return errorEnvelope(game.NewError(game.KindProtocolViolation, "unknown action %q", req.Action))
	}

	if env.Error != nil {
		slog.Info("Action failed", "session_id", s.ID, "action", req.Action, "kind", env.Error.Kind)
	} else {
		slog.Info("Action handled", "session_id", s.ID, "action", req.Action)
	}
	return env
}

func (o *Orchestrator) handleStart(ctx context.Context, s *Session, payload json.RawMessage) Envelope {
	var req StartPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.LeaderboardID == "" {
		return errorEnvelope(game.NewError(game.KindProtocolViolation, "invalid start payload"))
	}

	if round := s.activeRound(); round != nil {
		return errorEnvelope(game.NewError(game.KindAlreadyActive, "round %s is still active", round.ID()))
	}

	leaderboard, err := o.store.GetLeaderboardByID(ctx, req.LeaderboardID)
	if err != nil {
		return errorEnvelope(game.WrapError(game.KindUpstreamError, err))
	}
	if leaderboard == nil {
		return errorEnvelope(game.NewError(game.KindNotFound, "leaderboard %s not found", req.LeaderboardID))
	}

	round := game.NewRound(s.PlayerID, *leaderboard, req.Program, req.Model)
	pipelineCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.pipelineCancel != nil {
		s.pipelineCancel()
	}
	s.round = round
	s.pipelineCtx = pipelineCtx
	s.pipelineCancel = cancel
	s.mu.Unlock()

	snap := round.Snapshot()
	o.persistSnapshot(snap)

	slog.Info("Round started", "session_id", s.ID, "round_id", snap.ID, "leaderboard_id", leaderboard.ID)
	return Envelope{Leaderboard: leaderboard, Round: &snap}
}

func (o *Orchestrator) handleHint(ctx context.Context, s *Session, payload json.RawMessage) Envelope {
	var req HintPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.Content == "" {
		return errorEnvelope(game.NewError(game.KindProtocolViolation, "invalid hint payload"))
	}

	round := s.activeRound()
	if round == nil {
		return errorEnvelope(game.NewError(game.KindNoActiveRound, "no active round"))
	}
	if err := round.BeginHint(); err != nil {
		return errorEnvelope(err)
	}

	// History before this question; the question itself travels separately.
	transcript := round.Transcript()
	playerMsg := round.AppendMessage(models.SenderPlayer, req.Content, false)
	o.persistMessage(playerMsg)

	reply, err := o.gateway.GenerateHint(ctx, transcript, round.Leaderboard().OriginalImage, req.Content)
	if err != nil {
		return errorEnvelope(err)
	}

	assistantMsg := round.AppendMessage(models.SenderAssistant, reply, true)
	o.persistMessage(assistantMsg)

	snap := round.Snapshot()
	return Envelope{Round: &snap, Chat: snap.Messages}
}

func (o *Orchestrator) handleSubmit(ctx context.Context, s *Session, payload json.RawMessage) Envelope {
	var req SubmitPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.Sentence == "" {
		return errorEnvelope(game.NewError(game.KindProtocolViolation, "invalid submit payload"))
	}

	round := s.activeRound()
	if round == nil {
		return errorEnvelope(game.NewError(game.KindNoActiveRound, "no active round"))
	}

	submittedAt := time.Now()
	if req.GeneratedTime != nil {
		submittedAt = *req.GeneratedTime
	}

	gen, seq, err := round.Submit(req.Sentence, submittedAt)
	if err != nil {
		return errorEnvelope(err)
	}

	s.mu.Lock()
	pipelineCtx := s.pipelineCtx
	s.mu.Unlock()
	if pipelineCtx == nil {
		pipelineCtx = context.Background()
	}

	go o.runInterpretationPipeline(pipelineCtx, s, round, seq, gen.Sentence)

	snap := round.Snapshot()
	slog.Info("Sentence submitted", "session_id", s.ID, "round_id", snap.ID, "generation_id", gen.ID, "seq", seq)
	return Envelope{Round: &snap, Chat: snap.Messages, Generation: &gen}
}

// runInterpretationPipeline corrects the sentence and renders an image from
// it, then hands the result back to the round. A result arriving after the
// generation was superseded or the round ended is discarded.
func (o *Orchestrator) runInterpretationPipeline(ctx context.Context, s *Session, round *game.Round, seq uint64, sentence string) {
	corrected, err := o.gateway.CorrectSentence(ctx, sentence)
	if err != nil {
		if round.CompletePipeline(seq, "", "", err) {
			slog.Warn("Interpretation pipeline failed", "session_id", s.ID, "seq", seq, "error", err)
		}
		return
	}

	imageKey, err := o.gateway.GenerateImage(ctx, corrected)
	if err != nil {
		if round.CompletePipeline(seq, corrected, "", err) {
			slog.Warn("Interpretation pipeline failed", "session_id", s.ID, "seq", seq, "error", err)
		}
		return
	}

	if !round.CompletePipeline(seq, corrected, imageKey, nil) {
		slog.Info("Discarded superseded pipeline result", "session_id", s.ID, "seq", seq)
		return
	}

	if gen, ok := round.LiveGeneration(); ok {
		o.persistGeneration(gen)
	}
	slog.Info("Interpretation pipeline completed", "session_id", s.ID, "seq", seq, "image_key", imageKey)
}

func (o *Orchestrator) handleEvaluate(ctx context.Context, s *Session) Envelope {
	round := s.activeRound()
	if round == nil {
		return errorEnvelope(game.NewError(game.KindNoActiveRound, "no active round"))
	}

	gen, err := round.BeginEvaluate()
	if err != nil {
		return errorEnvelope(err)
	}

	leaderboard := round.Leaderboard()
	similarity, err := o.gateway.ComputeSimilarity(ctx,
		ImageText{ImageKey: leaderboard.OriginalImage, Text: leaderboard.ReferenceText},
		ImageText{ImageKey: gen.InterpretedImage, Text: gen.CorrectedSentence},
	)
	if err != nil {
		return errorEnvelope(err)
	}

	result := scoring.Compute(scoring.Inputs{
		Grammar:    scoring.GrammarScore(gen.Sentence, gen.CorrectedSentence),
		Vocabulary: scoring.VocabularyScore(gen.CorrectedSentence),
		Keyword:    similarity.Semantic,
		Structural: similarity.Structural,
	}, o.weights)

	score := models.Score{
		Grammar:       result.Grammar,
		Vocabulary:    result.Vocabulary,
		Keyword:       result.Keyword,
		Structural:    result.Structural,
		Effectiveness: result.Effectiveness,
		Total:         result.Total,
		Rank:          result.Rank,
	}

	evaluated, err := round.Evaluate(score, time.Now())
	if err != nil {
		return errorEnvelope(err)
	}

	summary := evaluationSummary(result)
	summaryMsg := round.AppendMessage(models.SenderAssistant, summary, false)
	o.persistMessage(summaryMsg)

	snap := round.Snapshot()
	o.persistSnapshot(snap)

	slog.Info("Generation evaluated", "session_id", s.ID, "round_id", snap.ID,
		"generation_id", evaluated.ID, "total", score.Total, "rank", score.Rank)
	return Envelope{Round: &snap, Chat: snap.Messages, Generation: &evaluated}
}

func (o *Orchestrator) handleEnd(s *Session) Envelope {
	s.mu.Lock()
	round := s.round
	cancel := s.pipelineCancel
	s.mu.Unlock()

	if round == nil {
		return errorEnvelope(game.NewError(game.KindNoActiveRound, "no active round"))
	}

	snap, err := round.End(time.Now())
	if err != nil {
		return errorEnvelope(err)
	}
	if cancel != nil {
		cancel()
	}

	o.persistSnapshot(snap)
	slog.Info("Round ended", "session_id", s.ID, "round_id", snap.ID)
	return Envelope{Round: &snap}
}

// Durable writes never block the live response; failures are logged and the
// persistence layer retries on the next stage boundary since snapshots are
// idempotent.
func (o *Orchestrator) persistSnapshot(snap models.Round) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.store.SaveRoundSnapshot(ctx, &snap); err != nil {
			slog.Error("Failed to persist round snapshot", "error", err, "round_id", snap.ID)
		}
	}()
}

func (o *Orchestrator) persistGeneration(gen models.Generation) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.store.SaveGeneration(ctx, &gen); err != nil {
			slog.Error("Failed to persist generation", "error", err, "generation_id", gen.ID)
		}
	}()
}

func (o *Orchestrator) persistMessage(msg models.ChatMessage) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.store.SaveChatMessage(ctx, &msg); err != nil {
			slog.Error("Failed to persist chat message", "error", err, "message_id", msg.ID)
		}
	}()
}

func errorEnvelope(err error) Envelope {
	return Envelope{Error: &ErrorFrame{
		Kind:    game.KindOf(err),
		Message: err.Error(),
	}}
}

func evaluationSummary(result scoring.Result) string {
	switch {
	case result.Total >= 80:
		return "Excellent work! Your sentence earned rank " + result.Rank + ". The picture I drew from it is very close to the original."
	case result.Total >= 60:
		return "Nice sentence! You earned rank " + result.Rank + ". Compare the two pictures to see which details you could add next time."
	case result.Total >= 40:
		return "You earned rank " + result.Rank + ". Try describing more of what you see, and ask me for hints if you get stuck."
	default:
		return "You earned rank " + result.Rank + ". Don't give up! Look at the picture again and try a new sentence."
	}
}
