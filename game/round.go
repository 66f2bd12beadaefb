package game

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koukarei/Avery-sub001/models"
)

// Round is the live state of one play attempt. It owns the chat transcript
// and the generation sequence and enforces the legal action ordering:
//
//	started -> sentence_submitted -> evaluated -> ended
//
// Hints are legal in started and sentence_submitted without changing the
// stage; a resubmission while a prior generation's pipeline is still running
// supersedes it. All methods serialize on the round's mutex, so concurrent
// actions against the same round never interleave.
type Round struct {
	mu sync.Mutex

	round       models.Round
	leaderboard models.Leaderboard
	transcript  []models.ChatMessage
	generations []*models.Generation

	// Live generation bookkeeping. Only the generation whose sequence number
	// matches liveSeq may complete the async pipeline; stale completions are
	// discarded.
	liveSeq      uint64
	nextSeq      uint64
	liveGen      *models.Generation
	pipelineDone bool
	pipelineErr  error
}

// NewRound creates a round in the started stage for the given player and
// leaderboard snapshot.
func NewRound(playerID string, leaderboard models.Leaderboard, program, model string) *Round {
	now := time.Now()
	return &Round{
		round: models.Round{
			ID:            uuid.New().String(),
			PlayerID:      playerID,
			LeaderboardID: leaderboard.ID,
			Stage:         models.StageStarted,
			Program:       program,
			Model:         model,
			StartedAt:     now,
			CreatedAt:     now,
		},
		leaderboard: leaderboard,
	}
}

// ID returns the round id.
func (r *Round) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.round.ID
}

// Stage returns the current stage.
func (r *Round) Stage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.round.Stage
}

// Leaderboard returns the leaderboard snapshot the round was started against.
func (r *Round) Leaderboard() models.Leaderboard {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaderboard
}

// Active reports whether the round has not yet ended.
func (r *Round) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.round.Stage != models.StageEnded
}

// Snapshot returns a copy of the round record with its transcript and
// generations attached.
func (r *Round) Snapshot() models.Round {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Round) snapshotLocked() models.Round {
	snap := r.round
	snap.Messages = append([]models.ChatMessage(nil), r.transcript...)
	snap.Generations = make([]models.Generation, len(r.generations))
	for i, g := range r.generations {
		snap.Generations[i] = *g
	}
	return snap
}

// Transcript returns a copy of the chat transcript.
func (r *Round) Transcript() []models.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ChatMessage(nil), r.transcript...)
}

// BeginHint validates that a hint exchange is legal in the current stage.
func (r *Round) BeginHint() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.round.Stage != models.StageStarted && r.round.Stage != models.StageSentenceSubmitted {
		return NewError(KindIllegalTransition, "hint not allowed in stage %s", r.round.Stage)
	}
	return nil
}

// AppendMessage appends one turn to the transcript and returns it. Timestamps
// are strictly increasing within the round.
func (r *Round) AppendMessage(sender, content string, isHint bool) models.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := time.Now()
	if n := len(r.transcript); n > 0 && !ts.After(r.transcript[n-1].Timestamp) {
		ts = r.transcript[n-1].Timestamp.Add(time.Microsecond)
	}

	msg := models.ChatMessage{
		ID:        uuid.New().String(),
		RoundID:   r.round.ID,
		TurnOrder: len(r.transcript) + 1,
		Sender:    sender,
		Content:   content,
		IsHint:    isHint,
		Timestamp: ts,
	}
	r.transcript = append(r.transcript, msg)
	return msg
}

// Submit creates a new live generation for the sentence and moves the round
// to sentence_submitted. If a prior generation's pipeline is still running it
// is superseded: its eventual result is discarded when it arrives. The
// returned sequence number ties the async pipeline back to this generation.
func (r *Round) Submit(sentence string, submittedAt time.Time) (models.Generation, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.round.Stage != models.StageStarted && r.round.Stage != models.StageSentenceSubmitted {
		return models.Generation{}, 0, NewError(KindIllegalTransition, "submit not allowed in stage %s", r.round.Stage)
	}

	gen := &models.Generation{
		ID:          uuid.New().String(),
		RoundID:     r.round.ID,
		Sentence:    sentence,
		SubmittedAt: submittedAt,
	}

	r.nextSeq++
	r.liveSeq = r.nextSeq
	r.liveGen = gen
	r.pipelineDone = false
	r.pipelineErr = nil
	r.generations = append(r.generations, gen)
	r.round.Stage = models.StageSentenceSubmitted
	r.round.LastGenerationID = gen.ID

	return *gen, r.liveSeq, nil
}

// CompletePipeline records the interpretation pipeline result for the given
// sequence number. Results for superseded generations or ended rounds are
// discarded; the return value reports whether the result was accepted.
func (r *Round) CompletePipeline(seq uint64, corrected, imageKey string, pipelineErr error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if seq != r.liveSeq || r.liveGen == nil || r.round.Stage == models.StageEnded {
		return false
	}

	r.liveGen.CorrectedSentence = corrected
	r.liveGen.InterpretedImage = imageKey
	r.pipelineDone = true
	r.pipelineErr = pipelineErr
	return true
}

// LiveGeneration returns a copy of the current live generation, if any.
func (r *Round) LiveGeneration() (models.Generation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.liveGen == nil {
		return models.Generation{}, false
	}
	return *r.liveGen, true
}

// BeginEvaluate validates that the live generation is ready for scoring and
// returns a copy of it. It fails not_ready while the pipeline is running and
// surfaces the pipeline's own failure if it finished unsuccessfully.
func (r *Round) BeginEvaluate() (models.Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.round.Stage != models.StageSentenceSubmitted {
		return models.Generation{}, NewError(KindIllegalTransition, "evaluate not allowed in stage %s", r.round.Stage)
	}
	if !r.pipelineDone {
		return models.Generation{}, NewError(KindNotReady, "interpretation pipeline still running")
	}
	if r.pipelineErr != nil {
		return models.Generation{}, r.pipelineErr
	}
	return *r.liveGen, nil
}

// Evaluate marks the live generation complete with its score and moves the
// round to evaluated.
func (r *Round) Evaluate(score models.Score, completedAt time.Time) (models.Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.round.Stage != models.StageSentenceSubmitted {
		return models.Generation{}, NewError(KindIllegalTransition, "evaluate not allowed in stage %s", r.round.Stage)
	}
	if !r.pipelineDone || r.liveGen == nil {
		return models.Generation{}, NewError(KindNotReady, "interpretation pipeline still running")
	}

	r.liveGen.Score = &score
	r.liveGen.Completed = true
	r.liveGen.CompletedAt = &completedAt
	r.round.Stage = models.StageEvaluated
	return *r.liveGen, nil
}

// End marks the round terminal and returns the final snapshot. Ending an
// already-ended round fails no_active_round. A pipeline still in flight is
// superseded: its result will be discarded on arrival.
func (r *Round) End(endedAt time.Time) (models.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.round.Stage == models.StageEnded {
		return models.Round{}, NewError(KindNoActiveRound, "round %s already ended", r.round.ID)
	}

	r.round.Stage = models.StageEnded
	r.round.EndedAt = &endedAt
	r.liveSeq = 0
	r.liveGen = nil
	return r.snapshotLocked(), nil
}
