package game

import (
	"errors"
	"testing"
	"time"

	"github.com/koukarei/Avery-sub001/models"
)

func testLeaderboard() models.Leaderboard {
	return models.Leaderboard{
		ID:            "lb-1",
		Title:         "A Walk in the Park",
		OriginalImage: "images/original",
		ReferenceText: "A girl in a red coat is walking a small brown dog.",
		Keywords:      "girl,red coat,dog",
		IsActive:      true,
	}
}

func TestRoundLegalSequence(t *testing.T) {
	round := NewRound("player-1", testLeaderboard(), "en_beginner", "gemini-2.5-flash")

	if round.Stage() != models.StageStarted {
		t.Fatalf("Stage = %s, expected %s", round.Stage(), models.StageStarted)
	}
	if !round.Active() {
		t.Fatal("new round should be active")
	}

	// Hints are legal before a submission.
	if err := round.BeginHint(); err != nil {
		t.Fatalf("BeginHint in started stage failed: %v", err)
	}

	gen, seq, err := round.Submit("A girl walk a dog", time.Now())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if round.Stage() != models.StageSentenceSubmitted {
		t.Fatalf("Stage = %s, expected %s", round.Stage(), models.StageSentenceSubmitted)
	}

	// Hints stay legal while the pipeline runs.
	if err := round.BeginHint(); err != nil {
		t.Fatalf("BeginHint in sentence_submitted stage failed: %v", err)
	}

	// Evaluation must wait for the pipeline.
	if _, err := round.BeginEvaluate(); KindOf(err) != KindNotReady {
		t.Fatalf("BeginEvaluate before pipeline = %v, expected kind %s", err, KindNotReady)
	}

	if !round.CompletePipeline(seq, "A girl walks a dog.", "images/interpreted", nil) {
		t.Fatal("CompletePipeline rejected the live sequence")
	}

	ready, err := round.BeginEvaluate()
	if err != nil {
		t.Fatalf("BeginEvaluate after pipeline failed: %v", err)
	}
	if ready.ID != gen.ID {
		t.Errorf("BeginEvaluate returned generation %s, expected %s", ready.ID, gen.ID)
	}
	if ready.CorrectedSentence != "A girl walks a dog." {
		t.Errorf("CorrectedSentence = %q", ready.CorrectedSentence)
	}

	score := models.Score{Total: 72.5, Rank: "A"}
	evaluated, err := round.Evaluate(score, time.Now())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !evaluated.Completed || evaluated.Score == nil || evaluated.Score.Rank != "A" {
		t.Errorf("Evaluate did not complete the generation: %+v", evaluated)
	}
	if round.Stage() != models.StageEvaluated {
		t.Fatalf("Stage = %s, expected %s", round.Stage(), models.StageEvaluated)
	}

	// Hints are illegal once evaluated.
	if err := round.BeginHint(); KindOf(err) != KindIllegalTransition {
		t.Fatalf("BeginHint in evaluated stage = %v, expected kind %s", err, KindIllegalTransition)
	}

	snap, err := round.End(time.Now())
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if snap.Stage != models.StageEnded || snap.EndedAt == nil {
		t.Errorf("End snapshot = stage %s, ended_at %v", snap.Stage, snap.EndedAt)
	}
	if round.Active() {
		t.Error("ended round still reports active")
	}

	// Hints after the end are rejected and leave the transcript untouched.
	before := len(round.Transcript())
	if err := round.BeginHint(); KindOf(err) != KindIllegalTransition {
		t.Fatalf("BeginHint in ended stage = %v, expected kind %s", err, KindIllegalTransition)
	}
	if after := len(round.Transcript()); after != before {
		t.Errorf("transcript grew from %d to %d after rejected hint", before, after)
	}

	// Ending twice is no_active_round.
	if _, err := round.End(time.Now()); KindOf(err) != KindNoActiveRound {
		t.Fatalf("second End = %v, expected kind %s", err, KindNoActiveRound)
	}
}

func TestRoundResubmitSupersedes(t *testing.T) {
	round := NewRound("player-1", testLeaderboard(), "", "")

	_, seq1, err := round.Submit("first try", time.Now())
	if err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}
	gen2, seq2, err := round.Submit("second try", time.Now())
	if err != nil {
		t.Fatalf("second Submit failed: %v", err)
	}
	if seq2 <= seq1 {
		t.Fatalf("sequence numbers not increasing: %d then %d", seq1, seq2)
	}

	// The superseded pipeline's late result is discarded on arrival.
	if round.CompletePipeline(seq1, "stale", "images/stale", nil) {
		t.Error("CompletePipeline accepted a superseded sequence")
	}
	if round.CompletePipeline(seq2, "fresh", "images/fresh", nil) != true {
		t.Error("CompletePipeline rejected the live sequence")
	}

	live, ok := round.LiveGeneration()
	if !ok {
		t.Fatal("no live generation after resubmit")
	}
	if live.ID != gen2.ID || live.CorrectedSentence != "fresh" {
		t.Errorf("live generation = %+v, expected the second submission", live)
	}

	snap := round.Snapshot()
	if len(snap.Generations) != 2 {
		t.Fatalf("Generations = %d, expected 2 (superseded attempts stay in history)", len(snap.Generations))
	}
	if snap.LastGenerationID != gen2.ID {
		t.Errorf("LastGenerationID = %s, expected %s", snap.LastGenerationID, gen2.ID)
	}
}

func TestRoundPipelineFailureSurfacesOnEvaluate(t *testing.T) {
	round := NewRound("player-1", testLeaderboard(), "", "")

	_, seq, err := round.Submit("a sentence", time.Now())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	upstream := WrapError(KindUpstreamTimeout, errors.New("deadline exceeded"))
	if !round.CompletePipeline(seq, "", "", upstream) {
		t.Fatal("CompletePipeline rejected the live sequence")
	}

	_, err = round.BeginEvaluate()
	if KindOf(err) != KindUpstreamTimeout {
		t.Fatalf("BeginEvaluate = %v, expected kind %s", err, KindUpstreamTimeout)
	}

	// The round stays playable: a fresh submission clears the failure.
	_, seq2, err := round.Submit("another sentence", time.Now())
	if err != nil {
		t.Fatalf("Submit after pipeline failure: %v", err)
	}
	if !round.CompletePipeline(seq2, "another sentence.", "images/ok", nil) {
		t.Fatal("CompletePipeline rejected retry sequence")
	}
	if _, err := round.BeginEvaluate(); err != nil {
		t.Fatalf("BeginEvaluate after retry failed: %v", err)
	}
}

func TestRoundEndDiscardsInFlightPipeline(t *testing.T) {
	round := NewRound("player-1", testLeaderboard(), "", "")

	_, seq, err := round.Submit("a sentence", time.Now())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := round.End(time.Now()); err != nil {
		t.Fatalf("End failed: %v", err)
	}

	if round.CompletePipeline(seq, "late", "images/late", nil) {
		t.Error("CompletePipeline accepted a result after the round ended")
	}
}

func TestRoundIllegalTransitions(t *testing.T) {
	round := NewRound("player-1", testLeaderboard(), "", "")

	if _, err := round.BeginEvaluate(); KindOf(err) != KindIllegalTransition {
		t.Errorf("BeginEvaluate in started stage = %v, expected kind %s", err, KindIllegalTransition)
	}
	if _, err := round.Evaluate(models.Score{}, time.Now()); KindOf(err) != KindIllegalTransition {
		t.Errorf("Evaluate in started stage = %v, expected kind %s", err, KindIllegalTransition)
	}

	if _, err := round.End(time.Now()); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if _, _, err := round.Submit("too late", time.Now()); KindOf(err) != KindIllegalTransition {
		t.Errorf("Submit in ended stage = %v, expected kind %s", err, KindIllegalTransition)
	}
}

func TestRoundTranscriptOrdering(t *testing.T) {
	round := NewRound("player-1", testLeaderboard(), "", "")

	senders := []string{models.SenderPlayer, models.SenderAssistant, models.SenderPlayer, models.SenderAssistant}
	for i, sender := range senders {
		msg := round.AppendMessage(sender, "turn", sender == models.SenderAssistant)
		if msg.TurnOrder != i+1 {
			t.Errorf("TurnOrder = %d, expected %d", msg.TurnOrder, i+1)
		}
	}

	transcript := round.Transcript()
	if len(transcript) != len(senders) {
		t.Fatalf("transcript length = %d, expected %d", len(transcript), len(senders))
	}
	for i := 1; i < len(transcript); i++ {
		if !transcript[i].Timestamp.After(transcript[i-1].Timestamp) {
			t.Errorf("timestamps not strictly increasing at turn %d: %v then %v",
				i+1, transcript[i-1].Timestamp, transcript[i].Timestamp)
		}
	}
}

func TestKindOfFallsBackToUpstreamError(t *testing.T) {
	if kind := KindOf(errors.New("plain failure")); kind != KindUpstreamError {
		t.Errorf("KindOf(plain error) = %s, expected %s", kind, KindUpstreamError)
	}
	if kind := KindOf(NewError(KindNotFound, "missing")); kind != KindNotFound {
		t.Errorf("KindOf(game error) = %s, expected %s", kind, KindNotFound)
	}
	if !IsFatal(NewError(KindProtocolViolation, "bad frame")) {
		t.Error("protocol_violation should be fatal")
	}
	if IsFatal(NewError(KindNotReady, "wait")) {
		t.Error("not_ready should not be fatal")
	}
}
