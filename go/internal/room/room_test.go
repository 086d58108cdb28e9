package room

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/scribble/go/internal/protocol"
)

func newTestRoom(cfg Config) (*Room, *clockwork.FakeClock) {
	fc := clockwork.NewFakeClock()
	return newRoom("ABC123", cfg, fc, nil), fc
}

func mustJoin(t *testing.T, r *Room, id, nickname string) (*protocol.RoomStatePayload, <-chan *protocol.Delta) {
	t.Helper()
	snapshot, ch, err := r.Join(id, nickname, "🦊")
	if err != nil {
		t.Fatalf("Join(%s) failed: %v", id, err)
	}
	return snapshot, ch
}

func recvDelta(t *testing.T, ch <-chan *protocol.Delta) *protocol.Delta {
	t.Helper()
	select {
	case delta, ok := <-ch:
		if !ok {
			t.Fatal("delta channel closed unexpectedly")
		}
		return delta
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delta")
		return nil
	}
}

func expectNoDelta(t *testing.T, ch <-chan *protocol.Delta) {
	t.Helper()
	select {
	case delta, ok := <-ch:
		if ok {
			t.Fatalf("expected no delta, got %s", delta.Type)
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func decode[T any](t *testing.T, delta *protocol.Delta) T {
	t.Helper()
	var payload T
	if err := json.Unmarshal(delta.Data, &payload); err != nil {
		t.Fatalf("failed to decode %s payload: %v", delta.Type, err)
	}
	return payload
}

func TestJoinSnapshotAndPresenceDelta(t *testing.T) {
	r, _ := newTestRoom(DefaultConfig())

	snapA, chA := mustJoin(t, r, "a", "Alice")
	if len(snapA.Strokes) != 0 || len(snapA.Participants) != 0 {
		t.Errorf("Expected empty snapshot for first joiner, got %+v", snapA)
	}
	if snapA.Self.ID != "a" || snapA.Self.Nickname != "Alice" {
		t.Errorf("Self snapshot mismatch: %+v", snapA.Self)
	}

	snapB, chB := mustJoin(t, r, "b", "Bob")
	if len(snapB.Participants) != 1 || snapB.Participants[0].ID != "a" {
		t.Fatalf("Expected B's snapshot to list A, got %+v", snapB.Participants)
	}

	// A hears about B; B gets no echo of its own join
	delta := recvDelta(t, chA)
	if delta.Type != protocol.DeltaTypeParticipantJoined {
		t.Fatalf("Expected participant-joined, got %s", delta.Type)
	}
	payload := decode[protocol.PresencePayload](t, delta)
	if payload.Participant.ID != "b" {
		t.Errorf("Expected joined participant b, got %s", payload.Participant.ID)
	}
	expectNoDelta(t, chB)
}

func TestStrokeDeltasPreserveAppendOrder(t *testing.T) {
	r, _ := newTestRoom(DefaultConfig())

	_, chA := mustJoin(t, r, "a", "Alice")
	mustJoin(t, r, "b", "Bob")
	recvDelta(t, chA) // b joined

	strokeID, err := r.StartStroke("b", protocol.StrokeMeta{Color: "#00ff00", Width: 2, Effect: protocol.EffectRainbow})
	if err != nil {
		t.Fatalf("StartStroke failed: %v", err)
	}

	points := []protocol.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}}
	for _, p := range points {
		if err := r.AppendPoint("b", strokeID, p); err != nil {
			t.Fatalf("AppendPoint failed: %v", err)
		}
	}
	if err := r.CommitStroke("b", strokeID); err != nil {
		t.Fatalf("CommitStroke failed: %v", err)
	}

	start := recvDelta(t, chA)
	if start.Type != protocol.DeltaTypeStrokeStart {
		t.Fatalf("Expected stroke-start, got %s", start.Type)
	}
	startPayload := decode[protocol.StrokeStartPayload](t, start)
	if startPayload.StrokeID != strokeID || startPayload.Effect != protocol.EffectRainbow {
		t.Errorf("stroke-start payload mismatch: %+v", startPayload)
	}

	for i, want := range points {
		appendDelta := recvDelta(t, chA)
		if appendDelta.Type != protocol.DeltaTypeStrokeAppend {
			t.Fatalf("Expected stroke-append, got %s", appendDelta.Type)
		}
		payload := decode[protocol.StrokeAppendPayload](t, appendDelta)
		if payload.Point != want {
			t.Errorf("Append %d out of order: expected %v, got %v", i, want, payload.Point)
		}
	}

	commit := recvDelta(t, chA)
	if commit.Type != protocol.DeltaTypeStrokeCommit {
		t.Fatalf("Expected stroke-commit, got %s", commit.Type)
	}
}

func TestForeignAppendRejectedWithoutBroadcast(t *testing.T) {
	r, _ := newTestRoom(DefaultConfig())

	mustJoin(t, r, "a", "Alice")
	_, chB := mustJoin(t, r, "b", "Bob")

	strokeID, _ := r.StartStroke("b", protocol.StrokeMeta{})
	if err := r.AppendPoint("b", strokeID, protocol.Point{X: 1, Y: 1}); err != nil {
		t.Fatalf("AppendPoint failed: %v", err)
	}

	if err := r.AppendPoint("a", strokeID, protocol.Point{X: 9, Y: 9}); err != ErrNotOwner {
		t.Fatalf("Expected ErrNotOwner, got %v", err)
	}

	// B's stroke is unaffected and B saw nothing from the rejection
	expectNoDelta(t, chB)
	if err := r.AppendPoint("b", strokeID, protocol.Point{X: 2, Y: 2}); err != nil {
		t.Errorf("Owner append after rejection failed: %v", err)
	}
}

func TestUndoRemovesLastCommitRoomWide(t *testing.T) {
	r, _ := newTestRoom(DefaultConfig())

	mustJoin(t, r, "a", "Alice")
	_, chB := mustJoin(t, r, "b", "Bob")

	s1, _ := r.StartStroke("a", protocol.StrokeMeta{})
	r.AppendPoint("a", s1, protocol.Point{X: 0, Y: 0})
	r.AppendPoint("a", s1, protocol.Point{X: 1, Y: 1})
	r.CommitStroke("a", s1)

	s2, _ := r.StartStroke("b", protocol.StrokeMeta{})
	r.AppendPoint("b", s2, protocol.Point{X: 5, Y: 5})
	r.AppendPoint("b", s2, protocol.Point{X: 6, Y: 6})
	r.CommitStroke("b", s2)

	// A undoes: B's s2 goes, regardless of who called undo
	if err := r.Undo("a"); err != nil {
		t.Fatalf("Undo failed: %v", err)
	}

	var undo *protocol.Delta
	for {
		undo = recvDelta(t, chB)
		if undo.Type == protocol.DeltaTypeUndo {
			break
		}
	}
	payload := decode[protocol.UndoPayload](t, undo)
	if payload.StrokeID != s2 {
		t.Errorf("Expected undo of %s, got %s", s2, payload.StrokeID)
	}

	snap, _ := mustJoin(t, r, "c", "Cara")
	if len(snap.Strokes) != 1 || snap.Strokes[0].ID != s1 {
		t.Errorf("Expected committed sequence [%s], got %+v", s1, snap.Strokes)
	}

	// Undo on the now one-stroke document, then on empty: second is a no-op
	if err := r.Undo("b"); err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	if err := r.Undo("b"); err != nil {
		t.Fatalf("Undo on empty document should be a no-op, got %v", err)
	}
}

func TestClearResetsDocument(t *testing.T) {
	r, _ := newTestRoom(DefaultConfig())

	mustJoin(t, r, "a", "Alice")
	_, chB := mustJoin(t, r, "b", "Bob")

	s1, _ := r.StartStroke("a", protocol.StrokeMeta{})
	r.AppendPoint("a", s1, protocol.Point{X: 0, Y: 0})
	r.AppendPoint("a", s1, protocol.Point{X: 1, Y: 1})
	r.CommitStroke("a", s1)
	r.StartStroke("b", protocol.StrokeMeta{})

	if err := r.Clear("a"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	var clear *protocol.Delta
	for {
		clear = recvDelta(t, chB)
		if clear.Type == protocol.DeltaTypeClear {
			break
		}
	}

	snap, _ := mustJoin(t, r, "c", "Cara")
	if len(snap.Strokes) != 0 {
		t.Errorf("Expected empty committed sequence after clear, got %d strokes", len(snap.Strokes))
	}
	if _, open := r.doc.OpenStrokeID("b"); open {
		t.Error("Expected clear to discard in-progress strokes")
	}
}

func TestShortStrokeCommitBroadcastsCancel(t *testing.T) {
	r, _ := newTestRoom(DefaultConfig())

	_, chA := mustJoin(t, r, "a", "Alice")
	mustJoin(t, r, "b", "Bob")
	recvDelta(t, chA) // b joined

	strokeID, _ := r.StartStroke("b", protocol.StrokeMeta{})
	r.AppendPoint("b", strokeID, protocol.Point{X: 1, Y: 1})
	if err := r.CommitStroke("b", strokeID); err != nil {
		t.Fatalf("CommitStroke failed: %v", err)
	}

	recvDelta(t, chA) // stroke-start
	recvDelta(t, chA) // stroke-append
	cancel := recvDelta(t, chA)
	if cancel.Type != protocol.DeltaTypeStrokeCancel {
		t.Fatalf("Expected stroke-cancel for discarded stroke, got %s", cancel.Type)
	}
}

func TestEmojiReactionIsEphemeral(t *testing.T) {
	r, _ := newTestRoom(DefaultConfig())

	_, chA := mustJoin(t, r, "a", "Alice")
	mustJoin(t, r, "b", "Bob")
	recvDelta(t, chA) // b joined

	if err := r.EmojiReaction("b", "🎉", 50, 60); err != nil {
		t.Fatalf("EmojiReaction failed: %v", err)
	}

	reaction := recvDelta(t, chA)
	if reaction.Type != protocol.DeltaTypeEmojiReaction {
		t.Fatalf("Expected emoji-reaction, got %s", reaction.Type)
	}
	payload := decode[protocol.EmojiReactionPayload](t, reaction)
	if payload.Emoji != "🎉" || payload.Participant == nil || payload.Participant.ID != "b" {
		t.Errorf("Reaction payload mismatch: %+v", payload)
	}

	// Reactions never enter the document
	snap, _ := mustJoin(t, r, "c", "Cara")
	if len(snap.Strokes) != 0 {
		t.Error("Reaction leaked into document snapshot")
	}
}

func TestRoomCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxParticipants = 1
	r, _ := newTestRoom(cfg)

	mustJoin(t, r, "a", "Alice")
	if _, _, err := r.Join("b", "Bob", "🐼"); err != ErrRoomFull {
		t.Errorf("Expected ErrRoomFull, got %v", err)
	}
}

func TestLeaveDiscardsInProgressStroke(t *testing.T) {
	r, _ := newTestRoom(DefaultConfig())

	_, chA := mustJoin(t, r, "a", "Alice")
	mustJoin(t, r, "b", "Bob")
	recvDelta(t, chA) // b joined

	strokeID, _ := r.StartStroke("b", protocol.StrokeMeta{})
	recvDelta(t, chA) // stroke-start

	r.Leave("b")

	cancel := recvDelta(t, chA)
	if cancel.Type != protocol.DeltaTypeStrokeCancel {
		t.Fatalf("Expected stroke-cancel on leave, got %s", cancel.Type)
	}
	if decode[protocol.StrokeCancelPayload](t, cancel).StrokeID != strokeID {
		t.Error("Cancelled wrong stroke")
	}
	left := recvDelta(t, chA)
	if left.Type != protocol.DeltaTypeParticipantLeft {
		t.Fatalf("Expected participant-left, got %s", left.Type)
	}
}

func TestStalenessEvictionEmitsLeftOnce(t *testing.T) {
	r, fc := newTestRoom(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.start(ctx)
	defer r.stop()

	_, chA := mustJoin(t, r, "a", "Alice")
	_, chB := mustJoin(t, r, "b", "Bob")
	recvDelta(t, chA) // b joined

	// Keep A alive, let B go silent past the staleness window
	fc.BlockUntil(1)
	fc.Advance(3 * time.Second)
	if err := r.Heartbeat("a"); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	fc.Advance(3 * time.Second)

	left := recvDelta(t, chA)
	if left.Type != protocol.DeltaTypeParticipantLeft {
		t.Fatalf("Expected participant-left, got %s", left.Type)
	}
	if decode[protocol.PresencePayload](t, left).Participant.ID != "b" {
		t.Error("Evicted wrong participant")
	}

	// Exactly once: no duplicate left delta on later sweeps
	fc.Advance(2 * time.Second)
	expectNoDelta(t, chA)

	// B's queue is discarded on eviction
	select {
	case _, ok := <-chB:
		for ok {
			_, ok = <-chB
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected B's delta channel to close")
	}

	if r.ParticipantCount() != 1 {
		t.Errorf("Expected 1 participant after eviction, got %d", r.ParticipantCount())
	}
}

func TestJoinAtomicity(t *testing.T) {
	r, _ := newTestRoom(DefaultConfig())
	mustJoin(t, r, "a", "Alice")

	const total = 40
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			id, err := r.StartStroke("a", protocol.StrokeMeta{})
			if err != nil {
				t.Errorf("StartStroke failed: %v", err)
				return
			}
			r.AppendPoint("a", id, protocol.Point{X: float64(i), Y: 0})
			r.AppendPoint("a", id, protocol.Point{X: float64(i), Y: 1})
			r.CommitStroke("a", id)
		}
	}()

	// Join mid-stream: snapshot plus delta stream must cover every commit
	// exactly once, in order, with no partial splice.
	snap, ch := mustJoin(t, r, "c", "Cara")
	seen := len(snap.Strokes)
	for i, s := range snap.Strokes {
		if s.ID != strokeID("a", i+1) {
			t.Fatalf("Snapshot stroke %d: expected %s, got %s", i, strokeID("a", i+1), s.ID)
		}
		if len(s.Points) != 2 {
			t.Fatalf("Snapshot observed partial stroke %s with %d points", s.ID, len(s.Points))
		}
	}

	for seen < total {
		delta := recvDelta(t, ch)
		if delta.Type != protocol.DeltaTypeStrokeCommit {
			continue
		}
		payload := decode[protocol.StrokeCommitPayload](t, delta)
		seen++
		if payload.StrokeID != strokeID("a", seen) {
			t.Fatalf("Expected commit of %s, got %s", strokeID("a", seen), payload.StrokeID)
		}
	}
	<-done
}

func strokeID(participantID string, seq int) string {
	return participantID + "-" + strconv.Itoa(seq)
}
