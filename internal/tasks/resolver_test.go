package tasks_test

import (
	"testing"

	"github.com/minahq/mina/internal/tasks"
)

func candidate(title string, confidence float64) tasks.CandidateTask {
	return tasks.CandidateTask{
		Title:           title,
		EvidenceQuote:   "someone said: " + title,
		Priority:        tasks.PriorityMedium,
		ConfidenceScore: confidence,
	}
}

func titles(resolved []tasks.ResolvedTask) []string {
	out := make([]string, len(resolved))
	for i, r := range resolved {
		out[i] = r.Title
	}
	return out
}

func TestResolveEmptyInput(t *testing.T) {
	t.Parallel()
	r := tasks.NewResolver()

	got := r.Resolve("some transcript", nil)
	if got == nil || len(got) != 0 {
		t.Errorf("Resolve(nil) = %v, want empty non-nil slice", got)
	}
}

func TestResolveSingletonKept(t *testing.T) {
	t.Parallel()
	r := tasks.NewResolver()

	in := []tasks.CandidateTask{candidate("Send the quarterly report", 0.9)}
	got := r.Resolve("transcript", in)
	if len(got) != 1 {
		t.Fatalf("Resolve(singleton) returned %d tasks, want 1", len(got))
	}
	if got[0].CandidateTask != in[0] {
		t.Errorf("singleton was modified: %+v", got[0])
	}
}

func TestResolveDuplicatesKeepHighestConfidence(t *testing.T) {
	t.Parallel()
	r := tasks.NewResolver()

	in := []tasks.CandidateTask{
		candidate("Send the quarterly report", 0.8),
		candidate("send the quarterly report!", 0.95),
		candidate("Send quarterly report", 0.7),
	}
	got := r.Resolve("transcript", in)
	if len(got) != 1 {
		t.Fatalf("Resolve returned %d tasks, want 1", len(got))
	}
	if got[0].ConfidenceScore != 0.95 {
		t.Errorf("kept confidence %v, want 0.95", got[0].ConfidenceScore)
	}
}

func TestResolveNonDuplicatesPreserved(t *testing.T) {
	t.Parallel()
	r := tasks.NewResolver()

	in := []tasks.CandidateTask{
		candidate("Clean bedroom", 0.9),
		candidate("Buy train ticket", 0.85),
		candidate("Review security audit findings", 0.8),
	}
	got := r.Resolve("transcript", in)
	if len(got) != 3 {
		t.Fatalf("Resolve returned %d tasks, want 3: %v", len(got), titles(got))
	}
	want := []string{"Clean bedroom", "Buy train ticket", "Review security audit findings"}
	for i, w := range want {
		if got[i].Title != w {
			t.Errorf("position %d: got %q, want %q (order must be preserved)", i, got[i].Title, w)
		}
	}
}

func TestResolveTieBreakFirstSeen(t *testing.T) {
	t.Parallel()
	r := tasks.NewResolver()

	first := candidate("Update the roadmap", 0.8)
	first.Owner = "dana"
	second := candidate("update the roadmap", 0.8)
	second.Owner = "riley"

	// Deterministic across repeated runs: the tie always goes to first-seen.
	for i := 0; i < 10; i++ {
		got := r.Resolve("transcript", []tasks.CandidateTask{first, second})
		if len(got) != 1 {
			t.Fatalf("run %d: got %d tasks, want 1", i, len(got))
		}
		if got[0].Owner != "dana" {
			t.Fatalf("run %d: tie broke to %q, want first-seen dana", i, got[0].Owner)
		}
	}
}

func TestResolveOutputOrderFollowsInput(t *testing.T) {
	t.Parallel()
	r := tasks.NewResolver()

	in := []tasks.CandidateTask{
		candidate("Prepare onboarding checklist", 0.6),
		candidate("Book flights for the offsite", 0.9),
		candidate("prepare onboarding checklist", 0.95), // wins its cluster
		candidate("Email the vendor contract", 0.7),
	}
	got := r.Resolve("transcript", in)
	if len(got) != 3 {
		t.Fatalf("got %d tasks, want 3: %v", len(got), titles(got))
	}
	// The onboarding cluster's winner sits at input index 2, so output order
	// is: flights (1), onboarding winner (2), vendor email (3).
	want := []string{
		"Book flights for the offsite",
		"prepare onboarding checklist",
		"Email the vendor contract",
	}
	for i, w := range want {
		if got[i].Title != w {
			t.Errorf("position %d: got %q, want %q", i, got[i].Title, w)
		}
	}
}

func TestResolveMetaCommentaryFiltered(t *testing.T) {
	t.Parallel()
	r := tasks.NewResolver()

	in := []tasks.CandidateTask{
		candidate("Fix the login timeout bug", 0.9),
		candidate("Share the recording of this meeting", 0.8),
		candidate("Check if everyone can hear", 0.5),
	}
	in[2].EvidenceQuote = "can everyone hear me okay?"

	got := r.Resolve("transcript", in)
	if len(got) != 1 {
		t.Fatalf("got %d tasks, want 1: %v", len(got), titles(got))
	}
	if got[0].Title != "Fix the login timeout bug" {
		t.Errorf("kept %q, want the real task", got[0].Title)
	}
}

func TestResolveCustomMetaFilter(t *testing.T) {
	t.Parallel()

	dropAll := func(string, tasks.CandidateTask) bool { return true }
	r := tasks.NewResolver(tasks.WithMetaFilter(dropAll))

	got := r.Resolve("transcript", []tasks.CandidateTask{candidate("Anything", 0.9)})
	if len(got) != 0 {
		t.Errorf("custom drop-all filter kept %d tasks, want 0", len(got))
	}

	// Nil filter keeps everything, including marker-bearing candidates.
	keep := tasks.NewResolver(tasks.WithMetaFilter(nil))
	got = keep.Resolve("transcript", []tasks.CandidateTask{candidate("Share the recording of this meeting", 0.9)})
	if len(got) != 1 {
		t.Errorf("nil filter dropped candidates, want all kept")
	}
}

func TestResolveIdempotent(t *testing.T) {
	t.Parallel()
	r := tasks.NewResolver()

	in := []tasks.CandidateTask{
		candidate("Draft the migration plan", 0.9),
		candidate("draft migration plan", 0.7),
		candidate("Order new badges", 0.6),
	}
	once := r.Resolve("transcript", in)

	again := make([]tasks.CandidateTask, len(once))
	for i, rt := range once {
		again[i] = rt.CandidateTask
	}
	twice := r.Resolve("transcript", again)

	if len(once) != len(twice) {
		t.Fatalf("resolution not idempotent: %d then %d", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("position %d changed on second resolve: %+v vs %+v", i, once[i], twice[i])
		}
	}
}

func TestDefaultMetaFilterKeepsAmbiguous(t *testing.T) {
	t.Parallel()

	// No marker phrase: must be kept even though it mentions a meeting.
	c := candidate("Schedule a follow-up meeting with legal", 0.8)
	if tasks.DefaultMetaFilter("transcript", c) {
		t.Errorf("ambiguous candidate was dropped: %q", c.Title)
	}
}
