package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressroom/internal/domain"
)

func ts(s string) *string { return &s }

func TestForAssignmentTotalAndDeterministic(t *testing.T) {
	instants := []*string{nil, ts("2024-01-01T00:00:00Z")}
	decisions := []*string{nil, ts(DecisionAccept), ts(DecisionCorrections), ts(DecisionProofing)}
	known := map[string]bool{
		Assigned: true, Accepted: true, Declined: true, Completed: true,
		Cancelled: true, Unknown: true,
		DecisionAccept: true, DecisionCorrections: true, DecisionProofing: true,
	}
	for _, assigned := range instants {
		for _, accepted := range instants {
			for _, completed := range instants {
				for _, cancelled := range instants {
					for _, reviewed := range []bool{false, true} {
						for _, decision := range decisions {
							a := domain.Assignment{
								Assigned:       assigned,
								Accepted:       accepted,
								Completed:      completed,
								Cancelled:      cancelled,
								Reviewed:       reviewed,
								ReviewDecision: decision,
							}
							got := ForAssignment(a)
							require.True(t, known[got], "unexpected status %q for %+v", got, a)
							assert.Equal(t, got, ForAssignment(a), "derivation must be deterministic")
						}
					}
				}
			}
		}
	}
}

func TestForAssignmentPrecedence(t *testing.T) {
	now := ts("2024-03-01T10:00:00Z")
	decision := ts(DecisionCorrections)

	cases := []struct {
		name string
		a    domain.Assignment
		want string
	}{
		{"cancelled wins over everything", domain.Assignment{Assigned: now, Accepted: now, Completed: now, Cancelled: now, Reviewed: true, ReviewDecision: decision}, Cancelled},
		{"assigned only", domain.Assignment{Assigned: now}, Assigned},
		{"assigned and accepted", domain.Assignment{Assigned: now, Accepted: now}, Accepted},
		{"completed without acceptance is declined", domain.Assignment{Assigned: now, Completed: now}, Declined},
		{"completed awaiting review", domain.Assignment{Assigned: now, Accepted: now, Completed: now}, Completed},
		{"reviewed takes the decision label", domain.Assignment{Assigned: now, Accepted: now, Completed: now, Reviewed: true, ReviewDecision: decision}, DecisionCorrections},
		{"nothing set", domain.Assignment{}, Unknown},
		{"reviewed without decision", domain.Assignment{Assigned: now, Accepted: now, Completed: now, Reviewed: true}, Unknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ForAssignment(tc.a))
		})
	}
}

// The two task types order the declined/completed predicates differently:
// an assignment checks "completed without acceptance" before "completed",
// a proofing task checks "completed with acceptance" first. These cases
// pin the historical behaviour of each; do not unify the orderings.
func TestDeclinedOrderingDivergence(t *testing.T) {
	now := ts("2024-03-01T10:00:00Z")

	// Assignment: declined outranks the review decision.
	a := domain.Assignment{
		Assigned:       now,
		Completed:      now,
		Reviewed:       true,
		ReviewDecision: ts(DecisionAccept),
	}
	assert.Equal(t, Declined, ForAssignment(a))

	// Proofing: completed-with-acceptance is checked before declined.
	p := domain.ProofingTask{Assigned: now, Accepted: now, Completed: now}
	assert.Equal(t, Completed, ForProofing(p))
	p.Accepted = nil
	assert.Equal(t, Declined, ForProofing(p))
}

func TestForProofing(t *testing.T) {
	now := ts("2024-03-01T10:00:00Z")
	cases := []struct {
		name string
		p    domain.ProofingTask
		want string
	}{
		{"cancelled flag wins", domain.ProofingTask{Assigned: now, Completed: now, Cancelled: true}, Cancelled},
		{"assigned", domain.ProofingTask{Assigned: now}, Assigned},
		{"accepted", domain.ProofingTask{Assigned: now, Accepted: now}, Accepted},
		{"completed", domain.ProofingTask{Assigned: now, Accepted: now, Completed: now}, Completed},
		{"declined", domain.ProofingTask{Assigned: now, Completed: now}, Declined},
		{"empty is unknown", domain.ProofingTask{}, Unknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ForProofing(tc.p))
		})
	}
}

func TestTerminal(t *testing.T) {
	now := ts("2024-03-01T10:00:00Z")
	assert.False(t, AssignmentTerminal(domain.Assignment{Assigned: now}))
	assert.False(t, AssignmentTerminal(domain.Assignment{Assigned: now, Completed: now}))
	assert.True(t, AssignmentTerminal(domain.Assignment{Assigned: now, Completed: now, Reviewed: true}))
	assert.True(t, AssignmentTerminal(domain.Assignment{Cancelled: now}))

	assert.False(t, ProofingTerminal(domain.ProofingTask{Assigned: now}))
	assert.True(t, ProofingTerminal(domain.ProofingTask{Assigned: now, Completed: now}))
	assert.True(t, ProofingTerminal(domain.ProofingTask{Assigned: now, Cancelled: true}))
}

func TestFriendly(t *testing.T) {
	assert.Equal(t, "Awaiting response", Friendly(Assigned))
	assert.Equal(t, "Reviewed: corrections required", Friendly(DecisionCorrections))
	assert.Equal(t, Friendly(Unknown), Friendly("bogus"))
}

func TestOverdue(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.False(t, Overdue(nil, now))
	assert.False(t, Overdue(ts("2024-03-10"), now), "due today is not overdue")
	assert.True(t, Overdue(ts("2024-03-01"), now))
	assert.False(t, Overdue(ts("not-a-date"), now))

	assert.True(t, TimeToDue(ts("2024-03-01"), now) < 0)
	assert.True(t, TimeToDue(ts("2024-03-20"), now) > 0)
	assert.Zero(t, TimeToDue(nil, now))
}
