package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		cur     Stage
		step    Step
		want    Stage
		wantErr bool
	}{
		{"view first", NotViewed, StepViewed, Viewed, false},
		{"print before view", NotViewed, StepPrinted, NotViewed, true},
		{"email before print", Viewed, StepEmailSent, Viewed, true},
		{"print after view", Viewed, StepPrinted, Printed, false},
		{"email after print", Printed, StepEmailSent, EmailSent, false},
		{"view again keeps stage", Printed, StepViewed, Printed, false},
		{"print again keeps stage", EmailSent, StepPrinted, EmailSent, false},
		{"reset incomplete", Printed, StepReset, Printed, true},
		{"reset complete", EmailSent, StepReset, NotViewed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.cur, tt.step)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrGuardViolation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTransition_UnknownStep(t *testing.T) {
	_, err := Transition(Viewed, Step("shred"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrGuardViolation))
}

func TestGuard_PrintedBeforeViewedLeavesStateUnchanged(t *testing.T) {
	g := NewGuard()

	st, err := g.AcknowledgePrinted()
	var gv *GuardViolationError
	require.ErrorAs(t, err, &gv)
	assert.Equal(t, StepPrinted, gv.Step)
	assert.Equal(t, Viewed, gv.Needs)
	assert.Equal(t, StateOf(NotViewed), st)
	assert.Equal(t, StateOf(NotViewed), g.State())
}

func TestGuard_FullSequence(t *testing.T) {
	g := NewGuard()
	require.Error(t, g.CheckReset())

	_, err := g.AcknowledgeViewed()
	require.NoError(t, err)
	_, err = g.AcknowledgePrinted()
	require.NoError(t, err)
	require.Error(t, g.CheckReset())
	st, err := g.AcknowledgeEmailSent()
	require.NoError(t, err)

	assert.Equal(t, State{Stage: "email_sent", IsViewed: true, IsPrinted: true, IsEmailSent: true, WorkflowCompleted: true}, st)
	assert.NoError(t, g.CheckReset())

	g.Reset()
	assert.Equal(t, State{Stage: "not_viewed"}, g.State())
}
