package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowTiming_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		timing  WorkflowTiming
		wantErr bool
	}{
		{
			name:   "immediate is always valid",
			timing: WorkflowTiming{Kind: TimingImmediate},
		},
		{
			name:   "delayed with value and unit",
			timing: WorkflowTiming{Kind: TimingDelayed, DelayValue: 2, DelayUnit: DelayHour},
		},
		{
			name:   "delayed with zero value means no delay",
			timing: WorkflowTiming{Kind: TimingDelayed},
		},
		{
			name:    "delayed with negative value",
			timing:  WorkflowTiming{Kind: TimingDelayed, DelayValue: -1, DelayUnit: DelayHour},
			wantErr: true,
		},
		{
			name:    "delayed with value but bogus unit",
			timing:  WorkflowTiming{Kind: TimingDelayed, DelayValue: 1, DelayUnit: "fortnight"},
			wantErr: true,
		},
		{
			name:   "scheduled at 22:00 is the latest allowed hour",
			timing: WorkflowTiming{Kind: TimingScheduled, Hour: 22},
		},
		{
			name:    "scheduled at 23:00 is out of range",
			timing:  WorkflowTiming{Kind: TimingScheduled, Hour: 23},
			wantErr: true,
		},
		{
			name:    "scheduled with invalid minute",
			timing:  WorkflowTiming{Kind: TimingScheduled, Hour: 9, Minute: 61},
			wantErr: true,
		},
		{
			name:   "scheduled with day set and delay",
			timing: WorkflowTiming{Kind: TimingScheduled, Hour: 9, Days: []time.Weekday{time.Monday}, DelayValue: 1, DelayUnit: DelayDay},
		},
		{
			name:    "scheduled with invalid weekday",
			timing:  WorkflowTiming{Kind: TimingScheduled, Hour: 9, Days: []time.Weekday{time.Weekday(9)}},
			wantErr: true,
		},
		{
			name:   "fixed with a datetime",
			timing: WorkflowTiming{Kind: TimingFixed, At: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)},
		},
		{
			name:    "fixed without a datetime",
			timing:  WorkflowTiming{Kind: TimingFixed},
			wantErr: true,
		},
		{
			name:   "variable with a reference",
			timing: WorkflowTiming{Kind: TimingVariable, VariableRef: "subscription.next_payment"},
		},
		{
			name:    "variable without a reference",
			timing:  WorkflowTiming{Kind: TimingVariable},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			timing:  WorkflowTiming{Kind: "eventually"},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.timing.Validate()

			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestWorkflowTiming_Delay(t *testing.T) {
	testCases := []struct {
		name   string
		timing WorkflowTiming
		want   time.Duration
	}{
		{
			name:   "two hours",
			timing: WorkflowTiming{Kind: TimingDelayed, DelayValue: 2, DelayUnit: DelayHour},
			want:   2 * time.Hour,
		},
		{
			name:   "one week",
			timing: WorkflowTiming{Kind: TimingDelayed, DelayValue: 1, DelayUnit: DelayWeek},
			want:   7 * 24 * time.Hour,
		},
		{
			name:   "thirty minutes",
			timing: WorkflowTiming{Kind: TimingDelayed, DelayValue: 30, DelayUnit: DelayMinute},
			want:   30 * time.Minute,
		},
		{
			name:   "zero value has no delay",
			timing: WorkflowTiming{Kind: TimingDelayed},
			want:   0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.timing.Delay())
		})
	}
}

func TestWorkflowTiming_RunsOn(t *testing.T) {
	weekdaysOnly := WorkflowTiming{
		Kind: TimingScheduled,
		Days: []time.Weekday{time.Monday, time.Wednesday},
	}

	assert.True(t, weekdaysOnly.RunsOn(time.Monday))
	assert.True(t, weekdaysOnly.RunsOn(time.Wednesday))
	assert.False(t, weekdaysOnly.RunsOn(time.Sunday))

	anyDay := WorkflowTiming{Kind: TimingScheduled}
	for day := time.Sunday; day <= time.Saturday; day++ {
		assert.True(t, anyDay.RunsOn(day))
	}
}
