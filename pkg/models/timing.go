package models

import (
	"errors"
	"fmt"
	"time"
)

// TimingKind identifies which variant of a workflow timing policy is active.
// The set is closed: the resolver matches exhaustively over these kinds.
type TimingKind string

const (
	TimingImmediate TimingKind = "immediate"
	TimingDelayed   TimingKind = "delayed"
	TimingScheduled TimingKind = "scheduled"
	TimingFixed     TimingKind = "fixed"
	TimingVariable  TimingKind = "variable"
)

// DelayUnit is the unit of a delayed or scheduled timing's delay value.
type DelayUnit string

const (
	DelayMinute DelayUnit = "minute"
	DelayHour   DelayUnit = "hour"
	DelayDay    DelayUnit = "day"
	DelayWeek   DelayUnit = "week"
)

// Duration converts a delay value in this unit to a time.Duration.
func (u DelayUnit) Duration(value int) time.Duration {
	switch u {
	case DelayMinute:
		return time.Duration(value) * time.Minute
	case DelayHour:
		return time.Duration(value) * time.Hour
	case DelayDay:
		return time.Duration(value) * 24 * time.Hour
	case DelayWeek:
		return time.Duration(value) * 7 * 24 * time.Hour
	default:
		return 0
	}
}

// maxScheduledHour reserves the final hour of each day for processing headroom.
const maxScheduledHour = 22

// WorkflowTiming is the timing policy of a workflow. Exactly one variant,
// selected by Kind, is active; the variant fields outside the active kind
// are ignored. Timings are immutable once the owning workflow is saved.
type WorkflowTiming struct {
	Kind TimingKind `json:"kind" validate:"required"`

	// Delayed, and the optional delay of Scheduled.
	DelayValue int       `json:"delay_value,omitempty"`
	DelayUnit  DelayUnit `json:"delay_unit,omitempty"`

	// Scheduled: run at Hour:Minute local time on one of Days.
	// An empty day set means any day.
	Days   []time.Weekday `json:"days,omitempty"`
	Hour   int            `json:"hour,omitempty"`
	Minute int            `json:"minute,omitempty"`

	// Fixed: run once, globally, at this instant.
	At time.Time `json:"at,omitempty"`

	// Variable: a merge-field reference resolved against the trigger's
	// data context to obtain a datetime.
	VariableRef string `json:"variable_ref,omitempty"`
}

var (
	ErrUnknownTimingKind = errors.New("unknown timing kind")
	ErrInvalidTiming     = errors.New("invalid timing configuration")
)

func validDelayUnit(u DelayUnit) bool {
	switch u {
	case DelayMinute, DelayHour, DelayDay, DelayWeek:
		return true
	default:
		return false
	}
}

// Validate checks the structural validity of the active variant. It is
// called at workflow save and preset parse time so the resolver always
// operates on a valid timing.
func (t WorkflowTiming) Validate() error {
	switch t.Kind {
	case TimingImmediate:
		return nil

	case TimingDelayed:
		if t.DelayValue < 0 {
			return fmt.Errorf("%w: negative delay value %d", ErrInvalidTiming, t.DelayValue)
		}

		// A zero delay is "no delay", not an error, and needs no unit.
		if t.DelayValue > 0 && !validDelayUnit(t.DelayUnit) {
			return fmt.Errorf("%w: delay unit %q", ErrInvalidTiming, t.DelayUnit)
		}

		return nil

	case TimingScheduled:
		if t.Hour < 0 || t.Hour > maxScheduledHour {
			return fmt.Errorf("%w: hour %d outside [0,%d]", ErrInvalidTiming, t.Hour, maxScheduledHour)
		}

		if t.Minute < 0 || t.Minute > 59 {
			return fmt.Errorf("%w: minute %d", ErrInvalidTiming, t.Minute)
		}

		for _, day := range t.Days {
			if day < time.Sunday || day > time.Saturday {
				return fmt.Errorf("%w: weekday %d", ErrInvalidTiming, day)
			}
		}

		if t.DelayValue < 0 {
			return fmt.Errorf("%w: negative delay value %d", ErrInvalidTiming, t.DelayValue)
		}

		if t.DelayValue > 0 && !validDelayUnit(t.DelayUnit) {
			return fmt.Errorf("%w: delay unit %q", ErrInvalidTiming, t.DelayUnit)
		}

		return nil

	case TimingFixed:
		if t.At.IsZero() {
			return fmt.Errorf("%w: fixed timing requires a datetime", ErrInvalidTiming)
		}

		return nil

	case TimingVariable:
		if t.VariableRef == "" {
			return fmt.Errorf("%w: variable timing requires a reference", ErrInvalidTiming)
		}

		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownTimingKind, t.Kind)
	}
}

// Delay returns the configured delay as a duration. Zero for variants
// without a delay.
func (t WorkflowTiming) Delay() time.Duration {
	if t.DelayValue <= 0 {
		return 0
	}

	return t.DelayUnit.Duration(t.DelayValue)
}

// RunsOn reports whether the scheduled day set admits the given weekday.
// An empty set admits every day.
func (t WorkflowTiming) RunsOn(day time.Weekday) bool {
	if len(t.Days) == 0 {
		return true
	}

	for _, d := range t.Days {
		if d == day {
			return true
		}
	}

	return false
}
