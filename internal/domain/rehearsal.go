package domain

import (
	"maps"
	"time"
)

// PollOption is one proposed time slot. Votes maps userID to canAttend, so a
// re-vote overwrites the previous answer.
type PollOption struct {
	ID              string          `json:"id"`
	DateTime        time.Time       `json:"dateTime"`
	DurationMinutes int             `json:"durationMinutes"`
	Votes           map[string]bool `json:"votes"`
}

// YesVotes counts the members who can attend this option.
func (o PollOption) YesVotes() int {
	n := 0
	for _, canAttend := range o.Votes {
		if canAttend {
			n++
		}
	}
	return n
}

// RehearsalPoll is an open scheduling proposal for a band.
type RehearsalPoll struct {
	ID        string       `json:"id"`
	BandID    string       `json:"bandId"`
	CreatorID string       `json:"creatorId"`
	Location  string       `json:"location"`
	Deadline  time.Time    `json:"deadline"`
	Options   []PollOption `json:"options"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

func (p RehearsalPoll) EntityID() string { return p.ID }

func (p RehearsalPoll) Clone() RehearsalPoll {
	options := make([]PollOption, len(p.Options))
	for i, opt := range p.Options {
		opt.Votes = maps.Clone(opt.Votes)
		if opt.Votes == nil {
			opt.Votes = map[string]bool{}
		}
		options[i] = opt
	}
	p.Options = options
	return p
}

// Option looks up an option by id.
func (p RehearsalPoll) Option(optionID string) (PollOption, int, bool) {
	for i, opt := range p.Options {
		if opt.ID == optionID {
			return opt, i, true
		}
	}
	return PollOption{}, -1, false
}

// RehearsalStatus is the lifecycle state of a rehearsal.
type RehearsalStatus string

const (
	RehearsalPolling             RehearsalStatus = "polling"
	RehearsalScheduled           RehearsalStatus = "scheduled"
	RehearsalCompletionSubmitted RehearsalStatus = "completion_submitted"
	RehearsalApproved            RehearsalStatus = "approved"
	RehearsalRejected            RehearsalStatus = "rejected"
	RehearsalCancelled           RehearsalStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s RehearsalStatus) Terminal() bool {
	return s == RehearsalApproved || s == RehearsalRejected || s == RehearsalCancelled
}

// Rehearsal is a scheduled band practice.
type Rehearsal struct {
	ID                    string          `json:"id"`
	BandID                string          `json:"bandId"`
	PollID                string          `json:"pollId,omitempty"`
	DateTime              time.Time       `json:"dateTime"`
	DurationMinutes       int             `json:"durationMinutes"`
	Location              string          `json:"location"`
	Status                RehearsalStatus `json:"status"`
	CompletionSubmittedBy string          `json:"completionSubmittedBy,omitempty"`
	ReviewedBy            string          `json:"reviewedBy,omitempty"`
	AdminNote             string          `json:"adminNote,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

func (r Rehearsal) EntityID() string { return r.ID }
func (r Rehearsal) Clone() Rehearsal { return r }
