package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bengol30/bandgo/internal/domain"
)

// SnapshotVersion identifies the blob layout written by Encode.
const SnapshotVersion = 1

// Snapshot holds every entity collection in insertion order.
type Snapshot struct {
	Version             int                         `json:"version"`
	SavedAt             time.Time                   `json:"savedAt"`
	Users               []domain.User               `json:"users"`
	Credentials         []domain.Credential         `json:"credentials"`
	Sessions            []domain.Session            `json:"sessions"`
	BandRequests        []domain.BandRequest        `json:"bandRequests"`
	Applications        []domain.Application        `json:"applications"`
	Bands               []domain.Band               `json:"bands"`
	Songs               []domain.Song               `json:"songs"`
	Tasks               []domain.Task               `json:"tasks"`
	Polls               []domain.RehearsalPoll      `json:"polls"`
	Rehearsals          []domain.Rehearsal          `json:"rehearsals"`
	PerformanceRequests []domain.PerformanceRequest `json:"performanceRequests"`
	Events              []domain.Event              `json:"events"`
	Registrations       []domain.EventRegistration  `json:"registrations"`
	Submissions         []domain.EventSubmission    `json:"submissions"`
	Posts               []domain.Post               `json:"posts"`
	Likes               []domain.PostLike           `json:"likes"`
	Comments            []domain.Comment            `json:"comments"`
	Notifications       []domain.Notification       `json:"notifications"`
	Conversations       []domain.Conversation       `json:"conversations"`
	Messages            []domain.ChatMessage        `json:"messages"`
	Reports             []domain.Report             `json:"reports"`
	Settings            *domain.SystemSettings      `json:"settings,omitempty"`
}

// Encode serialises the snapshot into its blob form.
func (s Snapshot) Encode() ([]byte, error) {
	if s.Version == 0 {
		s.Version = SnapshotVersion
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a blob produced by Encode.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snapshot.Version > SnapshotVersion {
		return Snapshot{}, fmt.Errorf("decode snapshot: unsupported version %d", snapshot.Version)
	}
	return snapshot, nil
}
