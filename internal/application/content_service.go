package application

import (
	"context"
	"strings"
	"time"

	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/persistence"
)

// SongParams carries the editable fields of a song.
type SongParams struct {
	Title           string
	Artist          string
	Key             string
	BPM             int
	DurationSeconds int
	Notes           string
}

// TaskParams carries the editable fields of a task.
type TaskParams struct {
	Title       string
	Description string
	AssigneeID  string
	DueAt       *time.Time
}

// ContentService manages band-scoped songs and tasks. Only members see or edit them.
type ContentService struct {
	service
}

// NewContentService constructs a ContentService.
func NewContentService(deps Deps, locks *keyedLocks) *ContentService {
	return &ContentService{service: newService("ContentService", deps, locks)}
}

func memberBand(tx persistence.Tx, principal Principal, bandID string) (domain.Band, error) {
	band, err := get(tx.Bands(), "band", bandID)
	if err != nil {
		return band, err
	}
	if !band.IsMember(principal.UserID) && !principal.CanModerate() {
		return band, denied("band members only")
	}
	return band, nil
}

func validateSong(params SongParams) error {
	v := &ValidationError{}
	if strings.TrimSpace(params.Title) == "" {
		v.add("title", "is required")
	}
	if params.BPM < 0 {
		v.add("bpm", "cannot be negative")
	}
	if params.DurationSeconds < 0 {
		v.add("durationSeconds", "cannot be negative")
	}
	return v.errOrNil()
}

// CreateSong adds a song to the band repertoire.
func (s *ContentService) CreateSong(ctx context.Context, principal Principal, bandID string, params SongParams) (song domain.Song, err error) {
	_, done := s.begin(ctx, "CreateSong", "actor_id", principal.UserID, "band_id", bandID)
	defer func() { done(err, "song created", "song_id", song.ID) }()

	if err = requireActive(principal); err != nil {
		return
	}
	if err = validateSong(params); err != nil {
		return
	}
	err = s.write(ctx, func(u *unit) error {
		if _, err := memberBand(u.tx, principal, bandID); err != nil {
			return err
		}
		now := s.now()
		song = domain.Song{
			ID:              s.idGenerator(),
			BandID:          bandID,
			Title:           strings.TrimSpace(params.Title),
			Artist:          params.Artist,
			Key:             params.Key,
			BPM:             params.BPM,
			DurationSeconds: params.DurationSeconds,
			Notes:           params.Notes,
			CreatedBy:       principal.UserID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return u.tx.Songs().Insert(song)
	})
	return
}

// UpdateSong replaces the editable fields of a song.
func (s *ContentService) UpdateSong(ctx context.Context, principal Principal, songID string, params SongParams) (song domain.Song, err error) {
	_, done := s.begin(ctx, "UpdateSong", "actor_id", principal.UserID, "song_id", songID)
	defer func() { done(err, "song updated") }()

	if err = requireActive(principal); err != nil {
		return
	}
	if err = validateSong(params); err != nil {
		return
	}
	err = s.write(ctx, func(u *unit) error {
		var err error
		if song, err = get(u.tx.Songs(), "song", songID); err != nil {
			return err
		}
		if _, err := memberBand(u.tx, principal, song.BandID); err != nil {
			return err
		}
		song.Title = strings.TrimSpace(params.Title)
		song.Artist = params.Artist
		song.Key = params.Key
		song.BPM = params.BPM
		song.DurationSeconds = params.DurationSeconds
		song.Notes = params.Notes
		song.UpdatedAt = s.now()
		return u.tx.Songs().Update(song)
	})
	return
}

// DeleteSong removes a song.
func (s *ContentService) DeleteSong(ctx context.Context, principal Principal, songID string) (err error) {
	_, done := s.begin(ctx, "DeleteSong", "actor_id", principal.UserID, "song_id", songID)
	defer func() { done(err, "song deleted") }()

	if err = requireActive(principal); err != nil {
		return
	}
	return s.write(ctx, func(u *unit) error {
		song, err := get(u.tx.Songs(), "song", songID)
		if err != nil {
			return err
		}
		if _, err := memberBand(u.tx, principal, song.BandID); err != nil {
			return err
		}
		return u.tx.Songs().Delete(song.ID)
	})
}

// ListSongs returns the band repertoire.
func (s *ContentService) ListSongs(ctx context.Context, principal Principal, bandID string) (songs []domain.Song, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		if _, err := memberBand(tx, principal, bandID); err != nil {
			return err
		}
		songs = tx.Songs().Find(func(song domain.Song) bool { return song.BandID == bandID })
		return nil
	})
	return
}

func (s *ContentService) validateTask(band domain.Band, params TaskParams) error {
	v := &ValidationError{}
	if strings.TrimSpace(params.Title) == "" {
		v.add("title", "is required")
	}
	if params.AssigneeID != "" && !band.IsMember(params.AssigneeID) {
		v.add("assigneeId", "must be a band member")
	}
	return v.errOrNil()
}

// CreateTask adds a pending task to the band.
func (s *ContentService) CreateTask(ctx context.Context, principal Principal, bandID string, params TaskParams) (task domain.Task, err error) {
	_, done := s.begin(ctx, "CreateTask", "actor_id", principal.UserID, "band_id", bandID)
	defer func() { done(err, "task created", "task_id", task.ID) }()

	if err = requireActive(principal); err != nil {
		return
	}
	err = s.write(ctx, func(u *unit) error {
		band, err := memberBand(u.tx, principal, bandID)
		if err != nil {
			return err
		}
		if err := s.validateTask(band, params); err != nil {
			return err
		}
		now := s.now()
		task = domain.Task{
			ID:          s.idGenerator(),
			BandID:      bandID,
			Title:       strings.TrimSpace(params.Title),
			Description: params.Description,
			Status:      domain.TaskPending,
			AssigneeID:  params.AssigneeID,
			DueAt:       params.DueAt,
			CreatedBy:   principal.UserID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return u.tx.Tasks().Insert(task)
	})
	return
}

// UpdateTask replaces the editable fields of a task.
func (s *ContentService) UpdateTask(ctx context.Context, principal Principal, taskID string, params TaskParams) (task domain.Task, err error) {
	_, done := s.begin(ctx, "UpdateTask", "actor_id", principal.UserID, "task_id", taskID)
	defer func() { done(err, "task updated") }()

	if err = requireActive(principal); err != nil {
		return
	}
	err = s.write(ctx, func(u *unit) error {
		var err error
		if task, err = get(u.tx.Tasks(), "task", taskID); err != nil {
			return err
		}
		band, err := memberBand(u.tx, principal, task.BandID)
		if err != nil {
			return err
		}
		if err := s.validateTask(band, params); err != nil {
			return err
		}
		task.Title = strings.TrimSpace(params.Title)
		task.Description = params.Description
		task.AssigneeID = params.AssigneeID
		task.DueAt = params.DueAt
		task.UpdatedAt = s.now()
		return u.tx.Tasks().Update(task)
	})
	return
}

// CompleteTask moves a pending task to completed.
func (s *ContentService) CompleteTask(ctx context.Context, principal Principal, taskID string) (domain.Task, error) {
	return s.transitionTask(ctx, principal, "CompleteTask", taskID, domain.TaskPending, domain.TaskCompleted)
}

// ReopenTask moves a completed task back to pending.
func (s *ContentService) ReopenTask(ctx context.Context, principal Principal, taskID string) (domain.Task, error) {
	return s.transitionTask(ctx, principal, "ReopenTask", taskID, domain.TaskCompleted, domain.TaskPending)
}

func (s *ContentService) transitionTask(ctx context.Context, principal Principal, operation, taskID string, from, to domain.TaskStatus) (task domain.Task, err error) {
	_, done := s.begin(ctx, operation, "actor_id", principal.UserID, "task_id", taskID)
	defer func() { done(err, "task status changed", "status", to) }()

	if err = requireActive(principal); err != nil {
		return
	}
	err = s.write(ctx, func(u *unit) error {
		var err error
		if task, err = get(u.tx.Tasks(), "task", taskID); err != nil {
			return err
		}
		if _, err := memberBand(u.tx, principal, task.BandID); err != nil {
			return err
		}
		if task.Status != from {
			return invalidState("task", task.ID, task.Status, to)
		}
		task.Status = to
		task.UpdatedAt = s.now()
		return u.tx.Tasks().Update(task)
	})
	return
}

// DeleteTask removes a task.
func (s *ContentService) DeleteTask(ctx context.Context, principal Principal, taskID string) (err error) {
	_, done := s.begin(ctx, "DeleteTask", "actor_id", principal.UserID, "task_id", taskID)
	defer func() { done(err, "task deleted") }()

	if err = requireActive(principal); err != nil {
		return
	}
	return s.write(ctx, func(u *unit) error {
		task, err := get(u.tx.Tasks(), "task", taskID)
		if err != nil {
			return err
		}
		if _, err := memberBand(u.tx, principal, task.BandID); err != nil {
			return err
		}
		return u.tx.Tasks().Delete(task.ID)
	})
}

// ListTasks returns the band tasks.
func (s *ContentService) ListTasks(ctx context.Context, principal Principal, bandID string) (tasks []domain.Task, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		if _, err := memberBand(tx, principal, bandID); err != nil {
			return err
		}
		tasks = tx.Tasks().Find(func(task domain.Task) bool { return task.BandID == bandID })
		return nil
	})
	return
}
