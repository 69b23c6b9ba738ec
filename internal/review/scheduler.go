// Package review schedules spaced-repetition reviews of knowledge records.
//
// A topic's records are split into groups of GroupCapacity in file order. A
// group is reviewed as a whole; once its last record has been shown, the
// group climbs one step of the 1, 5, 23 day interval ladder, provided it was
// due. After the fourth review the group graduates and is no longer
// scheduled.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ajitpratap0/lia/internal/models"
	"github.com/ajitpratap0/lia/internal/store"
)

// GroupCapacity is the number of records per review group.
const GroupCapacity = models.ReviewGroupCapacity

var (
	// ErrNoActiveSession is returned when a session operation runs before
	// InitReviewSession.
	ErrNoActiveSession = errors.New("no active review session")

	// ErrNoGroups is returned when the active group's topic has no groups.
	ErrNoGroups = errors.New("topic has no review groups")
)

// intervals maps a reviews count to the wait before the next review. The
// last stage has no next review.
var intervals = map[int]int{
	0: 1,
	1: 5,
	2: 23,
}

// Scheduler drives review sessions. It is not safe for concurrent use.
type Scheduler struct {
	records store.RecordStore
	reviews store.ReviewStore
	logger  *slog.Logger
	now     func() time.Time

	active *models.ReviewGroup
	cursor int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// NewScheduler creates a scheduler over the given stores.
func NewScheduler(records store.RecordStore, reviews store.ReviewStore, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		records: records,
		reviews: reviews,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReconcileGroupsForTopic creates the groups the topic's records need. It
// never removes groups and is idempotent.
func (s *Scheduler) ReconcileGroupsForTopic(ctx context.Context, topic string) error {
	count, err := s.records.RecordCount(ctx, topic)
	if err != nil {
		return fmt.Errorf("counting records of %q: %w", topic, err)
	}
	created, err := s.reviews.Reconcile(ctx, topic, count)
	if err != nil {
		return fmt.Errorf("reconciling groups of %q: %w", topic, err)
	}
	if created > 0 {
		s.logger.Info("created review groups", "topic", topic, "created", created)
	}
	return nil
}

// FetchGroupsForTopic reconciles the topic and returns its groups in index
// order.
func (s *Scheduler) FetchGroupsForTopic(ctx context.Context, topic string) ([]models.ReviewGroup, error) {
	if err := s.ReconcileGroupsForTopic(ctx, topic); err != nil {
		return nil, err
	}
	return s.reviews.GroupsForTopic(ctx, topic)
}

// FetchGroupsToReview reconciles every topic and returns all groups in
// review priority order.
func (s *Scheduler) FetchGroupsToReview(ctx context.Context) ([]models.ReviewGroup, error) {
	topics, err := s.records.Topics(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing topics: %w", err)
	}
	for _, topic := range topics {
		if err := s.ReconcileGroupsForTopic(ctx, topic); err != nil {
			return nil, err
		}
	}

	groups, err := s.reviews.AllGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing review groups: %w", err)
	}
	SortForReview(groups)
	return groups, nil
}

// SortForReview orders groups by next review date (unscheduled last), then
// reviews count, topic and id.
func SortForReview(groups []models.ReviewGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		switch {
		case a.NextReviewDate == nil && b.NextReviewDate != nil:
			return false
		case a.NextReviewDate != nil && b.NextReviewDate == nil:
			return true
		case a.NextReviewDate != nil && !a.NextReviewDate.Equal(*b.NextReviewDate):
			return a.NextReviewDate.Before(*b.NextReviewDate)
		}
		if a.ReviewsCount != b.ReviewsCount {
			return a.ReviewsCount < b.ReviewsCount
		}
		if a.Topic != b.Topic {
			return a.Topic < b.Topic
		}
		return a.ID < b.ID
	})
}

// InitReviewSession makes the group with id the active one and rewinds to
// its first record.
func (s *Scheduler) InitReviewSession(ctx context.Context, id int64) error {
	group, err := s.reviews.GroupByID(ctx, id)
	if err != nil {
		return err
	}
	s.active = &group
	s.cursor = 0
	s.logger.Debug("review session started", "group", id, "topic", group.Topic, "index", group.GroupIndex)
	return nil
}

// ActiveGroup returns the group under review.
func (s *Scheduler) ActiveGroup() (models.ReviewGroup, bool) {
	if s.active == nil {
		return models.ReviewGroup{}, false
	}
	return *s.active, true
}

// Cursor returns the position of the next record within the active group.
func (s *Scheduler) Cursor() int {
	return s.cursor
}

// NextRecord returns the record under the cursor and moves on. Returning the
// group's last record wraps the cursor and advances the group's schedule.
func (s *Scheduler) NextRecord(ctx context.Context) (models.KnowledgeRecord, error) {
	if s.active == nil {
		return models.KnowledgeRecord{}, ErrNoActiveSession
	}

	n, err := s.RecordsInGroup(ctx)
	if err != nil {
		return models.KnowledgeRecord{}, err
	}

	index := s.active.GroupIndex*GroupCapacity + s.cursor
	record, err := s.records.RecordByIndex(ctx, s.active.Topic, index)
	if err != nil {
		return models.KnowledgeRecord{}, fmt.Errorf("fetching record %d of %q: %w", index, s.active.Topic, err)
	}

	if s.cursor < n-1 && s.cursor < GroupCapacity-1 {
		s.cursor++
		return record, nil
	}

	s.cursor = 0
	if err := s.progress(ctx); err != nil {
		return record, err
	}
	return record, nil
}

// RecordsInGroup returns how many records the active group holds.
func (s *Scheduler) RecordsInGroup(ctx context.Context) (int, error) {
	if s.active == nil {
		return 0, ErrNoActiveSession
	}

	groups, err := s.reviews.GroupCountForTopic(ctx, s.active.Topic)
	if err != nil {
		return 0, fmt.Errorf("counting groups of %q: %w", s.active.Topic, err)
	}
	if groups == 0 {
		return 0, fmt.Errorf("%q: %w", s.active.Topic, ErrNoGroups)
	}
	if s.active.GroupIndex != groups-1 {
		return GroupCapacity, nil
	}

	total, err := s.records.RecordCount(ctx, s.active.Topic)
	if err != nil {
		return 0, fmt.Errorf("counting records of %q: %w", s.active.Topic, err)
	}
	return total - (groups-1)*GroupCapacity, nil
}

// progress applies one ladder step to the active group, persists it and
// reloads the group from the store.
func (s *Scheduler) progress(ctx context.Context) error {
	updated, ok := Advance(*s.active, s.now())
	if !ok {
		s.logger.Debug("group not due, schedule unchanged", "group", s.active.ID, "reviews", s.active.ReviewsCount)
		return nil
	}

	if err := s.reviews.Save(ctx, updated); err != nil {
		return fmt.Errorf("saving review group %d: %w", updated.ID, err)
	}
	reloaded, err := s.reviews.GroupByID(ctx, updated.ID)
	if err != nil {
		return fmt.Errorf("reloading review group %d: %w", updated.ID, err)
	}
	s.active = &reloaded

	s.logger.Info("review group advanced", "group", reloaded.ID, "topic", reloaded.Topic, "reviews", reloaded.ReviewsCount)
	return nil
}

// Advance returns the group after one completed review at now, and whether
// anything changed. A first review always counts; later ones only when the
// group is due. Graduated groups never change.
func Advance(group models.ReviewGroup, now time.Time) (models.ReviewGroup, bool) {
	switch {
	case group.ReviewsCount == 0:
	case group.IsGraduated():
		return group, false
	case !group.IsDue(now):
		return group, false
	}

	last := now
	group.LastReviewDate = &last
	if days, ok := intervals[group.ReviewsCount]; ok {
		next := now.AddDate(0, 0, days)
		group.NextReviewDate = &next
	} else {
		group.NextReviewDate = nil
	}
	group.ReviewsCount++
	return group, true
}
