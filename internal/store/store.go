package store

import (
	"context"
	"errors"

	"github.com/ajitpratap0/lia/internal/models"
)

// ErrNotFound is returned when a record or review group does not exist.
var ErrNotFound = errors.New("not found")

// ErrTopicNotFound is returned by record lookups on an unknown topic.
var ErrTopicNotFound = errors.New("topic not found")

// RecordStore is the read side of the knowledge base.
type RecordStore interface {
	// Topics returns every known topic, sorted.
	Topics(ctx context.Context) ([]string, error)

	// TopicExists reports whether the topic is known.
	TopicExists(ctx context.Context, topic string) (bool, error)

	// Headings returns every heading of a topic in file order, siblings included.
	Headings(ctx context.Context, topic string) ([]models.RecordHeading, error)

	// Body returns the body of the record owning the heading id.
	Body(ctx context.Context, topic string, id int) (string, error)

	// Commands returns the non-comment lines of the record's code blocks.
	Commands(ctx context.Context, topic string, id int) ([]string, error)

	// Scripts returns the full content of each of the record's code blocks.
	Scripts(ctx context.Context, topic string, id int) ([]string, error)

	// RecordCount returns the number of distinct records, siblings collapsed.
	RecordCount(ctx context.Context, topic string) (int, error)

	// RecordByIndex returns the index-th distinct record of the topic (0-based).
	RecordByIndex(ctx context.Context, topic string, index int) (models.KnowledgeRecord, error)
}

// ReviewStore persists review groups.
type ReviewStore interface {
	// GroupByID returns the group with the given id or ErrNotFound.
	GroupByID(ctx context.Context, id int64) (models.ReviewGroup, error)

	// Reconcile appends the groups a topic with recordCount records is
	// missing. It never removes or modifies existing groups.
	Reconcile(ctx context.Context, topic string, recordCount int) (int, error)

	// GroupsForTopic returns the topic's groups ordered by group index.
	GroupsForTopic(ctx context.Context, topic string) ([]models.ReviewGroup, error)

	// AllGroups returns every group.
	AllGroups(ctx context.Context) ([]models.ReviewGroup, error)

	// Save overwrites the dates and reviews count of an existing group.
	Save(ctx context.Context, group models.ReviewGroup) error

	// GroupCountForTopic returns the number of groups of a topic.
	GroupCountForTopic(ctx context.Context, topic string) (int, error)

	// Close releases resources.
	Close() error
}

// RequiredGroups returns how many review groups recordCount records need.
func RequiredGroups(recordCount int) int {
	if recordCount <= 0 {
		return 0
	}
	return (recordCount + models.ReviewGroupCapacity - 1) / models.ReviewGroupCapacity
}

// collapseSiblings keeps the first heading of each sibling block.
func collapseSiblings(headings []models.RecordHeading) []models.RecordHeading {
	seen := make(map[int]struct{})
	out := make([]models.RecordHeading, 0, len(headings))
	for _, h := range headings {
		if _, ok := seen[h.ID]; ok {
			continue
		}
		out = append(out, h)
		for _, id := range h.AlternativeHeadingsID {
			seen[id] = struct{}{}
		}
	}
	return out
}
