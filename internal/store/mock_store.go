package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/ajitpratap0/lia/internal/markdown"
	"github.com/ajitpratap0/lia/internal/models"
)

// MockRecordStore is an in-memory RecordStore for testing.
type MockRecordStore struct {
	mu     sync.RWMutex
	topics map[string]*mockTopic
}

type mockTopic struct {
	headings []models.RecordHeading
	bodies   map[int]string // primary heading id -> body
	owners   map[int]int    // any heading id -> primary heading id
	nextID   int
}

// NewMockRecordStore creates an empty mock record store.
func NewMockRecordStore() *MockRecordStore {
	return &MockRecordStore{topics: make(map[string]*mockTopic)}
}

// AddTopic registers a topic with no records.
func (m *MockRecordStore) AddTopic(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topic(topic)
}

// AddRecord appends a record to topic. Each text is one phrasing of the
// heading; the first is the primary one. Ids are assigned like line numbers.
func (m *MockRecordStore) AddRecord(topic, body string, tags []string, texts ...string) []models.RecordHeading {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.topic(topic)
	if len(texts) == 0 {
		return nil
	}
	ids := make([]int, len(texts))
	for i := range texts {
		ids[i] = t.nextID
		t.nextID++
	}
	t.nextID++ // body line

	added := make([]models.RecordHeading, 0, len(texts))
	for i, text := range texts {
		var siblings []int
		for _, id := range ids {
			if id != ids[i] {
				siblings = append(siblings, id)
			}
		}
		h := models.RecordHeading{
			Topic:                 topic,
			ID:                    ids[i],
			Text:                  text,
			Tags:                  slices.Clone(tags),
			AlternativeHeadingsID: siblings,
		}
		t.headings = append(t.headings, h)
		t.owners[ids[i]] = ids[0]
		added = append(added, h)
	}
	t.bodies[ids[0]] = body
	return added
}

// AddHeading appends a raw heading, for tests that need hand-made sibling ids.
func (m *MockRecordStore) AddHeading(h models.RecordHeading, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.topic(h.Topic)
	t.headings = append(t.headings, h)
	t.owners[h.ID] = h.ID
	t.bodies[h.ID] = body
	if h.ID >= t.nextID {
		t.nextID = h.ID + 1
	}
}

func (m *MockRecordStore) topic(name string) *mockTopic {
	t, ok := m.topics[name]
	if !ok {
		t = &mockTopic{bodies: make(map[int]string), owners: make(map[int]int), nextID: 1}
		m.topics[name] = t
	}
	return t
}

func (m *MockRecordStore) get(topic string) (*mockTopic, error) {
	t, ok := m.topics[topic]
	if !ok {
		return nil, fmt.Errorf("%q: %w", topic, ErrTopicNotFound)
	}
	return t, nil
}

// Topics returns the registered topics, sorted.
func (m *MockRecordStore) Topics(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	topics := make([]string, 0, len(m.topics))
	for name := range m.topics {
		topics = append(topics, name)
	}
	sort.Strings(topics)
	return topics, nil
}

// TopicExists reports whether the topic was registered.
func (m *MockRecordStore) TopicExists(_ context.Context, topic string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.topics[topic]
	return ok, nil
}

// Headings returns a copy of the topic's headings.
func (m *MockRecordStore) Headings(_ context.Context, topic string) ([]models.RecordHeading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, err := m.get(topic)
	if err != nil {
		return nil, err
	}
	return slices.Clone(t.headings), nil
}

// Body returns the body of the record owning heading id.
func (m *MockRecordStore) Body(_ context.Context, topic string, id int) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, err := m.get(topic)
	if err != nil {
		return "", err
	}
	owner, ok := t.owners[id]
	if !ok {
		return "", fmt.Errorf("heading %d of %q: %w", id, topic, ErrNotFound)
	}
	return t.bodies[owner], nil
}

// Commands extracts commands from the record body.
func (m *MockRecordStore) Commands(ctx context.Context, topic string, id int) ([]string, error) {
	body, err := m.Body(ctx, topic, id)
	if err != nil {
		return nil, err
	}
	return markdown.Commands(body), nil
}

// Scripts extracts code blocks from the record body.
func (m *MockRecordStore) Scripts(ctx context.Context, topic string, id int) ([]string, error) {
	body, err := m.Body(ctx, topic, id)
	if err != nil {
		return nil, err
	}
	return markdown.Scripts(body), nil
}

// RecordCount returns the number of distinct records.
func (m *MockRecordStore) RecordCount(_ context.Context, topic string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, err := m.get(topic)
	if err != nil {
		return 0, err
	}
	return len(collapseSiblings(t.headings)), nil
}

// RecordByIndex returns the index-th distinct record.
func (m *MockRecordStore) RecordByIndex(_ context.Context, topic string, index int) (models.KnowledgeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, err := m.get(topic)
	if err != nil {
		return models.KnowledgeRecord{}, err
	}
	records := collapseSiblings(t.headings)
	if index < 0 || index >= len(records) {
		return models.KnowledgeRecord{}, fmt.Errorf("record %d of %q: %w", index, topic, ErrNotFound)
	}
	primary := records[index]
	texts := []string{primary.Text}
	for _, id := range primary.AlternativeHeadingsID {
		for _, h := range t.headings {
			if h.ID == id {
				texts = append(texts, h.Text)
			}
		}
	}
	return models.KnowledgeRecord{ID: primary.ID, Headings: texts, Body: t.bodies[t.owners[primary.ID]]}, nil
}

// MockReviewStore is an in-memory ReviewStore for testing.
type MockReviewStore struct {
	mu     sync.RWMutex
	groups []models.ReviewGroup
	nextID int64

	// SaveErr, when set, is returned by Save.
	SaveErr error
}

// NewMockReviewStore creates an empty mock review store.
func NewMockReviewStore() *MockReviewStore {
	return &MockReviewStore{nextID: 1}
}

// Insert stores a group as-is and assigns it an id.
func (m *MockReviewStore) Insert(g models.ReviewGroup) models.ReviewGroup {
	m.mu.Lock()
	defer m.mu.Unlock()
	g.ID = m.nextID
	m.nextID++
	m.groups = append(m.groups, cloneGroup(g))
	return g
}

// GroupByID returns the group with the given id.
func (m *MockReviewStore) GroupByID(_ context.Context, id int64) (models.ReviewGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.groups {
		if g.ID == id {
			return cloneGroup(g), nil
		}
	}
	return models.ReviewGroup{}, fmt.Errorf("review group %d: %w", id, ErrNotFound)
}

// Reconcile appends missing groups for topic.
func (m *MockReviewStore) Reconcile(_ context.Context, topic string, recordCount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.countLocked(topic)
	created := 0
	for index := existing; index < RequiredGroups(recordCount); index++ {
		m.groups = append(m.groups, models.ReviewGroup{ID: m.nextID, GroupIndex: index, Topic: topic})
		m.nextID++
		created++
	}
	return created, nil
}

// GroupsForTopic returns the topic's groups ordered by group index.
func (m *MockReviewStore) GroupsForTopic(_ context.Context, topic string) ([]models.ReviewGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ReviewGroup
	for _, g := range m.groups {
		if g.Topic == topic {
			out = append(out, cloneGroup(g))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].GroupIndex < out[j].GroupIndex })
	return out, nil
}

// AllGroups returns every group.
func (m *MockReviewStore) AllGroups(_ context.Context) ([]models.ReviewGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ReviewGroup, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, cloneGroup(g))
	}
	return out, nil
}

// Save overwrites the dates and count of an existing group.
func (m *MockReviewStore) Save(_ context.Context, group models.ReviewGroup) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.groups {
		if m.groups[i].ID == group.ID {
			updated := cloneGroup(group)
			m.groups[i].LastReviewDate = updated.LastReviewDate
			m.groups[i].NextReviewDate = updated.NextReviewDate
			m.groups[i].ReviewsCount = updated.ReviewsCount
			return nil
		}
	}
	return fmt.Errorf("review group %d: %w", group.ID, ErrNotFound)
}

// GroupCountForTopic returns the number of groups of a topic.
func (m *MockReviewStore) GroupCountForTopic(_ context.Context, topic string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countLocked(topic), nil
}

// Close is a no-op.
func (m *MockReviewStore) Close() error { return nil }

func (m *MockReviewStore) countLocked(topic string) int {
	n := 0
	for _, g := range m.groups {
		if g.Topic == topic {
			n++
		}
	}
	return n
}

// cloneGroup copies the date pointers so callers cannot mutate stored state.
func cloneGroup(g models.ReviewGroup) models.ReviewGroup {
	if g.LastReviewDate != nil {
		t := *g.LastReviewDate
		g.LastReviewDate = &t
	}
	if g.NextReviewDate != nil {
		t := *g.NextReviewDate
		g.NextReviewDate = &t
	}
	return g
}
