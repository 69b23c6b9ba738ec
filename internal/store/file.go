package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ajitpratap0/lia/internal/markdown"
	"github.com/ajitpratap0/lia/internal/models"
)

const topicExt = ".md"

// FileStore implements RecordStore over a directory of markdown files, one
// file per topic. Files found in sub-directories are topics too.
type FileStore struct {
	dataDir string
	logger  *slog.Logger

	mu     sync.RWMutex
	cached bool
	gen    uint64            // bumped by invalidate
	paths  map[string]string // topic -> file path, valid while cached
	parsed map[string]*topicFile

	afterRead func(topic string) // test hook, runs between reading and caching
}

// topicFile is a parsed topic file.
type topicFile struct {
	content  string
	headings []markdown.Heading
}

// NewFileStore creates a store reading topics from dataDir.
func NewFileStore(dataDir string, logger *slog.Logger) *FileStore {
	return &FileStore{
		dataDir: dataDir,
		logger:  logger,
	}
}

// DataDir returns the directory holding the topic files.
func (s *FileStore) DataDir() string {
	return s.dataDir
}

// Topics returns the names of all *.md files under the data directory.
func (s *FileStore) Topics(_ context.Context) ([]string, error) {
	paths, err := s.topicPaths()
	if err != nil {
		return nil, err
	}
	topics := make([]string, 0, len(paths))
	for t := range paths {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics, nil
}

// TopicExists reports whether a file exists for the topic.
func (s *FileStore) TopicExists(_ context.Context, topic string) (bool, error) {
	paths, err := s.topicPaths()
	if err != nil {
		return false, err
	}
	_, ok := paths[topic]
	return ok, nil
}

// Headings returns all level-1 headings of a topic in file order.
func (s *FileStore) Headings(_ context.Context, topic string) ([]models.RecordHeading, error) {
	tf, err := s.load(topic)
	if err != nil {
		return nil, err
	}
	return toRecordHeadings(topic, tf.headings), nil
}

// Body returns the section below the heading on line id.
func (s *FileStore) Body(_ context.Context, topic string, id int) (string, error) {
	tf, err := s.load(topic)
	if err != nil {
		return "", err
	}
	return markdown.Section(tf.content, id), nil
}

// Commands returns the commands found in the record's code blocks.
func (s *FileStore) Commands(ctx context.Context, topic string, id int) ([]string, error) {
	body, err := s.Body(ctx, topic, id)
	if err != nil {
		return nil, err
	}
	return markdown.Commands(body), nil
}

// Scripts returns the record's code blocks.
func (s *FileStore) Scripts(ctx context.Context, topic string, id int) ([]string, error) {
	body, err := s.Body(ctx, topic, id)
	if err != nil {
		return nil, err
	}
	return markdown.Scripts(body), nil
}

// RecordCount returns the number of distinct records of a topic.
func (s *FileStore) RecordCount(ctx context.Context, topic string) (int, error) {
	headings, err := s.Headings(ctx, topic)
	if err != nil {
		return 0, err
	}
	return len(collapseSiblings(headings)), nil
}

// RecordByIndex returns the index-th distinct record of a topic.
func (s *FileStore) RecordByIndex(_ context.Context, topic string, index int) (models.KnowledgeRecord, error) {
	tf, err := s.load(topic)
	if err != nil {
		return models.KnowledgeRecord{}, err
	}
	records := collapseSiblings(toRecordHeadings(topic, tf.headings))
	if index < 0 || index >= len(records) {
		return models.KnowledgeRecord{}, fmt.Errorf("record %d of topic %q: %w", index, topic, ErrNotFound)
	}

	primary := records[index]
	texts := []string{primary.Text}
	for _, id := range primary.AlternativeHeadingsID {
		h, err := markdown.HeadingAt(tf.content, id)
		if err != nil {
			return models.KnowledgeRecord{}, fmt.Errorf("reading sibling heading: %w", err)
		}
		texts = append(texts, h.Text)
	}

	return models.KnowledgeRecord{
		ID:       primary.ID,
		Headings: texts,
		Body:     markdown.Section(tf.content, primary.ID),
	}, nil
}

// load returns the parsed file of a topic, from cache when the store is
// watching the data directory.
func (s *FileStore) load(topic string) (*topicFile, error) {
	s.mu.RLock()
	if s.cached {
		if tf, ok := s.parsed[topic]; ok {
			s.mu.RUnlock()
			return tf, nil
		}
	}
	gen := s.gen
	s.mu.RUnlock()

	paths, err := s.topicPaths()
	if err != nil {
		return nil, err
	}
	path, ok := paths[topic]
	if !ok {
		return nil, fmt.Errorf("%q: %w", topic, ErrTopicNotFound)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%q: %w", topic, ErrTopicNotFound)
		}
		return nil, fmt.Errorf("reading topic file %s: %w", path, err)
	}
	if s.afterRead != nil {
		s.afterRead(topic)
	}

	content := string(raw)
	tf := &topicFile{content: content, headings: markdown.ParseHeadings(content)}

	s.mu.Lock()
	if s.cached && s.gen == gen {
		s.parsed[topic] = tf
	}
	s.mu.Unlock()

	s.logger.Debug("loaded topic file", "topic", topic, "headings", len(tf.headings))
	return tf, nil
}

// topicPaths maps every topic to its file. When two files share a name the
// one with the lexically smallest path wins.
func (s *FileStore) topicPaths() (map[string]string, error) {
	s.mu.RLock()
	if s.cached && s.paths != nil {
		paths := s.paths
		s.mu.RUnlock()
		return paths, nil
	}
	s.mu.RUnlock()

	s.mu.RLock()
	gen := s.gen
	s.mu.RUnlock()

	paths := make(map[string]string)
	err := filepath.WalkDir(s.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), topicExt) {
			return nil
		}
		topic := strings.TrimSuffix(d.Name(), topicExt)
		if existing, ok := paths[topic]; !ok || path < existing {
			paths[topic] = path
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking data dir %s: %w", s.dataDir, err)
	}

	s.mu.Lock()
	if s.cached && s.gen == gen {
		s.paths = paths
	}
	s.mu.Unlock()
	return paths, nil
}

// invalidate drops every cached topic.
func (s *FileStore) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.paths = nil
	s.parsed = make(map[string]*topicFile)
}

func toRecordHeadings(topic string, headings []markdown.Heading) []models.RecordHeading {
	out := make([]models.RecordHeading, 0, len(headings))
	for _, h := range headings {
		out = append(out, models.RecordHeading{
			Topic:                 topic,
			ID:                    h.Line,
			Text:                  h.Text,
			Tags:                  h.Tags,
			AlternativeHeadingsID: h.Siblings,
		})
	}
	return out
}
