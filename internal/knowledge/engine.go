// Package knowledge answers free-form questions from the record store.
//
// A query is matched against record headings: topics named in the query are
// selected (the undefined topic always is), their headings are ranked by a
// similarity.Scorer, adjacent sibling phrasings are collapsed and the body of
// the best match is returned when it clears the relevance threshold.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ajitpratap0/lia/internal/models"
	"github.com/ajitpratap0/lia/internal/similarity"
	"github.com/ajitpratap0/lia/internal/store"
)

// TopN is the number of candidates requested from the scorer.
const TopN = 3

var (
	// ErrNoScorer is returned by Ask on an engine built without a scorer.
	ErrNoScorer = errors.New("no similarity scorer configured")

	// ErrInvalidRanking is returned when the scorer refers to a candidate
	// that was never sent.
	ErrInvalidRanking = errors.New("scorer returned an invalid ranking")

	// ErrAmbiguousTags is returned by Extract for a heading tagged both
	// command and script.
	ErrAmbiguousTags = errors.New("heading is tagged both command and script")
)

// Answer is the outcome of a query.
type Answer struct {
	// Matches holds the ranked headings, best first, with adjacent siblings
	// collapsed.
	Matches []models.RecordHeadingMatch `json:"matches"`
	// Body is the body of the best match, or "" when nothing is relevant.
	Body string `json:"body"`
	// Relevant reports whether the best match cleared the threshold.
	Relevant bool `json:"relevant"`
}

// Best returns the top match, if any.
func (a *Answer) Best() (models.RecordHeadingMatch, bool) {
	if a == nil || len(a.Matches) == 0 {
		return models.RecordHeadingMatch{}, false
	}
	return a.Matches[0], true
}

// Engine matches queries against the record store.
type Engine struct {
	records store.RecordStore
	scorer  similarity.Scorer
	logger  *slog.Logger
}

// NewEngine creates an engine. scorer may be nil for engines that only list
// and read records; Ask then fails with ErrNoScorer.
func NewEngine(records store.RecordStore, scorer similarity.Scorer, logger *slog.Logger) *Engine {
	return &Engine{
		records: records,
		scorer:  scorer,
		logger:  logger,
	}
}

// Ask ranks the headings of the topics relevant to query.
func (e *Engine) Ask(ctx context.Context, query string) (*Answer, error) {
	if e.scorer == nil {
		return nil, ErrNoScorer
	}

	topics, err := e.DetectTopics(ctx, query)
	if err != nil {
		return nil, err
	}

	pool, err := e.pool(ctx, topics)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		e.logger.Debug("no headings to rank", "topics", topics)
		return &Answer{Matches: []models.RecordHeadingMatch{}}, nil
	}

	texts := make([]string, len(pool))
	for i, h := range pool {
		texts[i] = h.Text
	}

	rankings, err := e.scorer.Rank(ctx, query, texts, TopN)
	if err != nil {
		return nil, fmt.Errorf("ranking headings: %w", err)
	}

	matches := make([]models.RecordHeadingMatch, 0, len(rankings))
	for _, r := range rankings {
		if r.Index < 0 || r.Index >= len(pool) {
			return nil, fmt.Errorf("%w: index %d with %d candidates", ErrInvalidRanking, r.Index, len(pool))
		}
		matches = append(matches, models.RecordHeadingMatch{Heading: pool[r.Index], Score: r.Score})
	}

	answer := &Answer{Matches: dedupSiblings(matches)}
	if len(matches) == 0 || !models.IsRelevant(matches[0].Score) {
		e.logger.Debug("no relevant heading", "query", query, "candidates", len(pool))
		return answer, nil
	}

	best := answer.Matches[0].Heading
	body, err := e.records.Body(ctx, best.Topic, best.ID)
	if err != nil {
		return nil, fmt.Errorf("reading body of %s:%d: %w", best.Topic, best.ID, err)
	}
	answer.Body = body
	answer.Relevant = true

	e.logger.Debug("answered query", "topic", best.Topic, "heading", best.ID, "score", matches[0].Score)
	return answer, nil
}

// DetectTopics returns the topics named as whole words in query, in store
// order, followed by the undefined topic.
func (e *Engine) DetectTopics(ctx context.Context, query string) ([]string, error) {
	all, err := e.records.Topics(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing topics: %w", err)
	}

	lower := strings.ToLower(query)
	selected := make([]string, 0, 2)
	for _, topic := range all {
		if topic == models.UndefinedTopic || topic == "" {
			continue
		}
		re, err := regexp.Compile(wholeWordPattern(strings.ToLower(topic)))
		if err != nil {
			return nil, fmt.Errorf("compiling pattern for topic %q: %w", topic, err)
		}
		if re.MatchString(lower) {
			selected = append(selected, topic)
		}
	}
	return append(selected, models.UndefinedTopic), nil
}

const (
	wordChar    = `[\p{L}\p{N}_]`
	nonWordChar = `[^\p{L}\p{N}_]`
)

// wholeWordPattern matches word as a whole word with Unicode-aware
// boundaries. RE2's \b only knows ASCII word characters. Like \b, an edge
// of word that is not itself a word character needs a word character next
// to it.
func wholeWordPattern(word string) string {
	first, _ := utf8.DecodeRuneInString(word)
	last, _ := utf8.DecodeLastRuneInString(word)

	start := `(?:^|` + nonWordChar + `)`
	if !isWordRune(first) {
		start = wordChar
	}
	end := `(?:$|` + nonWordChar + `)`
	if !isWordRune(last) {
		end = wordChar
	}
	return start + regexp.QuoteMeta(word) + end
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// pool concatenates the headings of topics. Topics that disappeared since
// they were listed contribute nothing.
func (e *Engine) pool(ctx context.Context, topics []string) ([]models.RecordHeading, error) {
	var pool []models.RecordHeading
	for _, topic := range topics {
		headings, err := e.records.Headings(ctx, topic)
		if errors.Is(err, store.ErrTopicNotFound) {
			e.logger.Debug("topic vanished, skipping", "topic", topic)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading headings of %q: %w", topic, err)
		}
		pool = append(pool, headings...)
	}
	return pool, nil
}

// dedupSiblings drops a match when it is a sibling phrasing of the match kept
// right before it. Non-adjacent siblings are kept.
func dedupSiblings(matches []models.RecordHeadingMatch) []models.RecordHeadingMatch {
	out := make([]models.RecordHeadingMatch, 0, len(matches))
	for _, m := range matches {
		if n := len(out); n > 0 {
			prev := out[n-1].Heading
			if prev.Topic == m.Heading.Topic && prev.IsAlternativeOf(m.Heading.ID) {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// ListTopics returns every topic.
func (e *Engine) ListTopics(ctx context.Context) ([]string, error) {
	return e.records.Topics(ctx)
}

// TopicExists reports whether topic is known.
func (e *Engine) TopicExists(ctx context.Context, topic string) (bool, error) {
	return e.records.TopicExists(ctx, topic)
}

// ListHeadingsForTopic returns the topic's headings sorted by text. Headings
// with equal text keep their file order.
func (e *Engine) ListHeadingsForTopic(ctx context.Context, topic string) ([]models.RecordHeading, error) {
	headings, err := e.records.Headings(ctx, topic)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(headings, func(i, j int) bool {
		return headings[i].Text < headings[j].Text
	})
	return headings, nil
}

// Body returns the body of the record owning the heading id.
func (e *Engine) Body(ctx context.Context, topic string, id int) (string, error) {
	return e.records.Body(ctx, topic, id)
}

// Commands returns the commands of the record owning the heading id.
func (e *Engine) Commands(ctx context.Context, topic string, id int) ([]string, error) {
	return e.records.Commands(ctx, topic, id)
}

// Scripts returns the code blocks of the record owning the heading id.
func (e *Engine) Scripts(ctx context.Context, topic string, id int) ([]string, error) {
	return e.records.Scripts(ctx, topic, id)
}

// RecordByIndex returns the index-th record of topic.
func (e *Engine) RecordByIndex(ctx context.Context, topic string, index int) (models.KnowledgeRecord, error) {
	return e.records.RecordByIndex(ctx, topic, index)
}

// Extract returns what a heading's tags say is worth copying: commands for
// command headings, whole scripts for script headings, nothing otherwise.
func (e *Engine) Extract(ctx context.Context, heading models.RecordHeading) ([]string, error) {
	switch cmd, script := heading.HasCommandTag(), heading.HasScriptTag(); {
	case cmd && script:
		return nil, fmt.Errorf("%s:%d: %w", heading.Topic, heading.ID, ErrAmbiguousTags)
	case cmd:
		return e.Commands(ctx, heading.Topic, heading.ID)
	case script:
		return e.Scripts(ctx, heading.Topic, heading.ID)
	default:
		return nil, nil
	}
}
