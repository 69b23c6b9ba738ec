package knowledge_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/lia/internal/knowledge"
	"github.com/ajitpratap0/lia/internal/models"
	"github.com/ajitpratap0/lia/internal/similarity"
	"github.com/ajitpratap0/lia/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedScorer returns fixed rankings and records what it was asked.
type scriptedScorer struct {
	rankings   []similarity.Ranking
	err        error
	calls      int
	candidates []string
	topN       int
}

func (s *scriptedScorer) Rank(_ context.Context, _ string, candidates []string, topN int) ([]similarity.Ranking, error) {
	s.calls++
	s.candidates = candidates
	s.topN = topN
	return s.rankings, s.err
}

func (s *scriptedScorer) Start(context.Context) error { return nil }
func (s *scriptedScorer) Stop(context.Context) error { return nil }
func (s *scriptedScorer) IsRunning() bool { return true }

func newRecords() *store.MockRecordStore {
	m := store.NewMockRecordStore()
	m.AddRecord("bash", "```bash\nls -la\n```\n", []string{models.TagCommand}, "List files", "Show directory content")
	m.AddRecord("bash", "```bash\nfor f in *; do echo $f; done\n```\n", []string{models.TagScript}, "Loop over files")
	m.AddRecord("curl", "curl -X POST url\n", nil, "Send a POST request")
	m.AddRecord("undefined", "ssh-keygen -t ed25519\n", nil, "Create an SSH key")
	return m
}

func TestAsk_DetectsTopicsAndPoolsHeadings(t *testing.T) {
	scorer := &scriptedScorer{rankings: []similarity.Ranking{{Index: 0, Score: 0.9}}}
	e := knowledge.NewEngine(newRecords(), scorer, quietLogger())

	answer, err := e.Ask(context.Background(), "how to list files in BASH")
	require.NoError(t, err)

	assert.Equal(t, []string{"List files", "Show directory content", "Loop over files", "Create an SSH key"}, scorer.candidates)
	assert.Equal(t, knowledge.TopN, scorer.topN)
	require.Len(t, answer.Matches, 1)
	assert.Equal(t, "bash", answer.Matches[0].Heading.Topic)
	assert.True(t, answer.Relevant)
	assert.Contains(t, answer.Body, "ls -la")
}

func TestDetectTopics(t *testing.T) {
	e := knowledge.NewEngine(newRecords(), nil, quietLogger())
	ctx := context.Background()

	cases := []struct {
		query string
		want  []string
	}{
		{"list files", []string{"undefined"}},
		{"bash loop", []string{"bash", "undefined"}},
		{"bashful curl", []string{"curl", "undefined"}},
		{"curl from bash", []string{"bash", "curl", "undefined"}},
		{"anything undefined here", []string{"undefined"}},
		{"CURL?", []string{"curl", "undefined"}},
	}
	for _, tc := range cases {
		got, err := e.DetectTopics(ctx, tc.query)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.query)
	}
}

func TestDetectTopics_UnicodeBoundaries(t *testing.T) {
	records := store.NewMockRecordStore()
	records.AddTopic("café")
	records.AddTopic("c++")
	records.AddTopic("undefined")
	e := knowledge.NewEngine(records, nil, quietLogger())
	ctx := context.Background()

	cases := []struct {
		query string
		want  []string
	}{
		{"commander un café", []string{"café", "undefined"}},
		{"les cafés du coin", []string{"undefined"}},
		{"écafé", []string{"undefined"}},
		{"Café, noir", []string{"café", "undefined"}},
		{"templates in c++ code", []string{"undefined"}},
		{"c++x", []string{"c++", "undefined"}},
	}
	for _, tc := range cases {
		got, err := e.DetectTopics(ctx, tc.query)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.query)
	}
}

func TestAsk_EmptyPoolSkipsScorer(t *testing.T) {
	records := store.NewMockRecordStore()
	records.AddTopic("undefined")
	scorer := &scriptedScorer{}
	e := knowledge.NewEngine(records, scorer, quietLogger())

	answer, err := e.Ask(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, answer.Matches)
	assert.Empty(t, answer.Body)
	assert.False(t, answer.Relevant)
	assert.Zero(t, scorer.calls)
}

func TestAsk_MissingUndefinedTopicIsSkipped(t *testing.T) {
	records := store.NewMockRecordStore()
	records.AddRecord("git", "git branch -d x\n", nil, "Delete a branch")
	scorer := &scriptedScorer{rankings: []similarity.Ranking{{Index: 0, Score: 0.95}}}
	e := knowledge.NewEngine(records, scorer, quietLogger())

	answer, err := e.Ask(context.Background(), "git delete branch")
	require.NoError(t, err)
	assert.Equal(t, []string{"Delete a branch"}, scorer.candidates)
	assert.Equal(t, "git branch -d x\n", answer.Body)
}

func TestAsk_NoScorer(t *testing.T) {
	e := knowledge.NewEngine(newRecords(), nil, quietLogger())
	_, err := e.Ask(context.Background(), "bash")
	assert.ErrorIs(t, err, knowledge.ErrNoScorer)
}

func TestAsk_ScorerErrorIsWrapped(t *testing.T) {
	boom := errors.New("worker gone")
	scorer := &scriptedScorer{err: boom}
	e := knowledge.NewEngine(newRecords(), scorer, quietLogger())

	_, err := e.Ask(context.Background(), "bash")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, scorer.calls)
}

func TestAsk_InvalidRankingIndex(t *testing.T) {
	scorer := &scriptedScorer{rankings: []similarity.Ranking{{Index: 99, Score: 0.9}}}
	e := knowledge.NewEngine(newRecords(), scorer, quietLogger())

	_, err := e.Ask(context.Background(), "bash")
	assert.ErrorIs(t, err, knowledge.ErrInvalidRanking)
}

// siblingRecords builds headings A(1) and B(2) as siblings and C(4) unrelated.
func siblingRecords() *store.MockRecordStore {
	m := store.NewMockRecordStore()
	m.AddRecord("undefined", "body AB\n", nil, "A", "B")
	m.AddRecord("undefined", "body C\n", nil, "C")
	return m
}

func TestAsk_DedupsAdjacentSiblings(t *testing.T) {
	scorer := &scriptedScorer{rankings: []similarity.Ranking{
		{Index: 0, Score: 0.9},  // A
		{Index: 1, Score: 0.85}, // B, sibling of A
		{Index: 2, Score: 0.5},  // C
	}}
	e := knowledge.NewEngine(siblingRecords(), scorer, quietLogger())

	answer, err := e.Ask(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, answer.Matches, 2)
	assert.Equal(t, "A", answer.Matches[0].Heading.Text)
	assert.Equal(t, "C", answer.Matches[1].Heading.Text)
	assert.Equal(t, "body AB\n", answer.Body)
}

func TestAsk_KeepsNonAdjacentSiblings(t *testing.T) {
	scorer := &scriptedScorer{rankings: []similarity.Ranking{
		{Index: 0, Score: 0.9}, // A
		{Index: 2, Score: 0.8}, // C
		{Index: 1, Score: 0.7}, // B, sibling of A but not adjacent
	}}
	e := knowledge.NewEngine(siblingRecords(), scorer, quietLogger())

	answer, err := e.Ask(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, answer.Matches, 3)
	assert.Equal(t, []string{"A", "C", "B"}, []string{
		answer.Matches[0].Heading.Text, answer.Matches[1].Heading.Text, answer.Matches[2].Heading.Text,
	})
}

func TestAsk_SameIDInOtherTopicIsNotASibling(t *testing.T) {
	records := store.NewMockRecordStore()
	records.AddRecord("bash", "bash body\n", nil, "A", "B")
	records.AddHeading(models.RecordHeading{Topic: "undefined", ID: 2, Text: "Z"}, "z body\n")
	scorer := &scriptedScorer{rankings: []similarity.Ranking{
		{Index: 0, Score: 0.9}, // bash A, siblings [2]
		{Index: 2, Score: 0.8}, // undefined Z, id 2
	}}
	e := knowledge.NewEngine(records, scorer, quietLogger())

	answer, err := e.Ask(context.Background(), "bash")
	require.NoError(t, err)
	assert.Len(t, answer.Matches, 2)
}

func TestAsk_RelevanceGate(t *testing.T) {
	cases := []struct {
		score    float64
		relevant bool
	}{
		{0.59, false},
		{0.6, true},
		{0.8, true},
		{0.0, false},
	}
	for _, tc := range cases {
		scorer := &scriptedScorer{rankings: []similarity.Ranking{{Index: 2, Score: tc.score}}}
		e := knowledge.NewEngine(siblingRecords(), scorer, quietLogger())

		answer, err := e.Ask(context.Background(), "q")
		require.NoError(t, err)
		require.Len(t, answer.Matches, 1, "matches are returned below the gate too")
		assert.Equal(t, tc.relevant, answer.Relevant, "score %v", tc.score)
		if tc.relevant {
			assert.Equal(t, "body C\n", answer.Body)
		} else {
			assert.Empty(t, answer.Body)
		}
	}
}

func TestAsk_NoRankings(t *testing.T) {
	scorer := &scriptedScorer{rankings: []similarity.Ranking{}}
	e := knowledge.NewEngine(siblingRecords(), scorer, quietLogger())

	answer, err := e.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, answer.Matches)
	assert.False(t, answer.Relevant)
	_, ok := answer.Best()
	assert.False(t, ok)
}

func TestListHeadingsForTopic_SortedByText(t *testing.T) {
	records := store.NewMockRecordStore()
	records.AddRecord("git", "", nil, "rebase")
	records.AddRecord("git", "", nil, "amend")
	records.AddRecord("git", "first", nil, "cherry-pick")
	records.AddRecord("git", "second", nil, "cherry-pick")
	e := knowledge.NewEngine(records, nil, quietLogger())

	headings, err := e.ListHeadingsForTopic(context.Background(), "git")
	require.NoError(t, err)
	require.Len(t, headings, 4)
	assert.Equal(t, "amend", headings[0].Text)
	assert.Equal(t, "cherry-pick", headings[1].Text)
	assert.Equal(t, "cherry-pick", headings[2].Text)
	assert.Less(t, headings[1].ID, headings[2].ID, "stable for equal text")
	assert.Equal(t, "rebase", headings[3].Text)

	_, err = e.ListHeadingsForTopic(context.Background(), "svn")
	assert.ErrorIs(t, err, store.ErrTopicNotFound)
}

func TestExtract(t *testing.T) {
	records := newRecords()
	e := knowledge.NewEngine(records, nil, quietLogger())
	ctx := context.Background()

	headings, err := records.Headings(ctx, "bash")
	require.NoError(t, err)

	cmds, err := e.Extract(ctx, headings[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"ls -la"}, cmds)

	scripts, err := e.Extract(ctx, headings[2])
	require.NoError(t, err)
	assert.Equal(t, []string{"for f in *; do echo $f; done\n"}, scripts)

	plain, err := e.Extract(ctx, models.RecordHeading{Topic: "curl", ID: 1})
	require.NoError(t, err)
	assert.Nil(t, plain)

	both := headings[0]
	both.Tags = []string{models.TagCommand, models.TagScript}
	_, err = e.Extract(ctx, both)
	assert.ErrorIs(t, err, knowledge.ErrAmbiguousTags)
}

func TestDelegates(t *testing.T) {
	e := knowledge.NewEngine(newRecords(), nil, quietLogger())
	ctx := context.Background()

	topics, err := e.ListTopics(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bash", "curl", "undefined"}, topics)

	ok, err := e.TopicExists(ctx, "curl")
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := e.RecordByIndex(ctx, "bash", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"List files", "Show directory content"}, rec.Headings)

	_, err = e.RecordByIndex(ctx, "bash", 5)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
