package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const bashTopic = "# How to list files? #command\n" +
	"```bash\n" +
	"# long listing\n" +
	"ls -la\n" +
	"```\n" +
	"# How to check for the presence of a value in an array in Bash? #script\n" +
	"\n" +
	"# Does a bash array contain a value?\n" +
	"```bash\n" +
	"for v in \"${arr[@]}\"; do [[ $v == $x ]] && echo found; done\n" +
	"```\n" +
	"# Print a variable\n" +
	"echo $VAR\n"

func newTestFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bash.md"), []byte(bashTopic), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "undefined.md"), nil, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "net"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "net", "curl.md"), []byte("# Send a POST request\ncurl -X POST\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("# ignored\n"), 0o644))
	return NewFileStore(dir, testLogger()), dir
}

func TestFileStore_Topics(t *testing.T) {
	s, _ := newTestFileStore(t)
	ctx := context.Background()

	topics, err := s.Topics(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bash", "curl", "undefined"}, topics)

	ok, err := s.TopicExists(ctx, "curl")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TopicExists(ctx, "git")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_Headings(t *testing.T) {
	s, _ := newTestFileStore(t)
	headings, err := s.Headings(context.Background(), "bash")
	require.NoError(t, err)
	require.Len(t, headings, 4)

	assert.Equal(t, "bash", headings[0].Topic)
	assert.True(t, headings[0].HasCommandTag())
	assert.True(t, headings[1].HasScriptTag())
	assert.Equal(t, []int{8}, headings[1].AlternativeHeadingsID)
	assert.Equal(t, []int{6}, headings[2].AlternativeHeadingsID)
}

func TestFileStore_UnknownTopic(t *testing.T) {
	s, _ := newTestFileStore(t)
	_, err := s.Headings(context.Background(), "git")
	assert.ErrorIs(t, err, ErrTopicNotFound)
}

func TestFileStore_BodyCommandsScripts(t *testing.T) {
	s, _ := newTestFileStore(t)
	ctx := context.Background()

	cmds, err := s.Commands(ctx, "bash", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"ls -la"}, cmds)

	body, err := s.Body(ctx, "bash", 6)
	require.NoError(t, err)
	assert.Contains(t, body, "echo found")

	scripts, err := s.Scripts(ctx, "bash", 8)
	require.NoError(t, err)
	require.Len(t, scripts, 1)
	assert.Contains(t, scripts[0], "for v in")
}

func TestFileStore_RecordsCollapseSiblings(t *testing.T) {
	s, _ := newTestFileStore(t)
	ctx := context.Background()

	n, err := s.RecordCount(ctx, "bash")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rec, err := s.RecordByIndex(ctx, "bash", 1)
	require.NoError(t, err)
	assert.Equal(t, 6, rec.ID)
	assert.Equal(t, []string{
		"How to check for the presence of a value in an array in Bash?",
		"Does a bash array contain a value?",
	}, rec.Headings)
	assert.Contains(t, rec.Body, "echo found")

	rec, err = s.RecordByIndex(ctx, "bash", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Print a variable"}, rec.Headings)

	_, err = s.RecordByIndex(ctx, "bash", 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_EmptyTopic(t *testing.T) {
	s, _ := newTestFileStore(t)
	headings, err := s.Headings(context.Background(), "undefined")
	require.NoError(t, err)
	assert.Empty(t, headings)
}

func TestFileStore_WatchInvalidatesCache(t *testing.T) {
	s, dir := newTestFileStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.cached
	}, 2*time.Second, 10*time.Millisecond)

	n, err := s.RecordCount(ctx, "curl")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	path := filepath.Join(dir, "net", "curl.md")
	require.NoError(t, os.WriteFile(path, []byte("# Send a POST request\n\n# Download a file\ncurl -O url\n"), 0o644))

	assert.Eventually(t, func() bool {
		n, err := s.RecordCount(ctx, "curl")
		return err == nil && n == 1 && func() bool {
			hs, _ := s.Headings(ctx, "curl")
			return len(hs) == 2
		}()
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestFileStore_InvalidationDuringReadIsNotCached(t *testing.T) {
	s, dir := newTestFileStore(t)
	ctx := context.Background()

	s.mu.Lock()
	s.cached = true
	s.parsed = make(map[string]*topicFile)
	s.mu.Unlock()

	path := filepath.Join(dir, "net", "curl.md")
	fired := false
	s.afterRead = func(topic string) {
		if topic != "curl" || fired {
			return
		}
		fired = true
		// the file changes after it was read but before the result is cached
		require.NoError(t, os.WriteFile(path, []byte("# Send a POST request\n\n# Download a file\ncurl -O url\n"), 0o644))
		s.invalidate()
	}

	headings, err := s.Headings(ctx, "curl")
	require.NoError(t, err)
	assert.Len(t, headings, 1, "the in-flight read returns what it read")
	require.True(t, fired)

	headings, err = s.Headings(ctx, "curl")
	require.NoError(t, err)
	assert.Len(t, headings, 2, "the stale read must not have been cached")

	// without a concurrent change the result is cached
	require.NoError(t, os.WriteFile(path, []byte("# Only one\n"), 0o644))
	headings, err = s.Headings(ctx, "curl")
	require.NoError(t, err)
	assert.Len(t, headings, 2)
}
