package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// prompter reads one answer per line.
type prompter struct {
	r *bufio.Reader
	w io.Writer
}

func newPrompter(r io.Reader, w io.Writer) *prompter {
	return &prompter{r: bufio.NewReader(r), w: w}
}

// prompt prints label and returns the trimmed line typed by the user. It
// returns io.EOF once input is exhausted.
func (p *prompter) prompt(label string) (string, error) {
	fmt.Fprintf(p.w, "%s ", label)
	line, err := p.r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func isQuit(s string) bool {
	switch strings.ToLower(s) {
	case "q", "quit", "exit":
		return true
	}
	return false
}

// history appends queries to a file in the prompt_toolkit FileHistory
// format, so files written by earlier lia versions stay readable.
type history struct {
	path string
	now  func() time.Time
}

func newHistory(path string) *history {
	return &history{path: path, now: time.Now}
}

// Append records one query. Multi-line queries keep every line.
func (h *history) Append(query string) error {
	if h == nil || h.path == "" {
		return nil
	}
	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer func() { _ = f.Close() }()

	var b strings.Builder
	fmt.Fprintf(&b, "\n# %s\n", h.now().Format("2006-01-02 15:04:05.000000"))
	for _, line := range strings.Split(query, "\n") {
		b.WriteString("+" + line + "\n")
	}
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	return nil
}
