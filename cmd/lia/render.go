package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/ajitpratap0/lia/internal/knowledge"
	"github.com/ajitpratap0/lia/internal/models"
)

const dateLayout = "2006-01-02"

var (
	bold         = color.New(color.Bold)
	infoColor    = color.New(color.FgBlue, color.Bold)
	failColor    = color.New(color.FgRed, color.Bold)
	successColor = color.New(color.FgGreen, color.Bold)
)

// bandColor maps a score band to its display color.
func bandColor(band models.ScoreBand) *color.Color {
	switch band {
	case models.ScoreHigh:
		return color.New(color.FgGreen)
	case models.ScoreMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

// reviewsColor goes from red for a never reviewed group to green for a
// graduated one.
func reviewsColor(count int) *color.Color {
	switch count {
	case 0:
		return color.New(color.FgRed, color.Bold)
	case 1:
		return color.New(color.FgHiRed, color.Bold)
	case 2:
		return color.New(color.FgYellow, color.Bold)
	case 3:
		return color.New(color.FgHiGreen, color.Bold)
	default:
		return color.New(color.FgGreen, color.Bold)
	}
}

func printSeparator(w io.Writer) {
	fmt.Fprintln(w, infoColor.Sprint(strings.Repeat("━", 60)))
}

// printMatch prints one ranked heading. A positive n prefixes the line with
// its choice number.
func printMatch(w io.Writer, m models.RecordHeadingMatch, n int) {
	c := bandColor(m.Band())
	prefix := c.Sprint("●")
	if n > 0 {
		prefix = fmt.Sprintf("[%s]", c.Sprint(n))
	}
	fmt.Fprintf(w, "%s  %s - (%s in %s.md)\n",
		prefix, bold.Sprint(m.Heading.Text), c.Sprintf("%.2f", m.Score), m.Heading.Topic)
}

// alternatives returns the matches offered besides the answer: every match
// when nothing was relevant, the rest otherwise.
func alternatives(answer *knowledge.Answer) []models.RecordHeadingMatch {
	if answer == nil || len(answer.Matches) == 0 {
		return nil
	}
	if answer.Relevant {
		return answer.Matches[1:]
	}
	return answer.Matches
}

func printAnswer(w io.Writer, answer *knowledge.Answer) {
	best, ok := answer.Best()
	if !ok {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s  %s\n", failColor.Sprint("✘"), bold.Sprint("No results found, the knowledge base seems to be empty."))
		return
	}

	if answer.Relevant {
		printSeparator(w)
		printMatch(w, best, 0)
		printSeparator(w)
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.TrimRight(answer.Body, "\n"))
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s  %s\n", failColor.Sprint("✘"),
			bold.Sprintf("No relevant match found (similarity score below %.1f)", models.ScoreMedium.LowerBound()))
		fmt.Fprintln(w)
	}

	alts := alternatives(answer)
	if len(alts) == 0 {
		return
	}
	fmt.Fprintf(w, "%s  %s\n", infoColor.Sprint("≈"), bold.Sprint("Closest headings:"))
	for i, m := range alts {
		printMatch(w, m, i+1)
	}
	fmt.Fprintln(w)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(dateLayout)
}

// formatGroup renders a review group on one line.
func formatGroup(g models.ReviewGroup) string {
	c := reviewsColor(g.ReviewsCount)
	return fmt.Sprintf("%s - Last review (%s) - Next review (%s) - %s",
		bold.Sprint(g.Topic),
		formatDate(g.LastReviewDate),
		c.Sprint(formatDate(g.NextReviewDate)),
		c.Sprintf("%d review", g.ReviewsCount),
	)
}
