package models

import (
	"math"
	"slices"
)

// UndefinedTopic is the catch-all topic searched on every query.
const UndefinedTopic = "undefined"

// Well-known heading tags.
const (
	TagCommand = "command"
	TagScript  = "script"
)

// scoreTolerance is the maximum difference for two match scores to compare equal.
const scoreTolerance = 1e-6

// RecordHeading is one phrasing of a record heading within a topic.
type RecordHeading struct {
	Topic string   `json:"topic"`
	ID    int      `json:"id"`
	Text  string   `json:"text"`
	Tags  []string `json:"tags,omitempty"`
	// AlternativeHeadingsID holds the ids of the other phrasings of the same
	// record. It never contains ID itself.
	AlternativeHeadingsID []int `json:"alternative_headings_id,omitempty"`
}

// HasTag reports whether the heading carries the given tag.
func (h RecordHeading) HasTag(tag string) bool {
	return slices.Contains(h.Tags, tag)
}

// HasCommandTag reports whether the record body holds commands to copy.
func (h RecordHeading) HasCommandTag() bool {
	return h.HasTag(TagCommand)
}

// HasScriptTag reports whether the record body holds scripts to copy.
func (h RecordHeading) HasScriptTag() bool {
	return h.HasTag(TagScript)
}

// HasAlternativeHeadings reports whether the record has sibling phrasings.
func (h RecordHeading) HasAlternativeHeadings() bool {
	return len(h.AlternativeHeadingsID) > 0
}

// IsAlternativeOf reports whether id is a sibling of h.
func (h RecordHeading) IsAlternativeOf(id int) bool {
	return slices.Contains(h.AlternativeHeadingsID, id)
}

// Equal compares two headings field by field.
func (h RecordHeading) Equal(o RecordHeading) bool {
	return h.Topic == o.Topic &&
		h.ID == o.ID &&
		h.Text == o.Text &&
		slices.Equal(h.Tags, o.Tags) &&
		slices.Equal(h.AlternativeHeadingsID, o.AlternativeHeadingsID)
}

// RecordHeadingMatch is a heading paired with its similarity to a query.
type RecordHeadingMatch struct {
	Heading RecordHeading `json:"heading"`
	Score   float64       `json:"score"`
}

// Equal compares headings exactly and scores within a small tolerance, since
// scores come out of a model that is reproducible but not bit-exact.
func (m RecordHeadingMatch) Equal(o RecordHeadingMatch) bool {
	return m.Heading.Equal(o.Heading) && math.Abs(m.Score-o.Score) <= scoreTolerance
}

// Band returns the similarity band of the match score.
func (m RecordHeadingMatch) Band() ScoreBand {
	return BandFor(m.Score)
}

// KnowledgeRecord is a materialized record: its primary heading first, then
// the sibling phrasings, and the shared body.
type KnowledgeRecord struct {
	ID       int      `json:"id"`
	Headings []string `json:"headings"`
	Body     string   `json:"body"`
}

// PrimaryHeading returns the first heading of the record, or "" if none.
func (r KnowledgeRecord) PrimaryHeading() string {
	if len(r.Headings) == 0 {
		return ""
	}
	return r.Headings[0]
}
