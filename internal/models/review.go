package models

import "time"

// ReviewGroupCapacity is the number of records per review group. Only the
// last group of a topic may hold fewer.
const ReviewGroupCapacity = 7

// MaxReviewsCount is the reviews count of a graduated group.
const MaxReviewsCount = 4

// ReviewGroup is a fixed-capacity slice of a topic's records scheduled for
// spaced repetition.
type ReviewGroup struct {
	ID             int64      `json:"id"`
	GroupIndex     int        `json:"group_index"`
	Topic          string     `json:"topic"`
	LastReviewDate *time.Time `json:"last_review_date,omitempty"`
	NextReviewDate *time.Time `json:"next_review_date,omitempty"`
	ReviewsCount   int        `json:"reviews_count"`
}

// IsGraduated reports whether the group went through every review stage.
func (g ReviewGroup) IsGraduated() bool {
	return g.ReviewsCount >= MaxReviewsCount
}

// IsDue reports whether the next review date is on or before the calendar
// day of now. A group without a next review date is never due.
func (g ReviewGroup) IsDue(now time.Time) bool {
	if g.NextReviewDate == nil {
		return false
	}
	return !dateOf(*g.NextReviewDate, now.Location()).After(dateOf(now, now.Location()))
}

func dateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
