package models

import "time"

// Review is the external trigger record for the invite engine. Root reviews
// (ParentID nil) carry a rating; replies do not.
type Review struct {
	ID        int       `db:"id" json:"id"`
	AuthorID  int       `db:"author_id" json:"author_id"`
	TargetID  int       `db:"target_id" json:"target_id"`
	ListingID int       `db:"listing_id" json:"listing_id"`
	Text      string    `db:"text" json:"text"`
	Rating    *int      `db:"rating" json:"rating"`
	ParentID  *int      `db:"parent_id" json:"parent_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsRoot reports whether the review starts a thread (as opposed to a reply).
func (r Review) IsRoot() bool {
	return r.ParentID == nil
}

// ReviewWithAuthor is the list view of a review with its author name and
// grouped replies.
type ReviewWithAuthor struct {
	Review
	AuthorName string             `db:"author_name" json:"author_name"`
	Replies    []ReviewWithAuthor `json:"replies,omitempty"`
}
