package models

// User holds the collaborator-owned user data the chat core reads: names for
// enrichment, push tokens for out-of-band delivery and the rating the review
// trigger writes back.
type User struct {
	ID        int     `db:"id" json:"id"`
	Name      string  `db:"name" json:"name"`
	Email     string  `db:"email" json:"email"`
	PushToken *string `db:"push_token" json:"-"`
	Rating    float64 `db:"rating" json:"rating"`
}

// UserPreview is the compact user reference embedded in DTOs.
type UserPreview struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Preview converts a user to its compact form.
func (u User) Preview() UserPreview {
	return UserPreview{ID: u.ID, Name: u.Name}
}
