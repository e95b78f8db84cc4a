package models

// Listing is the catalog item a two-party chat is about.
type Listing struct {
	ID      int     `db:"id" json:"id"`
	OwnerID int     `db:"owner_id" json:"owner_id"`
	Title   string  `db:"title" json:"title"`
	Photo   *string `db:"photo" json:"photo"`
}

// ListingPreview is the compact listing reference embedded in DTOs.
type ListingPreview struct {
	ID    int     `json:"id"`
	Title string  `json:"title"`
	Photo *string `json:"photo"`
}

// Preview converts a listing to its compact form.
func (l Listing) Preview() ListingPreview {
	return ListingPreview{ID: l.ID, Title: l.Title, Photo: l.Photo}
}
