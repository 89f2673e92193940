package contacts

import "time"

// Contact is a chat peer, keyed by its external number. Group conversations
// get a contact of their own with IsGroup set.
type Contact struct {
	ID        string    `json:"id"`
	Number    string    `json:"number"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url"`
	IsGroup   bool      `json:"is_group"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpsertParams carries the profile fields refreshed on every sighting.
type UpsertParams struct {
	Number    string
	Name      string
	AvatarURL string
	IsGroup   bool
}
