package models

// User is the display projection of a marketplace account.
type User struct {
	ID          int64   `db:"id" json:"id"`
	DisplayName string  `db:"display_name" json:"displayName"`
	Email       string  `db:"email" json:"-"`
	AvatarURL   *string `db:"avatar_url" json:"avatarUrl,omitempty"`
}
