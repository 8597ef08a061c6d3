package model

import "time"

// User is a directory record. The messaging core reads it to resolve
// participants and never modifies it; accounts are managed elsewhere.
type User struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	ProfilePictureURL string    `json:"profile_picture_url"`
	CreatedAt         time.Time `json:"created_at"`
}

type UserPublic struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	ProfilePictureURL string `json:"profile_picture_url"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:                u.ID,
		Username:          u.Username,
		ProfilePictureURL: u.ProfilePictureURL,
	}
}
