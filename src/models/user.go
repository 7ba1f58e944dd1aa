package models

import (
	"time"
)

type User struct {
	ID int `db:"id"`

	Username string `db:"username"`
	Password string `db:"password"`
	Email    string `db:"email"`

	DateJoined time.Time  `db:"date_joined"`
	LastSeen   *time.Time `db:"last_seen"`

	IsActive    bool `db:"is_active"`
	IsStaff     bool `db:"is_staff"`
	IsModerator bool `db:"is_moderator"`
}

// CanModerate is nil-safe so anonymous visitors can be passed around as a nil *User.
func (u *User) CanModerate() bool {
	return u != nil && (u.IsStaff || u.IsModerator)
}

func (u *User) IsAuthenticated() bool {
	return u != nil
}

type Group struct {
	ID   int    `db:"id"`
	Name string `db:"name"`
}
