package models

import (
	"time"
)

type User struct {
	UserID      int        `gorm:"primaryKey;column:user_id" json:"user_id"`
	Prefix      *string    `gorm:"column:prefix" json:"prefix,omitempty"`
	UserFname   string     `gorm:"column:user_fname" json:"user_fname"`
	UserLname   string     `gorm:"column:user_lname" json:"user_lname"`
	Email       string     `gorm:"column:email;unique" json:"email"`
	Password    string     `gorm:"column:password" json:"-"`
	Affiliation *string    `gorm:"column:affiliation" json:"affiliation,omitempty"`
	Country     *string    `gorm:"column:country" json:"country,omitempty"`
	Phone       *string    `gorm:"column:phone" json:"phone,omitempty"`
	RoleID      int        `gorm:"column:role_id" json:"role_id"`
	CreateAt    *time.Time `gorm:"column:create_at" json:"create_at"`
	UpdateAt    *time.Time `gorm:"column:update_at" json:"update_at"`
	DeleteAt    *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`

	// Relations
	Role Role `gorm:"foreignKey:RoleID" json:"role,omitempty"`
}

type Role struct {
	RoleID   int        `gorm:"primaryKey;column:role_id" json:"role_id"`
	Role     string     `gorm:"column:role" json:"role"`
	CreateAt *time.Time `gorm:"column:create_at" json:"create_at"`
	UpdateAt *time.Time `gorm:"column:update_at" json:"update_at"`
	DeleteAt *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`
}

// FullName joins prefix and names the way they appear on letters.
func (u *User) FullName() string {
	name := u.UserFname + " " + u.UserLname
	if u.Prefix != nil && *u.Prefix != "" {
		name = *u.Prefix + " " + name
	}
	return name
}

// TableName overrides
func (User) TableName() string {
	return "users"
}

func (Role) TableName() string {
	return "roles"
}
