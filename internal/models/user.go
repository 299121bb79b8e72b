package models

import "time"

type User struct {
	ID        int64     `json:"id" db:"id" example:"1"`
	Name      string    `json:"name" db:"name" example:"Rahim Uddin"`
	Email     string    `json:"email" db:"email" example:"user@example.com"`
	Phone     string    `json:"phone" db:"phone" example:"+8801712345678"`
	Password  string    `json:"-" db:"password"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
