package models

import "time"

type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleStaff  Role = "STAFF"
	RoleViewer Role = "VIEWER"
)

type MembershipStatus string

const (
	StatusActive   MembershipStatus = "ACTIVE"
	StatusInvited  MembershipStatus = "INVITED"
	StatusInactive MembershipStatus = "INACTIVE"
)

type Shop struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Address   string    `json:"address" db:"address"`
	IsActive  bool      `json:"isActive" db:"is_active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// ShopUser is the membership row that gates access to a shop.
type ShopUser struct {
	ID       int64            `json:"id" db:"id"`
	ShopID   int64            `json:"shopId" db:"shop_id"`
	UserID   int64            `json:"userId" db:"user_id"`
	Role     Role             `json:"role" db:"role"`
	Status   MembershipStatus `json:"status" db:"status"`
	JoinedAt time.Time        `json:"joinedAt" db:"joined_at"`
}

// ShopMember is a membership joined with the member's profile.
type ShopMember struct {
	ShopUser
	UserName  string `json:"userName" db:"user_name"`
	UserEmail string `json:"userEmail" db:"user_email"`
	UserPhone string `json:"userPhone" db:"user_phone"`
}
