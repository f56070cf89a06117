package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const RoleFranchiseAdmin = "franchise_admin"

type User struct {
	ID       int64
	ParentID *int64
	Roles    []string
	JoinedAt time.Time
}

func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type Franchise struct {
	ID      int64
	AdminID int64
	Name    string
}

const (
	OrderStatusDelivered   = "delivered"
	PaymentStatusCompleted = "completed"
)

type Order struct {
	ID            int64
	UserID        int64
	Status        string
	PaymentStatus string
	TotalAmount   decimal.Decimal
	CreatedAt     time.Time
}

type Membership struct {
	ID                int64
	UserID            int64
	ReferringParentID *int64
	Completed         bool
	AmountPaid        decimal.Decimal
	PurchasedAt       time.Time
}
