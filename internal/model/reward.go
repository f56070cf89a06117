package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WalletField string

const (
	PurchaseWallet     WalletField = "purchase_wallet"
	WithdrawableWallet WalletField = "withdrawable_wallet"
)

func (f WalletField) Valid() bool {
	return f == PurchaseWallet || f == WithdrawableWallet
}

// DefaultWalletFields maps each milestone type to the wallet it credits.
var DefaultWalletFields = map[MilestoneType]WalletField{
	CashbackMilestone:   WithdrawableWallet,
	MembershipMilestone: PurchaseWallet,
	FranchiseMilestone:  WithdrawableWallet,
}

// RewardLogEntry is the append-only proof of a credit.
type RewardLogEntry struct {
	ID                    uuid.UUID
	UserID                int64
	Type                  MilestoneType
	Amount                decimal.Decimal
	WalletField           WalletField
	MilestoneDefinitionID uuid.UUID
	ProgressRecordID      uuid.UUID
	MilestoneValue        decimal.Decimal
	CreatedAt             time.Time
}

type Wallet struct {
	UserID             int64
	PurchaseWallet     decimal.Decimal
	WithdrawableWallet decimal.Decimal
	UpdatedAt          time.Time
}

// Balance returns the balance held in field.
func (w Wallet) Balance(field WalletField) decimal.Decimal {
	if field == PurchaseWallet {
		return w.PurchaseWallet
	}
	return w.WithdrawableWallet
}

// MilestoneRun is the audit row written by every committed pass.
type MilestoneRun struct {
	ID                 uuid.UUID
	StartedAt          time.Time
	FinishedAt         time.Time
	UsersEvaluated     int
	RecordsOpened      int
	RecordsExpired     int
	Credits            int
	TotalCredited      decimal.Decimal
	ConfigurationSkips int
	CreditsByType      map[MilestoneType]int
}
