package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MilestoneType string

const (
	CashbackMilestone   MilestoneType = "CashbackMilestone"
	MembershipMilestone MilestoneType = "MembershipMilestone"
	FranchiseMilestone  MilestoneType = "FranchiseMilestone"
)

// MilestoneTypes is the fixed evaluation order of a pass.
var MilestoneTypes = []MilestoneType{
	CashbackMilestone,
	MembershipMilestone,
	FranchiseMilestone,
}

func (t MilestoneType) Valid() bool {
	switch t {
	case CashbackMilestone, MembershipMilestone, FranchiseMilestone:
		return true
	}
	return false
}

type DefinitionStatus string

const (
	DefinitionActive   DefinitionStatus = "active"
	DefinitionInactive DefinitionStatus = "inactive"
)

type MilestoneDefinition struct {
	ID            uuid.UUID
	Type          MilestoneType
	TargetValue   decimal.Decimal
	RewardAmount  decimal.Decimal
	TimeLimitDays int
	Status        DefinitionStatus
	CreatedAt     time.Time
}

// Bounded reports whether progress toward the definition is measured in a finite window.
func (d *MilestoneDefinition) Bounded() bool {
	return d.TimeLimitDays > 0
}

type ProgressStatus string

const (
	ProgressOpen      ProgressStatus = "open"
	ProgressCompleted ProgressStatus = "completed"
	ProgressExpired   ProgressStatus = "expired"
)

// ProgressRecord tracks one window of one user toward one definition. The
// definition values are copied in when the window is opened.
type ProgressRecord struct {
	ID                         uuid.UUID
	UserID                     int64
	MilestoneDefinitionID      uuid.UUID
	MilestoneType              MilestoneType
	MilestoneTargetValue       decimal.Decimal
	RewardAmountValue          decimal.Decimal
	TimeLimitDaysValue         int
	TrackingPeriodStart        time.Time
	TrackingPeriodEnd          time.Time
	CurrentAccumulatedValue    decimal.Decimal
	LastDataPointDateProcessed *time.Time
	Status                     ProgressStatus
	CompletedAt                *time.Time
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

func (p *ProgressRecord) IsCompleted() bool {
	return p.Status == ProgressCompleted
}

func (p *ProgressRecord) IsTerminal() bool {
	return p.Status == ProgressCompleted || p.Status == ProgressExpired
}

// Reached reports whether the accumulated value meets the copied target.
func (p *ProgressRecord) Reached() bool {
	return p.CurrentAccumulatedValue.GreaterThanOrEqual(p.MilestoneTargetValue)
}

// Delta is the progress contributed by source records in (since, asOf].
type Delta struct {
	Value      decimal.Decimal
	LatestDate *time.Time
}

// Later returns the later of two optional timestamps.
func Later(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}
