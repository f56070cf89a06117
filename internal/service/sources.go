package service

import (
	"context"
	"fmt"
	"time"

	"UD_milestone_rewards/internal/model"
)

// MilestoneDataSource computes the progress a subject made from source records
// timestamped in (since ?? windowStart, asOf]. Implementations are read-only.
type MilestoneDataSource interface {
	Type() model.MilestoneType
	ComputeDelta(ctx context.Context, reader LedgerReader, subjectID int64, windowStart time.Time, since *time.Time, asOf time.Time) (model.Delta, error)
}

// Sources selects the data source of a milestone type.
type Sources map[model.MilestoneType]MilestoneDataSource

func NewSources(sources ...MilestoneDataSource) Sources {
	s := make(Sources, len(sources))
	for _, src := range sources {
		s[src.Type()] = src
	}
	return s
}

func DefaultSources() Sources {
	return NewSources(CashbackDelta{}, MembershipReferralDelta{}, FranchiseDelta{})
}

func (s Sources) For(milestoneType model.MilestoneType) (MilestoneDataSource, error) {
	src, ok := s[milestoneType]
	if !ok {
		return nil, fmt.Errorf("%w: no data source for %s", ErrConfiguration, milestoneType)
	}
	return src, nil
}

func rangeStart(windowStart time.Time, since *time.Time) time.Time {
	if since != nil {
		return *since
	}
	return windowStart
}

// CashbackDelta sums the subject's delivered and paid orders.
type CashbackDelta struct{}

func (CashbackDelta) Type() model.MilestoneType {
	return model.CashbackMilestone
}

func (CashbackDelta) ComputeDelta(ctx context.Context, reader LedgerReader, subjectID int64, windowStart time.Time, since *time.Time, asOf time.Time) (model.Delta, error) {
	delta, err := reader.SumCompletedOrders(ctx, []int64{subjectID}, rangeStart(windowStart, since), asOf)
	if err != nil {
		return model.Delta{}, fmt.Errorf("%w: cashback delta for user %d: %w", ErrDataSource, subjectID, err)
	}
	return delta, nil
}

// MembershipReferralDelta counts completed memberships bought by users the
// subject referred.
type MembershipReferralDelta struct{}

func (MembershipReferralDelta) Type() model.MilestoneType {
	return model.MembershipMilestone
}

func (MembershipReferralDelta) ComputeDelta(ctx context.Context, reader LedgerReader, subjectID int64, windowStart time.Time, since *time.Time, asOf time.Time) (model.Delta, error) {
	delta, err := reader.CountReferredMemberships(ctx, subjectID, rangeStart(windowStart, since), asOf)
	if err != nil {
		return model.Delta{}, fmt.Errorf("%w: membership referral delta for user %d: %w", ErrDataSource, subjectID, err)
	}
	return delta, nil
}

// FranchiseDelta sums completed order totals and completed membership payments
// of every member of the franchise the subject administers.
type FranchiseDelta struct{}

func (FranchiseDelta) Type() model.MilestoneType {
	return model.FranchiseMilestone
}

func (FranchiseDelta) ComputeDelta(ctx context.Context, reader LedgerReader, subjectID int64, windowStart time.Time, since *time.Time, asOf time.Time) (model.Delta, error) {
	franchise, err := reader.GetFranchiseByAdmin(ctx, subjectID)
	if err != nil {
		return model.Delta{}, fmt.Errorf("%w: franchise of admin %d: %w", ErrDataSource, subjectID, err)
	}

	members, err := reader.ListFranchiseMembers(ctx, franchise.ID)
	if err != nil {
		return model.Delta{}, fmt.Errorf("%w: members of franchise %d: %w", ErrDataSource, franchise.ID, err)
	}

	from := rangeStart(windowStart, since)

	orders, err := reader.SumCompletedOrders(ctx, members, from, asOf)
	if err != nil {
		return model.Delta{}, fmt.Errorf("%w: franchise %d orders: %w", ErrDataSource, franchise.ID, err)
	}

	memberships, err := reader.SumCompletedMemberships(ctx, members, from, asOf)
	if err != nil {
		return model.Delta{}, fmt.Errorf("%w: franchise %d memberships: %w", ErrDataSource, franchise.ID, err)
	}

	return model.Delta{
		Value:      orders.Value.Add(memberships.Value),
		LatestDate: model.Later(orders.LatestDate, memberships.LatestDate),
	}, nil
}
