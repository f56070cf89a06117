package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"UD_milestone_rewards/internal/model"
	"UD_milestone_rewards/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memoryState is an in-memory copy of the tables a pass reads and writes.
type memoryState struct {
	users       []model.User
	definitions []model.MilestoneDefinition
	orders      []model.Order
	memberships []model.Membership
	franchises  []model.Franchise
	members     map[int64][]int64

	progress map[uuid.UUID]model.ProgressRecord
	rewards  []model.RewardLogEntry
	wallets  map[int64]model.Wallet
	runs     []model.MilestoneRun
}

func newMemoryState() *memoryState {
	return &memoryState{
		members:  make(map[int64][]int64),
		progress: make(map[uuid.UUID]model.ProgressRecord),
		wallets:  make(map[int64]model.Wallet),
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		users:       append([]model.User(nil), s.users...),
		definitions: append([]model.MilestoneDefinition(nil), s.definitions...),
		orders:      append([]model.Order(nil), s.orders...),
		memberships: append([]model.Membership(nil), s.memberships...),
		franchises:  append([]model.Franchise(nil), s.franchises...),
		members:     make(map[int64][]int64, len(s.members)),
		progress:    make(map[uuid.UUID]model.ProgressRecord, len(s.progress)),
		rewards:     append([]model.RewardLogEntry(nil), s.rewards...),
		wallets:     make(map[int64]model.Wallet, len(s.wallets)),
		runs:        append([]model.MilestoneRun(nil), s.runs...),
	}
	for k, v := range s.members {
		c.members[k] = append([]int64(nil), v...)
	}
	for k, v := range s.progress {
		c.progress[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	return c
}

// memoryDB commits a pass only when fn succeeds and commitErr is nil, which
// stands in for a crash between the last write and COMMIT.
type memoryDB struct {
	mu        sync.Mutex
	state     *memoryState
	commitErr error
	failOn    map[string]error

	// zone, when set, is the location timestamps are read back in, the way
	// pgx hands timestamptz back in time.Local.
	zone *time.Location
}

func newMemoryDB() *memoryDB {
	return &memoryDB{state: newMemoryState(), failOn: make(map[string]error)}
}

func (db *memoryDB) InPassTransaction(ctx context.Context, fn func(store PassStore) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx := &memoryTx{state: db.state.clone(), failOn: db.failOn, zone: db.zone}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if db.commitErr != nil {
		return db.commitErr
	}
	db.state = tx.state
	return nil
}

func (db *memoryDB) addUser(u model.User) {
	db.state.users = append(db.state.users, u)
}

func (db *memoryDB) addDefinition(d model.MilestoneDefinition) model.MilestoneDefinition {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = model.DefinitionActive
	}
	db.state.definitions = append(db.state.definitions, d)
	return d
}

func (db *memoryDB) addOrder(userID int64, amount int64, at time.Time) {
	db.state.orders = append(db.state.orders, model.Order{
		ID:            int64(len(db.state.orders) + 1),
		UserID:        userID,
		Status:        model.OrderStatusDelivered,
		PaymentStatus: model.PaymentStatusCompleted,
		TotalAmount:   decimal.NewFromInt(amount),
		CreatedAt:     at,
	})
}

func (db *memoryDB) addMembership(m model.Membership) {
	m.ID = int64(len(db.state.memberships) + 1)
	db.state.memberships = append(db.state.memberships, m)
}

func (db *memoryDB) addFranchise(f model.Franchise, members ...int64) {
	db.state.franchises = append(db.state.franchises, f)
	db.state.members[f.ID] = members
}

func (db *memoryDB) progressOf(userID int64, definitionID uuid.UUID) []model.ProgressRecord {
	var out []model.ProgressRecord
	for _, p := range db.state.progress {
		if p.UserID == userID && p.MilestoneDefinitionID == definitionID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TrackingPeriodStart.Before(out[j].TrackingPeriodStart)
	})
	return out
}

func (db *memoryDB) wallet(userID int64) model.Wallet {
	w, ok := db.state.wallets[userID]
	if !ok {
		return model.Wallet{UserID: userID, PurchaseWallet: decimal.Zero, WithdrawableWallet: decimal.Zero}
	}
	return w
}

type memoryTx struct {
	state  *memoryState
	failOn map[string]error
	zone   *time.Location
}

func (tx *memoryTx) read(t time.Time) time.Time {
	if tx.zone == nil {
		return t
	}
	return t.In(tx.zone)
}

func (tx *memoryTx) readProgress(p model.ProgressRecord) *model.ProgressRecord {
	p.TrackingPeriodStart = tx.read(p.TrackingPeriodStart)
	p.TrackingPeriodEnd = tx.read(p.TrackingPeriodEnd)
	return &p
}

func (tx *memoryTx) fail(op string) error {
	return tx.failOn[op]
}

func inRange(at, from, to time.Time) bool {
	return at.After(from) && !at.After(to)
}

func orderCompleted(o model.Order) bool {
	return o.Status == model.OrderStatusDelivered && o.PaymentStatus == model.PaymentStatusCompleted
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (tx *memoryTx) SumCompletedOrders(_ context.Context, userIDs []int64, from, to time.Time) (model.Delta, error) {
	if err := tx.fail("SumCompletedOrders"); err != nil {
		return model.Delta{}, err
	}
	d := model.Delta{Value: decimal.Zero}
	for _, o := range tx.state.orders {
		if !contains(userIDs, o.UserID) || !orderCompleted(o) || !inRange(o.CreatedAt, from, to) {
			continue
		}
		at := o.CreatedAt
		d.Value = d.Value.Add(o.TotalAmount)
		d.LatestDate = model.Later(d.LatestDate, &at)
	}
	return d, nil
}

func (tx *memoryTx) CountReferredMemberships(_ context.Context, parentID int64, from, to time.Time) (model.Delta, error) {
	if err := tx.fail("CountReferredMemberships"); err != nil {
		return model.Delta{}, err
	}
	d := model.Delta{Value: decimal.Zero}
	for _, m := range tx.state.memberships {
		if m.ReferringParentID == nil || *m.ReferringParentID != parentID || !m.Completed || !inRange(m.PurchasedAt, from, to) {
			continue
		}
		at := m.PurchasedAt
		d.Value = d.Value.Add(decimal.NewFromInt(1))
		d.LatestDate = model.Later(d.LatestDate, &at)
	}
	return d, nil
}

func (tx *memoryTx) SumCompletedMemberships(_ context.Context, userIDs []int64, from, to time.Time) (model.Delta, error) {
	if err := tx.fail("SumCompletedMemberships"); err != nil {
		return model.Delta{}, err
	}
	d := model.Delta{Value: decimal.Zero}
	for _, m := range tx.state.memberships {
		if !contains(userIDs, m.UserID) || !m.Completed || !inRange(m.PurchasedAt, from, to) {
			continue
		}
		at := m.PurchasedAt
		d.Value = d.Value.Add(m.AmountPaid)
		d.LatestDate = model.Later(d.LatestDate, &at)
	}
	return d, nil
}

func (tx *memoryTx) GetFranchiseByAdmin(_ context.Context, adminID int64) (*model.Franchise, error) {
	if err := tx.fail("GetFranchiseByAdmin"); err != nil {
		return nil, err
	}
	for _, f := range tx.state.franchises {
		if f.AdminID == adminID {
			f := f
			return &f, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (tx *memoryTx) ListFranchiseMembers(_ context.Context, franchiseID int64) ([]int64, error) {
	if err := tx.fail("ListFranchiseMembers"); err != nil {
		return nil, err
	}
	return append([]int64(nil), tx.state.members[franchiseID]...), nil
}

func (tx *memoryTx) GetOpenProgress(_ context.Context, userID int64, definitionID uuid.UUID) (*model.ProgressRecord, error) {
	for _, p := range tx.state.progress {
		if p.UserID == userID && p.MilestoneDefinitionID == definitionID && p.Status == model.ProgressOpen {
			return tx.readProgress(p), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (tx *memoryTx) GetLatestTerminalProgress(_ context.Context, userID int64, definitionID uuid.UUID) (*model.ProgressRecord, error) {
	var latest *model.ProgressRecord
	for _, p := range tx.state.progress {
		if p.UserID != userID || p.MilestoneDefinitionID != definitionID || !p.IsTerminal() {
			continue
		}
		if latest == nil || p.TrackingPeriodEnd.After(latest.TrackingPeriodEnd) {
			p := p
			latest = &p
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return tx.readProgress(*latest), nil
}

func (tx *memoryTx) HasCompletedProgress(_ context.Context, userID int64, definitionID uuid.UUID) (bool, error) {
	for _, p := range tx.state.progress {
		if p.UserID == userID && p.MilestoneDefinitionID == definitionID && p.IsCompleted() {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) CreateProgress(ctx context.Context, p *model.ProgressRecord) error {
	if _, err := tx.GetOpenProgress(ctx, p.UserID, p.MilestoneDefinitionID); err == nil {
		return fmt.Errorf("open progress already exists for user %d", p.UserID)
	}
	tx.state.progress[p.ID] = *p
	return nil
}

func (tx *memoryTx) UpdateProgressAccumulation(_ context.Context, id uuid.UUID, value decimal.Decimal, watermark *time.Time, at time.Time) error {
	if err := tx.fail("UpdateProgressAccumulation"); err != nil {
		return err
	}
	p, ok := tx.state.progress[id]
	if !ok || p.Status != model.ProgressOpen || value.LessThan(p.CurrentAccumulatedValue) {
		return repository.ErrStaleProgress
	}
	p.CurrentAccumulatedValue = value
	p.LastDataPointDateProcessed = watermark
	p.UpdatedAt = at
	tx.state.progress[id] = p
	return nil
}

func (tx *memoryTx) CompleteProgress(_ context.Context, id uuid.UUID, at time.Time) error {
	p, ok := tx.state.progress[id]
	if !ok || p.Status != model.ProgressOpen || !p.Reached() {
		return repository.ErrStaleProgress
	}
	p.Status = model.ProgressCompleted
	p.CompletedAt = &at
	p.UpdatedAt = at
	tx.state.progress[id] = p
	return nil
}

func (tx *memoryTx) ExpireProgress(_ context.Context, id uuid.UUID, at time.Time) error {
	p, ok := tx.state.progress[id]
	if !ok || p.Status != model.ProgressOpen {
		return repository.ErrStaleProgress
	}
	p.Status = model.ProgressExpired
	p.UpdatedAt = at
	tx.state.progress[id] = p
	return nil
}

func (tx *memoryTx) AppendRewardLog(_ context.Context, entry *model.RewardLogEntry) error {
	for _, r := range tx.state.rewards {
		if r.ProgressRecordID == entry.ProgressRecordID {
			return repository.ErrDuplicateReward
		}
	}
	tx.state.rewards = append(tx.state.rewards, *entry)
	return nil
}

func (tx *memoryTx) IncrementWallet(_ context.Context, userID int64, field model.WalletField, amount decimal.Decimal, at time.Time) error {
	if err := tx.fail("IncrementWallet"); err != nil {
		return err
	}
	w, ok := tx.state.wallets[userID]
	if !ok {
		w = model.Wallet{UserID: userID, PurchaseWallet: decimal.Zero, WithdrawableWallet: decimal.Zero}
	}
	switch field {
	case model.PurchaseWallet:
		w.PurchaseWallet = w.PurchaseWallet.Add(amount)
	case model.WithdrawableWallet:
		w.WithdrawableWallet = w.WithdrawableWallet.Add(amount)
	}
	w.UpdatedAt = at
	tx.state.wallets[userID] = w
	return nil
}

func (tx *memoryTx) ListUsers(_ context.Context) ([]model.User, error) {
	if err := tx.fail("ListUsers"); err != nil {
		return nil, err
	}
	users := append([]model.User(nil), tx.state.users...)
	for i := range users {
		users[i].JoinedAt = tx.read(users[i].JoinedAt)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (tx *memoryTx) ListActiveDefinitions(_ context.Context, milestoneType model.MilestoneType) ([]model.MilestoneDefinition, error) {
	var defs []model.MilestoneDefinition
	for _, d := range tx.state.definitions {
		if d.Type == milestoneType && d.Status == model.DefinitionActive {
			defs = append(defs, d)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].TargetValue.LessThan(defs[j].TargetValue) })
	return defs, nil
}

func (tx *memoryTx) ListOpenProgress(_ context.Context) ([]model.ProgressRecord, error) {
	var open []model.ProgressRecord
	for _, p := range tx.state.progress {
		if p.Status == model.ProgressOpen {
			open = append(open, p)
		}
	}
	return open, nil
}

func (tx *memoryTx) InsertRun(_ context.Context, run *model.MilestoneRun) error {
	tx.state.runs = append(tx.state.runs, *run)
	return nil
}
