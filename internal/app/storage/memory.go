package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/boostly/kudos/internal/app/domain/member"
	"github.com/boostly/kudos/internal/app/domain/recognition"
	"github.com/boostly/kudos/internal/app/domain/redemption"
	"github.com/boostly/kudos/internal/app/period"
)

// Memory is a thread-safe in-memory persistence layer implementing Store.
// It is intended for tests and prototyping and deliberately keeps the
// implementation simple: one mutex held for the whole transaction gives
// serializable behaviour, and a map snapshot taken before each transaction
// provides rollback.
type Memory struct {
	mu           sync.Mutex
	nextID       int64
	members      map[string]member.Member
	recognitions map[string]recognition.Recognition
	endorsements map[string]recognition.Endorsement
	redemptions  map[string]redemption.Redemption
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		nextID:       1,
		members:      make(map[string]member.Member),
		recognitions: make(map[string]recognition.Recognition),
		endorsements: make(map[string]recognition.Endorsement),
		redemptions:  make(map[string]redemption.Redemption),
	}
}

// WithinTx runs fn under the store lock. On error every mutation made by fn
// is discarded.
func (m *Memory) WithinTx(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshotLocked()
	if err := fn(&memTx{store: m}); err != nil {
		m.restoreLocked(snapshot)
		return err
	}
	return nil
}

type memSnapshot struct {
	nextID       int64
	members      map[string]member.Member
	recognitions map[string]recognition.Recognition
	endorsements map[string]recognition.Endorsement
	redemptions  map[string]redemption.Redemption
}

func (m *Memory) snapshotLocked() memSnapshot {
	return memSnapshot{
		nextID:       m.nextID,
		members:      copyMap(m.members),
		recognitions: copyMap(m.recognitions),
		endorsements: copyMap(m.endorsements),
		redemptions:  copyMap(m.redemptions),
	}
}

func (m *Memory) restoreLocked(s memSnapshot) {
	m.nextID = s.nextID
	m.members = s.members
	m.recognitions = s.recognitions
	m.endorsements = s.endorsements
	m.redemptions = s.redemptions
}

func copyMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// memTx operates on the store with the lock already held by WithinTx.
type memTx struct {
	store *Memory
}

var _ Tx = (*memTx)(nil)

func (t *memTx) nextID() string {
	id := t.store.nextID
	t.store.nextID++
	return fmt.Sprintf("%d", id)
}

// --- members ----------------------------------------------------------------

func (t *memTx) CreateMember(_ context.Context, m member.Member) (member.Member, error) {
	for _, existing := range t.store.members {
		if strings.EqualFold(existing.Email, m.Email) {
			return member.Member{}, fmt.Errorf("member email %s: %w", m.Email, ErrDuplicate)
		}
	}

	if m.ID == "" {
		m.ID = t.nextID()
	} else if _, exists := t.store.members[m.ID]; exists {
		return member.Member{}, fmt.Errorf("member %s: %w", m.ID, ErrDuplicate)
	}

	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	t.store.members[m.ID] = m
	return m, nil
}

func (t *memTx) UpdateMember(_ context.Context, m member.Member) (member.Member, error) {
	original, ok := t.store.members[m.ID]
	if !ok {
		return member.Member{}, fmt.Errorf("member %s: %w", m.ID, ErrNotFound)
	}
	m.CreatedAt = original.CreatedAt
	m.UpdatedAt = time.Now().UTC()
	t.store.members[m.ID] = m
	return m, nil
}

func (t *memTx) GetMember(_ context.Context, id string) (member.Member, error) {
	m, ok := t.store.members[id]
	if !ok {
		return member.Member{}, fmt.Errorf("member %s: %w", id, ErrNotFound)
	}
	return m, nil
}

func (t *memTx) GetMemberByEmail(_ context.Context, email string) (member.Member, error) {
	for _, m := range t.store.members {
		if strings.EqualFold(m.Email, email) {
			return m, nil
		}
	}
	return member.Member{}, fmt.Errorf("member email %s: %w", email, ErrNotFound)
}

func (t *memTx) ListMembers(_ context.Context) ([]member.Member, error) {
	result := make([]member.Member, 0, len(t.store.members))
	for _, m := range t.store.members {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// --- recognitions -----------------------------------------------------------

func (t *memTx) CreateRecognition(_ context.Context, rec recognition.Recognition) (recognition.Recognition, error) {
	if rec.ID == "" {
		rec.ID = t.nextID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	t.store.recognitions[rec.ID] = rec
	return rec, nil
}

func (t *memTx) GetRecognition(_ context.Context, id string) (recognition.Recognition, error) {
	rec, ok := t.store.recognitions[id]
	if !ok {
		return recognition.Recognition{}, fmt.Errorf("recognition %s: %w", id, ErrNotFound)
	}
	return rec, nil
}

func (t *memTx) ListRecognitions(_ context.Context) ([]recognition.Recognition, error) {
	result := make([]recognition.Recognition, 0, len(t.store.recognitions))
	for _, rec := range t.store.recognitions {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (t *memTx) SumSentCredits(_ context.Context, senderID string, key period.Key) (int64, error) {
	var total int64
	for _, rec := range t.store.recognitions {
		if rec.SenderID == senderID && rec.PeriodKey == key {
			total += rec.Credits
		}
	}
	return total, nil
}

// --- endorsements -----------------------------------------------------------

func (t *memTx) CreateEndorsement(_ context.Context, e recognition.Endorsement) (recognition.Endorsement, error) {
	for _, existing := range t.store.endorsements {
		if existing.RecognitionID == e.RecognitionID && existing.EndorserID == e.EndorserID {
			return recognition.Endorsement{}, fmt.Errorf("endorsement (%s, %s): %w", e.RecognitionID, e.EndorserID, ErrDuplicate)
		}
	}

	if e.ID == "" {
		e.ID = t.nextID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	t.store.endorsements[e.ID] = e
	return e, nil
}

func (t *memTx) GetEndorsement(_ context.Context, id string) (recognition.Endorsement, error) {
	e, ok := t.store.endorsements[id]
	if !ok {
		return recognition.Endorsement{}, fmt.Errorf("endorsement %s: %w", id, ErrNotFound)
	}
	return e, nil
}

func (t *memTx) HasEndorsement(_ context.Context, recognitionID, endorserID string) (bool, error) {
	for _, e := range t.store.endorsements {
		if e.RecognitionID == recognitionID && e.EndorserID == endorserID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CountEndorsements(_ context.Context, recognitionID string) (int64, error) {
	var count int64
	for _, e := range t.store.endorsements {
		if e.RecognitionID == recognitionID {
			count++
		}
	}
	return count, nil
}

// --- redemptions ------------------------------------------------------------

func (t *memTx) CreateRedemption(_ context.Context, r redemption.Redemption) (redemption.Redemption, error) {
	if r.ID == "" {
		r.ID = t.nextID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	t.store.redemptions[r.ID] = r
	return r, nil
}

func (t *memTx) GetRedemption(_ context.Context, id string) (redemption.Redemption, error) {
	r, ok := t.store.redemptions[id]
	if !ok {
		return redemption.Redemption{}, fmt.Errorf("redemption %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (t *memTx) ListRedemptions(_ context.Context, memberID string) ([]redemption.Redemption, error) {
	var result []redemption.Redemption
	for _, r := range t.store.redemptions {
		if r.MemberID == memberID {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// --- leaderboard ------------------------------------------------------------

func (t *memTx) Leaderboard(_ context.Context, limit int) ([]LeaderboardEntry, error) {
	byReceiver := make(map[string]*LeaderboardEntry)
	for _, rec := range t.store.recognitions {
		entry, ok := byReceiver[rec.ReceiverID]
		if !ok {
			m, found := t.store.members[rec.ReceiverID]
			if !found {
				continue
			}
			entry = &LeaderboardEntry{MemberID: m.ID, MemberName: m.Name}
			byReceiver[rec.ReceiverID] = entry
		}
		entry.TotalCreditsReceived += rec.Credits
		entry.TotalRecognitionsReceived++
	}

	for _, e := range t.store.endorsements {
		rec, ok := t.store.recognitions[e.RecognitionID]
		if !ok {
			continue
		}
		if entry, ok := byReceiver[rec.ReceiverID]; ok {
			entry.TotalEndorsementsReceived++
		}
	}

	result := make([]LeaderboardEntry, 0, len(byReceiver))
	for _, entry := range byReceiver {
		result = append(result, *entry)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TotalCreditsReceived != result[j].TotalCreditsReceived {
			return result[i].TotalCreditsReceived > result[j].TotalCreditsReceived
		}
		return result[i].MemberID < result[j].MemberID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
