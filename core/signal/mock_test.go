package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trezcool/prepcards/core"
	"github.com/trezcool/prepcards/core/reflection"
)

// memStore is an in-memory reflection, review and signal store.
type memStore struct {
	mu          sync.Mutex
	reflections []reflection.Reflection
	reviews     []reflection.Review
	signals     map[Key]*Signal
	order       []Key
	writes      int
}

func newMemStore() *memStore {
	return &memStore{signals: make(map[Key]*Signal)}
}

func (m *memStore) CreateReflection(_ context.Context, refl reflection.Reflection, _ ...core.DBExecutor) (reflection.Reflection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	refl.ID = fmt.Sprintf("refl-%d", len(m.reflections)+1)
	m.reflections = append(m.reflections, refl)
	return refl, nil
}

func (m *memStore) QueryReflections(context.Context, *reflection.QueryFilter, ...core.DBExecutor) ([]reflection.Reflection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]reflection.Reflection(nil), m.reflections...), nil
}

func (m *memStore) CreateReview(_ context.Context, rev reflection.Review, _ ...core.DBExecutor) (reflection.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rev.ID = fmt.Sprintf("rev-%d", len(m.reviews)+1)
	m.reviews = append(m.reviews, rev)
	return rev, nil
}

func (m *memStore) QueryReviews(context.Context, *reflection.QueryFilter, ...core.DBExecutor) ([]reflection.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]reflection.Review(nil), m.reviews...), nil
}

func (m *memStore) HasQualifyingReview(_ context.Context, key core.ContextKey, cardVersion int, _ ...core.DBExecutor) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reviews {
		if r.ContextKey == key && r.CardVersion == cardVersion && r.Action != reflection.ActionNoChange {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateSignal(_ context.Context, sig Signal, _ ...core.DBExecutor) (Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.signals[sig.Key]; ok {
		return Signal{}, fmt.Errorf("signal %s exists", sig.Key)
	}
	sig.ID = fmt.Sprintf("sig-%d", len(m.order)+1)
	m.signals[sig.Key] = &sig
	m.order = append(m.order, sig.Key)
	m.writes++
	return sig, nil
}

func (m *memStore) UpsertStats(_ context.Context, key Key, stats Stats, now time.Time, _ ...core.DBExecutor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sig, ok := m.signals[key]
	if !ok {
		s := NewSignal(key, now)
		s.ID = fmt.Sprintf("sig-%d", len(m.order)+1)
		sig = &s
		m.signals[key] = sig
		m.order = append(m.order, key)
	}
	sig.Stats = stats
	sig.LastUpdated = now
	m.writes++
	return nil
}

func (m *memStore) UpdateThemeSignals(_ context.Context, key Key, themes map[string]ThemeSignal, now time.Time, _ ...core.DBExecutor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sig, ok := m.signals[key]
	if !ok {
		return ErrNotFound
	}
	sig.ThemeSignals = themes
	sig.LastUpdated = now
	m.writes++
	return nil
}

func (m *memStore) UpdateCRPThemeSignals(_ context.Context, key Key, themes map[string]int, now time.Time, _ ...core.DBExecutor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sig, ok := m.signals[key]
	if !ok {
		return ErrNotFound
	}
	sig.CRPThemeSignals = themes
	sig.LastUpdated = now
	m.writes++
	return nil
}

func (m *memStore) UpdateFlagState(_ context.Context, id string, state FlagState, _ ...core.DBExecutor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sig := range m.signals {
		if sig.ID == id {
			sig.FlagState = state
			m.writes++
			return nil
		}
	}
	return ErrNotFound
}

func (m *memStore) QuerySignals(context.Context, *QueryFilter, []core.DBOrdering, ...core.DBExecutor) ([]Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sigs := make([]Signal, 0, len(m.order))
	for _, k := range m.order {
		sigs = append(sigs, *m.signals[k])
	}
	return sigs, nil
}

func (m *memStore) GetSignalByID(_ context.Context, id string, _ ...core.DBExecutor) (Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sig := range m.signals {
		if sig.ID == id {
			return *sig, nil
		}
	}
	return Signal{}, ErrNotFound
}

func (m *memStore) GetSignalByKey(_ context.Context, key Key, _ ...core.DBExecutor) (Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sig, ok := m.signals[key]; ok {
		return *sig, nil
	}
	return Signal{}, ErrNotFound
}

func (m *memStore) addReflections(key core.ContextKey, version int, outcome, reason string, notes string, n int) {
	for i := 0; i < n; i++ {
		_, _ = m.CreateReflection(context.Background(), reflection.Reflection{
			ContextKey:  key,
			CardVersion: version,
			Outcome:     outcome,
			Reason:      reason,
			Notes:       notes,
		})
	}
}

type logMock struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *logMock) Debug(string, ...interface{}) {}
func (l *logMock) Info(string, ...interface{})  {}
func (l *logMock) Fatal(string, ...interface{}) {}

func (l *logMock) Warn(msg string, _ ...interface{}) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *logMock) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}

type clock struct{ t time.Time }

func newClock() *clock { return &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)} }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }
