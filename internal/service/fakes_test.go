package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/screentime-api/internal/models"
	"github.com/noah-isme/screentime-api/internal/repository"
	"github.com/noah-isme/screentime-api/internal/scoring"
	appErrors "github.com/noah-isme/screentime-api/pkg/errors"
)

type fakeClassRepo struct {
	classes map[string]models.Class
	rules   map[string][]models.AppRule
	seq     int
	err     error
}

func newFakeClassRepo(classes ...models.Class) *fakeClassRepo {
	repo := &fakeClassRepo{classes: map[string]models.Class{}, rules: map[string][]models.AppRule{}}
	for _, c := range classes {
		repo.classes[c.ID] = c
	}
	return repo
}

func (f *fakeClassRepo) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassSummary, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	var out []models.ClassSummary
	for _, c := range f.classes {
		out = append(out, models.ClassSummary{Class: c})
	}
	return out, len(out), nil
}

func (f *fakeClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (f *fakeClassRepo) ExistsByName(ctx context.Context, teacherID, name, excludeID string) (bool, error) {
	for _, c := range f.classes {
		if c.TeacherID == teacherID && strings.EqualFold(c.Name, name) && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeClassRepo) Create(ctx context.Context, class *models.Class) error {
	f.seq++
	class.ID = fmt.Sprintf("class-%d", f.seq)
	f.classes[class.ID] = *class
	return nil
}

func (f *fakeClassRepo) Update(ctx context.Context, class *models.Class) error {
	if _, ok := f.classes[class.ID]; !ok {
		return sql.ErrNoRows
	}
	f.classes[class.ID] = *class
	return nil
}

func (f *fakeClassRepo) UpdatePolicy(ctx context.Context, id string, dailyLimit int, weekendMode, strictMode bool) error {
	c, ok := f.classes[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.DailyLimitMinutes, c.WeekendMode, c.StrictMode = dailyLimit, weekendMode, strictMode
	f.classes[id] = c
	return nil
}

func (f *fakeClassRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.classes[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.classes, id)
	return nil
}

func (f *fakeClassRepo) ListAppRules(ctx context.Context, classID string) ([]models.AppRule, error) {
	return f.rules[classID], nil
}

func (f *fakeClassRepo) FindAppRule(ctx context.Context, classID, appKey string) (*models.AppRule, error) {
	for _, r := range f.rules[classID] {
		if r.AppKey == appKey {
			rule := r
			return &rule, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeClassRepo) UpsertAppRule(ctx context.Context, rule *models.AppRule) error {
	kept := f.rules[rule.ClassID][:0]
	for _, r := range f.rules[rule.ClassID] {
		if r.AppKey != rule.AppKey {
			kept = append(kept, r)
		}
	}
	f.seq++
	rule.ID = fmt.Sprintf("rule-%d", f.seq)
	f.rules[rule.ClassID] = append(kept, *rule)
	return nil
}

func (f *fakeClassRepo) DeleteAppRule(ctx context.Context, classID, ruleID string) error {
	rules := f.rules[classID]
	for i, r := range rules {
		if r.ID == ruleID {
			f.rules[classID] = append(rules[:i], rules[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeClassRepo) addRule(classID, app string, appType models.AppType) {
	_ = f.UpsertAppRule(context.Background(), &models.AppRule{ClassID: classID, AppName: app, AppKey: models.AppKey(app), AppType: appType})
}

type fakeStudentRepo struct {
	students map[string]models.Student
	ledgers  *fakeLedgerStore
	seq      int
}

func newFakeStudentRepo(ledgers *fakeLedgerStore, students ...models.Student) *fakeStudentRepo {
	repo := &fakeStudentRepo{students: map[string]models.Student{}, ledgers: ledgers}
	for _, s := range students {
		repo.students[s.ID] = s
	}
	return repo
}

func (f *fakeStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var out []models.Student
	for _, s := range f.students {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (f *fakeStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	s, ok := f.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (f *fakeStudentRepo) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	for _, s := range f.students {
		if s.Email != nil && *s.Email == email && s.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStudentRepo) Enroll(ctx context.Context, student *models.Student, ledger models.ScoreLedger) error {
	f.seq++
	student.ID = fmt.Sprintf("student-%d", f.seq)
	f.students[student.ID] = *student
	if f.ledgers != nil {
		ledger.StudentID = student.ID
		f.ledgers.put(ledger)
	}
	return nil
}

func (f *fakeStudentRepo) UpdateClass(ctx context.Context, id string, classID *string) error {
	s, ok := f.students[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.ClassID = classID
	f.students[id] = s
	return nil
}

// fakeLedgerStore mimics the transactional ledger repository in memory.
type fakeLedgerStore struct {
	mu        sync.Mutex
	ledgers   map[string]models.ScoreLedger
	entries   map[string]map[string]models.LedgerEntry
	applyErr  error
	failNext  []error
	afterFind func(studentID string)
	applied   int
	standings []models.StudentStanding
	violation int
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{ledgers: map[string]models.ScoreLedger{}, entries: map[string]map[string]models.LedgerEntry{}}
}

func (f *fakeLedgerStore) put(ledger models.ScoreLedger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ledgers[ledger.StudentID] = ledger
}

func (f *fakeLedgerStore) FindByStudent(ctx context.Context, studentID string) (*models.ScoreLedger, error) {
	f.mu.Lock()
	l, ok := f.ledgers[studentID]
	hook := f.afterFind
	f.mu.Unlock()
	if !ok {
		return nil, sql.ErrNoRows
	}
	if hook != nil {
		hook(studentID)
	}
	return &l, nil
}

func (f *fakeLedgerStore) Apply(ctx context.Context, event models.UsageEvent, fn repository.ApplyFunc) (scoring.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return scoring.Result{}, f.applyErr
	}
	if len(f.failNext) > 0 {
		err := f.failNext[0]
		f.failNext = f.failNext[1:]
		return scoring.Result{}, err
	}
	ledger, ok := f.ledgers[event.StudentID]
	if !ok {
		return scoring.Result{}, sql.ErrNoRows
	}
	var prior *models.LedgerEntry
	if e, ok := f.entries[event.StudentID][event.Date.String()]; ok {
		prior = &e
	}
	result, err := fn(ledger, prior)
	if err != nil {
		return scoring.Result{}, err
	}
	if result.Changed() {
		f.applied++
		f.ledgers[event.StudentID] = result.Ledger
		if f.entries[event.StudentID] == nil {
			f.entries[event.StudentID] = map[string]models.LedgerEntry{}
		}
		f.entries[event.StudentID][event.Date.String()] = result.Entry
	}
	return result, nil
}

func (f *fakeLedgerStore) ListEntries(ctx context.Context, studentID string, filter models.LedgerFilter) ([]models.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range f.entries[studentID] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (f *fakeLedgerStore) ListStandings(ctx context.Context, classID string) ([]models.StudentStanding, error) {
	return f.standings, nil
}

func (f *fakeLedgerStore) CountViolationsSince(ctx context.Context, classID string, since models.Date) (int, error) {
	return f.violation, nil
}

// memoryCache is a CacheRepository backed by a map of JSON documents.
type memoryCache struct {
	mu      sync.Mutex
	items   map[string][]byte
	deleted []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string][]byte{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = raw
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.items, key)
		m.deleted = append(m.deleted, key)
	}
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
			m.deleted = append(m.deleted, key)
		}
	}
	return nil
}

func (m *memoryCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[key]
	return ok
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func boolPtr(b bool) *bool { return &b }

func fixedClock(raw string) func() time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}
