package habit

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/magabrotheeeer/habit-tracker/internal/models"
	"github.com/magabrotheeeer/habit-tracker/internal/storage/repository"
)

// fakeRepo хранилище в памяти. Транзакция сериализуется общим мьютексом
// и откатывается восстановлением снимка.
type fakeRepo struct {
	txMu sync.Mutex
	mu   sync.Mutex

	users  map[int64]*models.User // по telegram id
	habits map[int64]*models.Habit
	logs   map[int64]map[int64]time.Time // habit id -> unix -> период
	nextID int64

	writes int
	// beforeInsertLog вызывается перед InsertLog, имитируя конкурентную вставку.
	beforeInsertLog func(habitID int64, period time.Time)
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:  map[int64]*models.User{},
		habits: map[int64]*models.Habit{},
		logs:   map[int64]map[int64]time.Time{},
	}
}

func (f *fakeRepo) addUser(telegramID int64, status models.SubscriptionStatus, expires *time.Time) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u := &models.User{
		ID:                    f.nextID,
		TelegramID:            telegramID,
		Timezone:              models.DefaultTimezone,
		SubscriptionStatus:    status,
		SubscriptionExpiresAt: expires,
	}
	f.users[telegramID] = u
	return u
}

func (f *fakeRepo) addHabit(userID int64, name string) *models.Habit {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	h := &models.Habit{ID: f.nextID, UserID: userID, Name: name}
	f.habits[h.ID] = h
	return h
}

func (f *fakeRepo) addLog(habitID int64, period time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logs[habitID] == nil {
		f.logs[habitID] = map[int64]time.Time{}
	}
	f.logs[habitID][period.Unix()] = period
}

func (f *fakeRepo) habitCount(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, h := range f.habits {
		if h.UserID == userID {
			n++
		}
	}
	return n
}

type snapshot struct {
	users  map[int64]models.User
	habits map[int64]models.Habit
	logs   map[int64]map[int64]time.Time
}

func (f *fakeRepo) snapshot() snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := snapshot{users: map[int64]models.User{}, habits: map[int64]models.Habit{}, logs: map[int64]map[int64]time.Time{}}
	for k, v := range f.users {
		s.users[k] = *v
	}
	for k, v := range f.habits {
		s.habits[k] = *v
	}
	for k, v := range f.logs {
		m := map[int64]time.Time{}
		for kk, vv := range v {
			m[kk] = vv
		}
		s.logs[k] = m
	}
	return s
}

func (f *fakeRepo) restore(s snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = map[int64]*models.User{}
	for k, v := range s.users {
		u := v
		f.users[k] = &u
	}
	f.habits = map[int64]*models.Habit{}
	for k, v := range s.habits {
		h := v
		f.habits[k] = &h
	}
	f.logs = s.logs
}

func (f *fakeRepo) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()
	snap := f.snapshot()
	if err := fn(ctx); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

func (f *fakeRepo) GetUserByTelegramID(_ context.Context, telegramID int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[telegramID]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeRepo) LockUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	return f.GetUserByTelegramID(ctx, telegramID)
}

func (f *fakeRepo) SetSubscriptionStatus(_ context.Context, userID int64, status models.SubscriptionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == userID {
			u.SubscriptionStatus = status
			f.writes++
			return nil
		}
	}
	return models.ErrNotFound
}

func (f *fakeRepo) ListHabits(_ context.Context, userID int64) ([]models.Habit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Habit
	for _, h := range f.habits {
		if h.UserID == userID {
			out = append(out, *h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) CreateHabit(_ context.Context, userID int64, d models.HabitDraft) (*models.Habit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.writes++
	h := &models.Habit{
		ID: f.nextID, UserID: userID, Name: d.Name, Description: d.Description,
		ReminderEnabled: d.ReminderEnabled, ReminderTime: d.ReminderTime, Goal: d.Goal,
	}
	f.habits[h.ID] = h
	c := *h
	return &c, nil
}

func (f *fakeRepo) UpdateHabit(_ context.Context, userID, habitID int64, d models.HabitDraft) (*models.Habit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.habits[habitID]
	if !ok || h.UserID != userID {
		return nil, models.ErrNotFound
	}
	h.Name, h.Description = d.Name, d.Description
	h.ReminderEnabled, h.ReminderTime, h.Goal = d.ReminderEnabled, d.ReminderTime, d.Goal
	f.writes++
	c := *h
	return &c, nil
}

func (f *fakeRepo) DeleteHabit(_ context.Context, userID, habitID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.habits[habitID]
	if !ok || h.UserID != userID {
		return models.ErrNotFound
	}
	delete(f.habits, habitID)
	delete(f.logs, habitID)
	return nil
}

func (f *fakeRepo) GetHabit(_ context.Context, userID, habitID int64) (*models.Habit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.habits[habitID]
	if !ok || h.UserID != userID {
		return nil, models.ErrNotFound
	}
	c := *h
	return &c, nil
}

func (f *fakeRepo) LockHabit(ctx context.Context, userID, habitID int64) (*models.Habit, error) {
	return f.GetHabit(ctx, userID, habitID)
}

func (f *fakeRepo) HasLog(_ context.Context, habitID int64, period time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.logs[habitID][period.Unix()]
	return ok, nil
}

func (f *fakeRepo) InsertLog(_ context.Context, habitID int64, period time.Time) error {
	if f.beforeInsertLog != nil {
		f.beforeInsertLog(habitID, period)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.logs[habitID][period.Unix()]; ok {
		return repository.ErrDuplicate
	}
	if f.logs[habitID] == nil {
		f.logs[habitID] = map[int64]time.Time{}
	}
	f.logs[habitID][period.Unix()] = period
	return nil
}

func (f *fakeRepo) DeleteLog(_ context.Context, habitID int64, period time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.logs[habitID][period.Unix()]; !ok {
		return false, nil
	}
	delete(f.logs[habitID], period.Unix())
	return true, nil
}

func (f *fakeRepo) ListCompletions(_ context.Context, habitID int64) ([]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []time.Time
	for _, t := range f.logs[habitID] {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeRepo) ListUserCompletions(_ context.Context, userID int64) (map[int64][]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int64][]time.Time{}
	for id, logs := range f.logs {
		h, ok := f.habits[id]
		if !ok || h.UserID != userID {
			continue
		}
		for _, t := range logs {
			out[id] = append(out[id], t)
		}
	}
	return out, nil
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}
