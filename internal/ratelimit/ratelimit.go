package ratelimit

import (
	"math"
	"sync"
	"time"
)

// DefaultSweepThreshold — после скольких ключей карта начинает чиститься
const DefaultSweepThreshold = 10000

// Clock — источник времени; в тестах подменяется
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Result — ответ на одну проверку
type Result struct {
	Allowed           bool
	Remaining         int
	Limit             int
	Count             int
	ResetAt           time.Time
	RetryAfterSeconds int
}

type record struct {
	count   int
	resetAt time.Time
}

// FixedWindow — счётчик запросов в фиксированном окне на каждый идентификатор
// на границе окон допускается всплеск до удвоенного лимита
type FixedWindow struct {
	mu        sync.Mutex
	records   map[string]*record
	clock     Clock
	threshold int
}

// Option настраивает лимитер
type Option func(*FixedWindow)

func WithClock(clock Clock) Option {
	return func(l *FixedWindow) { l.clock = clock }
}

// WithSweepThreshold задаёт размер карты, после которого удаляются истёкшие записи
func WithSweepThreshold(n int) Option {
	return func(l *FixedWindow) {
		if n > 0 {
			l.threshold = n
		}
	}
}

func New(opts ...Option) *FixedWindow {
	l := &FixedWindow{
		records:   make(map[string]*record),
		clock:     systemClock{},
		threshold: DefaultSweepThreshold,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check учитывает запрос identity и сообщает, укладывается ли он в лимит
func (l *FixedWindow) Check(identity string, maxRequests int, window time.Duration) Result {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[identity]
	if !ok {
		rec = &record{resetAt: now.Add(window)}
		l.records[identity] = rec
	}
	if now.After(rec.resetAt) {
		rec.count = 0
		rec.resetAt = now.Add(window)
	}
	rec.count++

	if len(l.records) > l.threshold {
		l.sweepLocked(now, window)
	}

	return Result{
		Allowed:           rec.count <= maxRequests,
		Remaining:         max(0, maxRequests-rec.count),
		Limit:             maxRequests,
		Count:             rec.count,
		ResetAt:           rec.resetAt,
		RetryAfterSeconds: int(math.Ceil(rec.resetAt.Sub(now).Seconds())),
	}
}

// sweepLocked удаляет записи, окно которых закончилось больше окна назад
func (l *FixedWindow) sweepLocked(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	for k, rec := range l.records {
		if rec.resetAt.Before(cutoff) {
			delete(l.records, k)
		}
	}
}

// Reset забывает счётчик одного идентификатора
func (l *FixedWindow) Reset(identity string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, identity)
}

// Clear забывает все счётчики
func (l *FixedWindow) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.records)
}

// Len возвращает число отслеживаемых идентификаторов
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
