package cache

import (
	"time"

	"github.com/asquebay/storefront-service/internal/querykey"
)

// Status — состояние записи кэша
// idle -> loading -> success|error; success -> loading при фоновом обновлении
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Clock — источник времени; в тестах подменяется
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options управляют свежестью и временем жизни записи
type Options struct {
	// StaleTime — сколько данные считаются свежими
	StaleTime time.Duration
	// GCTime — сколько запись живёт без чтений
	GCTime time.Duration
	// Retry — число повторов неудачной загрузки
	Retry int
}

// Page — одна страница бесконечного запроса
type Page struct {
	Param      int
	Items      any
	TotalCount int
	HasMore    bool
	NextPage   *int
}

// entry — внутреннее состояние записи; меняется только под мьютексом клиента
type entry struct {
	key       querykey.Key
	data      any
	pages     []Page
	infinite  bool
	fetchedAt time.Time
	status    Status
	err       error

	invalidated  bool
	fetching     bool
	fetchingNext bool
	inflight     map[string]struct{}

	opts     Options
	lastRead time.Time
	gen      uint64
}

func (e *entry) hasData() bool {
	if e.infinite {
		return len(e.pages) > 0
	}
	return e.data != nil
}

func (e *entry) fresh(now time.Time) bool {
	return e.hasData() && !e.invalidated && !e.fetchedAt.IsZero() && now.Sub(e.fetchedAt) < e.opts.StaleTime
}

// clone копирует запись для снимка; страницы копируются,
// данные внутри страниц не трогаются — оптимистичные правки создают новые значения
func (e *entry) clone() *entry {
	cp := *e
	if e.pages != nil {
		cp.pages = append([]Page(nil), e.pages...)
	}
	cp.inflight = nil
	return &cp
}

func (e *entry) page(param int) (Page, bool) {
	for _, p := range e.pages {
		if p.Param == param {
			return p, true
		}
	}
	return Page{}, false
}

func (e *entry) nextParam() (int, bool) {
	if len(e.pages) == 0 {
		return 0, true
	}
	last := e.pages[len(e.pages)-1]
	if !last.HasMore || last.NextPage == nil {
		return 0, false
	}
	return *last.NextPage, true
}

// Snapshot — копия записи только для чтения
type Snapshot struct {
	Key                querykey.Key
	Data               any
	Pages              []Page
	FetchedAt          time.Time
	Status             Status
	Err                error
	IsStale            bool
	IsFetching         bool
	IsFetchingNextPage bool
}

// HasNextPage сообщает, есть ли у бесконечного запроса следующая страница
func (s Snapshot) HasNextPage() bool {
	if len(s.Pages) == 0 {
		return false
	}
	return s.Pages[len(s.Pages)-1].HasMore
}

// IsLoading — данных ещё нет, идёт первая загрузка
func (s Snapshot) IsLoading() bool {
	return s.Status == StatusLoading && s.Data == nil && len(s.Pages) == 0
}

func (e *entry) snapshot(now time.Time) Snapshot {
	s := Snapshot{
		Key:                e.key,
		Data:               e.data,
		FetchedAt:          e.fetchedAt,
		Status:             e.status,
		Err:                e.err,
		IsStale:            !e.fresh(now),
		IsFetching:         e.fetching,
		IsFetchingNextPage: e.fetchingNext,
	}
	if e.pages != nil {
		s.Pages = append([]Page(nil), e.pages...)
	}
	return s
}

// Items склеивает элементы страниц в порядке загрузки
func Items[T any](pages []Page) []T {
	var out []T
	for _, p := range pages {
		if items, ok := p.Items.([]T); ok {
			out = append(out, items...)
		}
	}
	return out
}
