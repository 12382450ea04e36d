package cache

import (
	"context"
	"log/slog"

	"github.com/asquebay/storefront-service/internal/querykey"
)

// Tx — оптимистичная правка кэша: снимок -> правка -> фиксация или откат
// каждый шаг выполняется под одним захватом мьютекса,
// поэтому частично применённая правка никому не видна
type Tx struct {
	c        *Client
	name     string
	snapshot map[string]*entry
	done     bool
}

// Begin открывает оптимистичную правку
func (c *Client) Begin(name string) *Tx {
	return &Tx{c: c, name: name, snapshot: make(map[string]*entry)}
}

// Snapshot запоминает все записи с указанными префиксами
// повторный снимок уже запомненной записи ничего не меняет
func (tx *Tx) Snapshot(prefixes ...querykey.Key) int {
	tx.c.mu.Lock()
	defer tx.c.mu.Unlock()

	n := 0
	for k, e := range tx.c.entries {
		for _, prefix := range prefixes {
			if e.key.HasPrefix(prefix) {
				tx.rememberLocked(k, e)
				n++
				break
			}
		}
	}
	return n
}

func (tx *Tx) rememberLocked(k string, e *entry) {
	if _, ok := tx.snapshot[k]; ok {
		return
	}
	tx.snapshot[k] = e.clone()
}

// SetData заменяет данные обычных (не постраничных) записей с префиксом prefix
// fn получает старые данные и должна вернуть новое значение, не меняя старое;
// записи без данных пропускаются. незавершённые загрузки этих записей отбрасываются
func (tx *Tx) SetData(prefix querykey.Key, fn func(old any) any) int {
	tx.c.mu.Lock()
	defer tx.c.mu.Unlock()

	n := 0
	for k, e := range tx.c.entries {
		if e.infinite || e.data == nil || !e.key.HasPrefix(prefix) {
			continue
		}
		tx.rememberLocked(k, e)
		e.data = fn(e.data)
		tx.c.supersedeLocked(e)
		n++
	}
	return n
}

// SetPages заменяет каждую страницу постраничных записей с префиксом prefix
func (tx *Tx) SetPages(prefix querykey.Key, fn func(p Page) Page) int {
	return tx.SetPageList(prefix, func(pages []Page) []Page {
		for i, p := range pages {
			pages[i] = fn(p)
			pages[i].Param = p.Param
		}
		return pages
	})
}

// SetPageList заменяет набор страниц каждой постраничной записи с префиксом prefix целиком
// fn получает копию списка страниц и может менять её; нужна, когда правка
// одной страницы зависит от остальных
func (tx *Tx) SetPageList(prefix querykey.Key, fn func(pages []Page) []Page) int {
	tx.c.mu.Lock()
	defer tx.c.mu.Unlock()

	n := 0
	for k, e := range tx.c.entries {
		if !e.infinite || len(e.pages) == 0 || !e.key.HasPrefix(prefix) {
			continue
		}
		tx.rememberLocked(k, e)
		e.pages = fn(append([]Page(nil), e.pages...))
		tx.c.supersedeLocked(e)
		n++
	}
	return n
}

// Commit выбрасывает снимок и инвалидирует затронутые мутацией ключи
func (tx *Tx) Commit(invalidate ...querykey.Key) {
	tx.c.mu.Lock()
	defer tx.c.mu.Unlock()

	if tx.done {
		return
	}
	tx.done = true
	tx.snapshot = nil

	for _, prefix := range invalidate {
		tx.c.invalidateLocked(prefix)
	}
	tx.c.obs.MutationFinished(tx.name, true)
}

// Rollback возвращает все запомненные записи в состояние снимка целиком
func (tx *Tx) Rollback() {
	tx.c.mu.Lock()
	defer tx.c.mu.Unlock()

	if tx.done {
		return
	}
	tx.done = true

	for k, saved := range tx.snapshot {
		restored := saved.clone()
		if cur, ok := tx.c.entries[k]; ok {
			// загрузки, начатые после правки, к снимку не относятся
			tx.c.supersedeLocked(cur)
			restored.lastRead = cur.lastRead
		}
		tx.c.supersedeLocked(restored)
		tx.c.entries[k] = restored
	}
	tx.c.log.Debug("optimistic update rolled back", slog.String("mutation", tx.name), slog.Int("entries", len(tx.snapshot)))
	tx.snapshot = nil
	tx.c.obs.MutationFinished(tx.name, false)
}

// Mutation описывает мутацию с оптимистичной правкой
type Mutation[V, R any] struct {
	Name string
	// Fn выполняет мутацию на стороне хранилища
	Fn func(ctx context.Context, vars V) (R, error)
	// OnMutate снимает снимок и правит кэш до обращения к хранилищу
	OnMutate func(tx *Tx, vars V)
	// Invalidate возвращает префиксы ключей, которые мутация сделала неактуальными
	Invalidate func(vars V, result R) []querykey.Key
	OnSuccess  func(result R, vars V)
	OnError    func(err error, vars V)
}

// Mutate выполняет мутацию: правка кэша применяется синхронно до вызова Fn,
// при успехе снимок выбрасывается и ключи инвалидируются,
// при ошибке все запомненные записи откатываются, инвалидации нет
func Mutate[V, R any](ctx context.Context, c *Client, m Mutation[V, R], vars V) (R, error) {
	tx := c.Begin(m.Name)
	if m.OnMutate != nil {
		m.OnMutate(tx, vars)
	}

	result, err := m.Fn(ctx, vars)
	if err != nil {
		tx.Rollback()
		if m.OnError != nil {
			m.OnError(err, vars)
		}
		return result, err
	}

	var keys []querykey.Key
	if m.Invalidate != nil {
		keys = m.Invalidate(vars, result)
	}
	tx.Commit(keys...)
	if m.OnSuccess != nil {
		m.OnSuccess(result, vars)
	}
	return result, nil
}
