package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/asquebay/storefront-service/internal/querykey"
)

var (
	// ErrNoNextPage — у последней загруженной страницы нет продолжения
	ErrNoNextPage = errors.New("no next page")
	// ErrPageOutOfOrder — запрошенная страница не следует за последней загруженной
	ErrPageOutOfOrder = errors.New("page param does not follow the last fetched page")
)

// FirstPage — параметр первой страницы бесконечного запроса
const FirstPage = 0

// PageFetcher загружает одну страницу бесконечного запроса
type PageFetcher func(ctx context.Context, param int) (Page, error)

// GetPage возвращает страницу param бесконечного запроса key
// страницы хранятся в порядке загрузки; повторная загрузка страницы
// заменяет только её, остальные страницы сохраняются
func (c *Client) GetPage(ctx context.Context, key querykey.Key, param int, fetch PageFetcher, opts Options) (Page, error) {
	now := c.clock.Now()

	c.mu.Lock()
	c.maybeSweepLocked(now)
	e := c.entryLocked(key, true, opts)
	e.lastRead = now

	flightKey := key.String() + "#" + strconv.Itoa(param)
	fetcher := func(ctx context.Context) (any, error) {
		p, err := fetch(ctx, param)
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	if p, ok := e.page(param); ok {
		if e.fresh(now) {
			c.mu.Unlock()
			c.obs.CacheRequest(string(key.Entity()), "hit")
			return p, nil
		}
		if !e.invalidated {
			if _, inFlight := e.inflight[flightKey]; !inFlight {
				c.background(c.fetchLocked(ctx, e, flightKey, fetcher, storePage(param)))
			}
			c.mu.Unlock()
			c.obs.CacheRequest(string(key.Entity()), "stale")
			return p, nil
		}
	} else if param != FirstPage {
		next, ok := e.nextParam()
		if !ok || next != param {
			c.mu.Unlock()
			return Page{}, fmt.Errorf("%s page %d: %w", key, param, ErrPageOutOfOrder)
		}
		e.fetchingNext = true
	}

	ch := c.fetchLocked(ctx, e, flightKey, fetcher, storePage(param))
	c.mu.Unlock()
	c.obs.CacheRequest(string(key.Entity()), "miss")

	select {
	case res := <-ch:
		if res.Err != nil {
			return Page{}, res.Err
		}
		p, _ := res.Val.(Page)
		p.Param = param
		return p, nil
	case <-ctx.Done():
		return Page{}, ctx.Err()
	}
}

// FetchNextPage догружает страницу, следующую за последней
func (c *Client) FetchNextPage(ctx context.Context, key querykey.Key, fetch PageFetcher, opts Options) (Page, error) {
	c.mu.Lock()
	next := FirstPage
	if e, ok := c.entries[key.String()]; ok {
		var more bool
		if next, more = e.nextParam(); !more {
			c.mu.Unlock()
			return Page{}, ErrNoNextPage
		}
	}
	c.mu.Unlock()

	return c.GetPage(ctx, key, next, fetch, opts)
}

// storePage вставляет страницу на её место или дописывает в конец,
// если она продолжает последовательность
func storePage(param int) storeFunc {
	return func(e *entry, val any, now time.Time) {
		p, _ := val.(Page)
		p.Param = param

		replaced := false
		for i := range e.pages {
			if e.pages[i].Param == param {
				e.pages[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			if next, ok := e.nextParam(); ok && next == param {
				e.pages = append(e.pages, p)
			}
		}

		if param == FirstPage {
			e.fetchedAt = now
			e.invalidated = false
		}
	}
}
