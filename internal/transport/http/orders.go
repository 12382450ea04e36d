package http

import (
	"net/http"
	"strconv"

	"github.com/asquebay/storefront-service/internal/config"
	"github.com/asquebay/storefront-service/internal/dashboard"
	"github.com/asquebay/storefront-service/internal/lib/apperr"
	"github.com/asquebay/storefront-service/internal/model"
)

func setLimitHeader(w http.ResponseWriter, l config.Limit) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.MaxRequests))
}

func (h *Handler) ordersByPhone(w http.ResponseWriter, r *http.Request) {
	setLimitHeader(w, h.public.Limits().PhoneSearch)

	orders, err := h.public.GetOrdersByPhone(r.Context(), r.PathValue("phone"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOK(w, http.StatusOK, envelope{"orders": orders})
}

func (h *Handler) orderByNumber(w http.ResponseWriter, r *http.Request) {
	setLimitHeader(w, h.public.Limits().OrderNumber)

	order, err := h.public.GetOrderByNumber(r.Context(), r.PathValue("number"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOK(w, http.StatusOK, envelope{"order": order})
}

// listOrders отдаёт страницу списка или результат поиска, в зависимости от режима
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := q.Get("search")
	filters := dashboard.Filters{Status: q.Get("status")}
	mode := dashboard.SelectMode(search, filters)

	if mode == dashboard.ModeSearch {
		orders, err := h.admin.SearchOrders(r.Context(), search, filters.Status)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		h.respondOK(w, http.StatusOK, envelope{
			"mode":       mode,
			"orders":     orders,
			"totalCount": len(orders),
			"hasMore":    false,
			"nextPage":   nil,
		})
		return
	}

	page := 0
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.respondError(w, r, apperr.ValidationErr("Page must be a non-negative integer"))
			return
		}
		page = n
	}

	p, err := h.admin.OrdersPage(r.Context(), filters.Status, page)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	orders, _ := p.Items.([]model.Order)
	if orders == nil {
		orders = []model.Order{}
	}
	h.respondOK(w, http.StatusOK, envelope{
		"mode":       mode,
		"orders":     orders,
		"totalCount": p.TotalCount,
		"hasMore":    p.HasMore,
		"nextPage":   p.NextPage,
	})
}

func (h *Handler) orderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.OrderStats(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOK(w, http.StatusOK, envelope{"stats": stats})
}

func (h *Handler) orderByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	order, err := h.admin.Order(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOK(w, http.StatusOK, envelope{"order": order})
}

type statusRequest struct {
	Status model.OrderStatus `json:"status"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	order, err := h.admin.UpdateOrderStatus(r.Context(), id, req.Status)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOK(w, http.StatusOK, envelope{"order": order})
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.admin.DeleteOrder(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOK(w, http.StatusOK, envelope{})
}
