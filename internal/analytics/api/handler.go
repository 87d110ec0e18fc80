package analytics_api

import (
	"fmt"
	"net/http"

	"ms-registration/internal/analytics"
	"ms-registration/internal/auth"
	"ms-registration/internal/logger"
	"ms-registration/internal/order/order_api"
	"ms-registration/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Handler serves the staff reports
type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

func NewHandler(service *analytics.Service, logger *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: logger}
}

// RegisterRoutes registers the report routes on an admin-only router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/ticket-summary", h.report("TicketSummary", func(r *http.Request) (interface{}, error) {
			return h.Service.TicketSummary(r.Context())
		}))
		r.Get("/attendance-by-day", h.report("AttendanceByDay", func(r *http.Request) (interface{}, error) {
			return h.Service.AttendanceByDay(r.Context())
		}))
		r.Get("/ticket-sales", h.report("TicketSales", func(r *http.Request) (interface{}, error) {
			return h.Service.TicketSales(r.Context())
		}))
		r.Get("/daily-sales", h.report("DailySales", func(r *http.Request) (interface{}, error) {
			return h.Service.DailySales(r.Context())
		}))
		r.Get("/orders", h.report("Orders", func(r *http.Request) (interface{}, error) {
			return h.Service.Orders(r.Context(), r.URL.Query().Get("unpaid") == "true")
		}))
	})
}

func (h *Handler) report(name string, build func(r *http.Request) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Logger.Info("ANALYTICS", fmt.Sprintf("%s requested by %s", name, auth.UserID(r.Context())))
		data, err := build(r)
		if err != nil {
			order_api.WriteError(w, h.Logger, name, err)
			return
		}
		order_api.WriteJSON(w, h.Logger, http.StatusOK, utils.SuccessResponse(name+" report", data))
	}
}
