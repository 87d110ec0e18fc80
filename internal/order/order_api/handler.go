package order_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ms-registration/internal/auth"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/order"
	"ms-registration/internal/scrambler"
	"ms-registration/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Orders *order.OrderService
	Logger *logger.Logger
}

func NewHandler(orders *order.OrderService, log *logger.Logger) *Handler {
	return &Handler{Orders: orders, Logger: log}
}

// Routes mounts the purchaser-facing order endpoints. Callers must already
// be authenticated.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/orders", h.CreateOrder)
	r.Get("/orders", h.ListOrders)
	r.Get("/orders/{orderId}", h.GetOrder)
	r.Put("/orders/{orderId}", h.UpdateOrder)
	r.Post("/orders/{orderId}/payment", h.PayOrder)
	r.Get("/orders/{orderId}/receipt", h.GetReceipt)
}

// AdminRoutes mounts the refund endpoints.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Post("/order-rows/{rowId}/refund", h.RefundOrderRow)
	r.Post("/tickets/{ticketId}/refund", h.RefundTicket)
}

type orderRequest struct {
	BillingName string `json:"billing_name"`
	BillingAddr string `json:"billing_addr"`
	models.UnconfirmedDetails
}

type orderView struct {
	ID            string                     `json:"id"`
	Status        models.OrderStatus         `json:"status"`
	BillingName   string                     `json:"billing_name"`
	BillingAddr   string                     `json:"billing_addr"`
	InvoiceNumber string                     `json:"invoice_number,omitempty"`
	FailureReason string                     `json:"failure_reason,omitempty"`
	AmountInclVAT int64                      `json:"amount_incl_vat"`
	Brief         string                     `json:"brief"`
	Details       *models.UnconfirmedDetails `json:"unconfirmed_details,omitempty"`
	ReceiptURL    string                     `json:"receipt_url"`
	CreatedAt     time.Time                  `json:"created_at"`
	UpdatedAt     time.Time                  `json:"updated_at"`
}

func (h *Handler) view(r *http.Request, o *models.Order) (*orderView, error) {
	rows, err := h.Orders.GetOrderRows(r.Context(), o)
	if err != nil {
		return nil, err
	}
	ref := scrambler.Orders.Forward(o.ID)
	v := &orderView{
		ID:            ref,
		Status:        o.Status,
		BillingName:   o.BillingName,
		BillingAddr:   o.BillingAddr,
		InvoiceNumber: o.FullInvoiceNumber(h.Orders.Config().InvoicePrefix),
		FailureReason: o.FailureReason,
		Brief:         order.BriefSummary(rows),
		Details:       o.UnconfirmedDetails,
		ReceiptURL:    "/api/orders/" + ref + "/receipt",
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	for i := range rows {
		v.AmountInclVAT += rows[i].CostInclVAT()
	}
	return v, nil
}

func decodeOrderRequest(r *http.Request) (*orderRequest, error) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, badRequest("Invalid request body", err)
	}
	if strings.TrimSpace(req.BillingName) == "" {
		return nil, badRequest("billing_name is required", nil)
	}
	return &req, nil
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFrom(r.Context())
	h.Logger.Info("API", fmt.Sprintf("CreateOrder: user=%s", p.Sub))

	req, err := decodeOrderRequest(r)
	if err != nil {
		WriteError(w, h.Logger, "CreateOrder", err)
		return
	}
	o, err := h.Orders.CreatePendingOrder(r.Context(), p.User(), req.BillingName, req.BillingAddr, req.UnconfirmedDetails)
	if err != nil {
		WriteError(w, h.Logger, "CreateOrder", err)
		return
	}
	v, err := h.view(r, o)
	if err != nil {
		WriteError(w, h.Logger, "CreateOrder", err)
		return
	}
	WriteJSON(w, h.Logger, http.StatusCreated, utils.SuccessResponse("Order created", v))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("ListOrders: user=%s", userID))

	orders, err := h.Orders.ListOrders(r.Context(), userID)
	if err != nil {
		WriteError(w, h.Logger, "ListOrders", err)
		return
	}
	views := make([]*orderView, 0, len(orders))
	for i := range orders {
		v, err := h.view(r, &orders[i])
		if err != nil {
			WriteError(w, h.Logger, "ListOrders", err)
			return
		}
		views = append(views, v)
	}
	WriteJSON(w, h.Logger, http.StatusOK, utils.SuccessResponse("Orders retrieved", views))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", fmt.Sprintf("GetOrder: orderId=%s", chi.URLParam(r, "orderId")))

	o, err := h.ownedOrder(r)
	if err != nil {
		WriteError(w, h.Logger, "GetOrder", err)
		return
	}
	v, err := h.view(r, o)
	if err != nil {
		WriteError(w, h.Logger, "GetOrder", err)
		return
	}
	WriteJSON(w, h.Logger, http.StatusOK, utils.SuccessResponse("Order retrieved", v))
}

func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", fmt.Sprintf("UpdateOrder: orderId=%s", chi.URLParam(r, "orderId")))

	o, err := h.ownedOrder(r)
	if err != nil {
		WriteError(w, h.Logger, "UpdateOrder", err)
		return
	}
	req, err := decodeOrderRequest(r)
	if err != nil {
		WriteError(w, h.Logger, "UpdateOrder", err)
		return
	}
	o, err = h.Orders.UpdatePendingOrder(r.Context(), o.ID, req.BillingName, req.BillingAddr, req.UnconfirmedDetails)
	if err != nil {
		WriteError(w, h.Logger, "UpdateOrder", err)
		return
	}
	v, err := h.view(r, o)
	if err != nil {
		WriteError(w, h.Logger, "UpdateOrder", err)
		return
	}
	WriteJSON(w, h.Logger, http.StatusOK, utils.SuccessResponse("Order updated", v))
}

// PayOrder charges the card token in the body and confirms the order.
func (h *Handler) PayOrder(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", fmt.Sprintf("PayOrder: orderId=%s", chi.URLParam(r, "orderId")))

	o, err := h.ownedOrder(r)
	if err != nil {
		WriteError(w, h.Logger, "PayOrder", err)
		return
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
		WriteError(w, h.Logger, "PayOrder", badRequest("token is required", err))
		return
	}

	o, err = h.Orders.ProcessCharge(r.Context(), o.ID, body.Token)
	if err != nil {
		WriteError(w, h.Logger, "PayOrder", err)
		return
	}
	v, err := h.view(r, o)
	if err != nil {
		WriteError(w, h.Logger, "PayOrder", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("PayOrder: order %s confirmed as %s", v.ID, v.InvoiceNumber))
	WriteJSON(w, h.Logger, http.StatusOK, utils.SuccessResponse("Payment received", v))
}

func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", fmt.Sprintf("GetReceipt: orderId=%s", chi.URLParam(r, "orderId")))

	o, err := h.ownedOrder(r)
	if err != nil {
		WriteError(w, h.Logger, "GetReceipt", err)
		return
	}
	receipt, err := h.Orders.Receipt(r.Context(), o)
	if err != nil {
		WriteError(w, h.Logger, "GetReceipt", err)
		return
	}
	WriteJSON(w, h.Logger, http.StatusOK, utils.SuccessResponse("Receipt retrieved", receipt))
}

type refundRequest struct {
	Reason string `json:"reason"`
}

type creditNoteView struct {
	OrderID  string `json:"order_id"`
	RefundID string `json:"refund_id"`
	order.CreditNote
}

func (h *Handler) RefundOrderRow(w http.ResponseWriter, r *http.Request) {
	rowID, err := strconv.ParseInt(chi.URLParam(r, "rowId"), 10, 64)
	if err != nil {
		WriteError(w, h.Logger, "RefundOrderRow", badRequest("Invalid row id", err))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("RefundOrderRow: rowId=%d admin=%s", rowID, auth.UserID(r.Context())))

	reason, err := decodeReason(r)
	if err != nil {
		WriteError(w, h.Logger, "RefundOrderRow", err)
		return
	}
	refund, err := h.Orders.RefundRow(r.Context(), rowID, reason)
	if err != nil {
		WriteError(w, h.Logger, "RefundOrderRow", err)
		return
	}
	h.writeCreditNote(w, r, "RefundOrderRow", refund)
}

func (h *Handler) RefundTicket(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ticketId")
	h.Logger.Info("API", fmt.Sprintf("RefundTicket: ticketId=%s admin=%s", ref, auth.UserID(r.Context())))

	ticketID, err := scrambler.Tickets.Backward(ref)
	if err != nil {
		WriteError(w, h.Logger, "RefundTicket", err)
		return
	}
	reason, err := decodeReason(r)
	if err != nil {
		WriteError(w, h.Logger, "RefundTicket", err)
		return
	}
	refund, err := h.Orders.RefundTicket(r.Context(), ticketID, reason)
	if err != nil {
		WriteError(w, h.Logger, "RefundTicket", err)
		return
	}
	h.writeCreditNote(w, r, "RefundTicket", refund)
}

func decodeReason(r *http.Request) (string, error) {
	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", badRequest("Invalid request body", err)
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return "", badRequest("reason is required", nil)
	}
	return req.Reason, nil
}

func (h *Handler) writeCreditNote(w http.ResponseWriter, r *http.Request, op string, refund *models.Refund) {
	o, err := h.Orders.GetOrder(r.Context(), refund.OrderID)
	if err != nil {
		WriteError(w, h.Logger, op, err)
		return
	}
	cfg := h.Orders.Config()
	invoiceNumber := 0
	if o.InvoiceNumber != nil {
		invoiceNumber = *o.InvoiceNumber
	}
	v := creditNoteView{
		OrderID:  scrambler.Orders.Forward(o.ID),
		RefundID: scrambler.Refunds.Forward(refund.ID),
		CreditNote: order.CreditNote{
			Number:    refund.FullCreditNoteNumber(cfg.CreditNotePrefix, invoiceNumber),
			Reason:    refund.Reason,
			GatewayID: refund.GatewayRefundID,
			CreatedAt: refund.CreatedAt,
		},
	}
	WriteJSON(w, h.Logger, http.StatusOK, utils.SuccessResponse("Refund issued", v))
}
