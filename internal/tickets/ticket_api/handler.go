package ticket_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-registration/internal/auth"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/order/order_api"
	"ms-registration/internal/scrambler"
	qr "ms-registration/internal/tickets/qr_genrator"
	tickets "ms-registration/internal/tickets/service"
	"ms-registration/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	TicketService *tickets.TicketService
	QRGenerator   *qr.QRGenerator
	Logger        *logger.Logger
}

func NewHandler(ticketService *tickets.TicketService, qrSecret string, log *logger.Logger) *Handler {
	return &Handler{
		TicketService: ticketService,
		QRGenerator:   qr.NewQRGenerator(qrSecret),
		Logger:        log,
	}
}

// PublicRoutes mounts the endpoints an invitee can use before signing in.
func (h *Handler) PublicRoutes(r chi.Router) {
	r.Get("/invitations/{token}", h.ViewInvitation)
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/tickets/mine", h.MyTicket)
	r.Get("/tickets/{ticketId}", h.ViewTicket)
	r.Get("/tickets/{ticketId}/qr", h.TicketQR)
	r.Post("/invitations/{token}/claim", h.ClaimInvitation)
}

func (h *Handler) AdminRoutes(r chi.Router) {
	r.Post("/tickets/free", h.CreateFreeTicket)
	r.Put("/tickets/{ticketId}/days", h.UpdateTicketDays)
	r.Post("/tickets/verify-qr", h.VerifyQR)
}

type ticketView struct {
	ID           string   `json:"id"`
	Rate         string   `json:"rate"`
	Days         []string `json:"days"`
	DaysSentence string   `json:"days_sentence"`
	Descr        string   `json:"descr"`
	OwnerID      *string  `json:"owner_id,omitempty"`
	FreeReason   string   `json:"free_reason,omitempty"`
}

func viewTicket(t *models.Ticket) ticketView {
	return ticketView{
		ID:           scrambler.Tickets.Forward(t.ID),
		Rate:         t.Rate,
		Days:         t.DayKeys(),
		DaysSentence: t.DaysSentence(),
		Descr:        t.DescrForOrder(),
		OwnerID:      t.OwnerID,
		FreeReason:   t.FreeReason,
	}
}

// writeError adds the ticket-specific errors to the shared classification.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, tickets.ErrInvalidTicket):
		err = &order_api.APIError{Category: "validation", StatusCode: http.StatusBadRequest, PublicError: err.Error(), InternalError: err.Error(), OriginalErr: err}
	case errors.Is(err, tickets.ErrInvitationClaimed), errors.Is(err, tickets.ErrAlreadyInvited), errors.Is(err, tickets.ErrNotFreeTicket):
		err = &order_api.APIError{Category: "conflict", StatusCode: http.StatusConflict, PublicError: err.Error(), InternalError: err.Error(), OriginalErr: err}
	case errors.Is(err, qr.ErrInvalidPayload):
		err = &order_api.APIError{Category: "validation", StatusCode: http.StatusBadRequest, PublicError: "Unreadable QR code", InternalError: err.Error(), OriginalErr: err}
	}
	order_api.WriteError(w, h.Logger, op, err)
}

func badRequest(msg string, err error) error {
	internal := msg
	if err != nil {
		internal = fmt.Sprintf("%s: %v", msg, err)
	}
	return &order_api.APIError{Category: "validation", StatusCode: http.StatusBadRequest, PublicError: msg, InternalError: internal, OriginalErr: err}
}

// ownedTicket loads the ticket named in the URL if it belongs to the caller.
func (h *Handler) ownedTicket(r *http.Request) (*models.Ticket, error) {
	ref := chi.URLParam(r, "ticketId")
	ticketID, err := scrambler.Tickets.Backward(ref)
	if err != nil {
		return nil, err
	}
	ticket, err := h.TicketService.GetTicket(r.Context(), ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.OwnerID == nil || *ticket.OwnerID != auth.UserID(r.Context()) {
		return nil, fmt.Errorf("ticket %s: %w", ref, models.ErrNotFound)
	}
	return ticket, nil
}

func (h *Handler) MyTicket(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("MyTicket: user=%s", userID))

	ticket, err := h.TicketService.GetTicketForOwner(r.Context(), userID)
	if err != nil {
		h.writeError(w, "MyTicket", err)
		return
	}
	order_api.WriteJSON(w, h.Logger, http.StatusOK, utils.SuccessResponse("Ticket retrieved", viewTicket(ticket)))
}

func (h *Handler) ViewTicket(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", fmt.Sprintf("ViewTicket: ticketId=%s", chi.URLParam(r, "ticketId")))

	ticket, err := h.ownedTicket(r)
	if err != nil {
		h.writeError(w, "ViewTicket", err)
		return
	}
	order_api.WriteJSON(w, h.Logger, http.StatusOK, utils.SuccessResponse("Ticket retrieved", viewTicket(ticket)))
}

// TicketQR renders the ticket's encrypted QR code as a PNG.
func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.ownedTicket(r)
	if err != nil {
		h.writeError(w, "TicketQR", err)
		return
	}
	png, err := h.QRGenerator.GenerateEncryptedQR(ticket)
	if err != nil {
		h.writeError(w, "TicketQR", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Error("API", fmt.Sprintf("TicketQR: failed to write image: %v", err))
	}
}

type invitationView struct {
	Status    models.InvitationStatus `json:"status"`
	EmailAddr string                  `json:"email_addr"`
	Ticket    ticketView              `json:"ticket"`
}

func (h *Handler) ViewInvitation(w http.ResponseWriter, r *http.Request) {
	inv, ticket, err := h.TicketService.GetInvitation(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, "ViewInvitation", err)
		return
	}
	v := invitationView{Status: inv.Status, EmailAddr: inv.EmailAddr, Ticket: viewTicket(ticket)}
	v.Ticket.OwnerID = nil
	order_api.WriteJSON(w, h.Logger, http.StatusOK, utils.SuccessResponse("Invitation retrieved", v))
}

func (h *Handler) ClaimInvitation(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFrom(r.Context())
	h.Logger.Info("API", fmt.Sprintf("ClaimInvitation: user=%s", p.Sub))

	ticket, err := h.TicketService.ClaimInvitation(r.Context(), chi.URLParam(r, "token"), p.User())
	if err != nil {
		h.writeError(w, "ClaimInvitation", err)
		return
	}
	order_api.WriteJSON(w, h.Logger, http.StatusOK, utils.SuccessResponse("Ticket claimed", viewTicket(ticket)))
}

func (h *Handler) CreateFreeTicket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EmailAddr string   `json:"email_addr"`
		Reason    string   `json:"reason"`
		Days      []string `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "CreateFreeTicket", badRequest("Invalid request body", err))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CreateFreeTicket: email=%s admin=%s", req.EmailAddr, auth.UserID(r.Context())))

	ticket, inv, err := h.TicketService.CreateFreeTicket(r.Context(), req.EmailAddr, req.Reason, req.Days)
	if err != nil {
		h.writeError(w, "CreateFreeTicket", err)
		return
	}
	v := invitationView{Status: inv.Status, EmailAddr: inv.EmailAddr, Ticket: viewTicket(ticket)}
	order_api.WriteJSON(w, h.Logger, http.StatusCreated, utils.SuccessResponse("Free ticket created", v))
}

func (h *Handler) UpdateTicketDays(w http.ResponseWriter, r *http.Request) {
	ticketID, err := scrambler.Tickets.Backward(chi.URLParam(r, "ticketId"))
	if err != nil {
		h.writeError(w, "UpdateTicketDays", err)
		return
	}
	var req struct {
		Days []string `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "UpdateTicketDays", badRequest("Invalid request body", err))
		return
	}

	ticket, err := h.TicketService.UpdateFreeTicketDays(r.Context(), ticketID, req.Days)
	if err != nil {
		h.writeError(w, "UpdateTicketDays", err)
		return
	}
	order_api.WriteJSON(w, h.Logger, http.StatusOK, utils.SuccessResponse("Ticket updated", viewTicket(ticket)))
}

// VerifyQR decodes a scanned QR code and returns the current ticket, so door
// staff see refunds and day changes made after the code was issued.
// Expected POST request body: {"encrypted_qr": "base64_encrypted_string"}
func (h *Handler) VerifyQR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EncryptedQR string `json:"encrypted_qr"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EncryptedQR == "" {
		h.writeError(w, "VerifyQR", badRequest("encrypted_qr is required", err))
		return
	}

	payload, err := h.QRGenerator.Decrypt(req.EncryptedQR)
	if err != nil {
		h.writeError(w, "VerifyQR", err)
		return
	}
	ticketID, err := scrambler.Tickets.Backward(payload.TicketID)
	if err != nil {
		h.writeError(w, "VerifyQR", err)
		return
	}
	ticket, err := h.TicketService.GetTicket(r.Context(), ticketID)
	if err != nil {
		h.writeError(w, "VerifyQR", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("VerifyQR: ticket %s verified by %s", payload.TicketID, auth.UserID(r.Context())))
	order_api.WriteJSON(w, h.Logger, http.StatusOK, utils.SuccessResponse("Ticket verified", viewTicket(ticket)))
}
