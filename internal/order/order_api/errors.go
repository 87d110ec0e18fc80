package order_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/order"
	"ms-registration/internal/payment"
	"ms-registration/internal/scrambler"
	tickets "ms-registration/internal/tickets/service"
	"ms-registration/internal/utils"
)

// APIError carries what a failed request tells the caller and what it logs.
type APIError struct {
	Category      string
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Category, e.StatusCode, e.InternalError)
}

func (e *APIError) Unwrap() error { return e.OriginalErr }

// Classify maps service errors onto HTTP responses.
func Classify(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	e := &APIError{InternalError: err.Error(), OriginalErr: err}

	var cardErr *payment.CardError
	var refundErr *order.RefundGatewayError
	var conflictErr *order.CommitConflictError
	switch {
	case errors.As(err, &cardErr):
		e.Category, e.StatusCode, e.PublicError = "card", http.StatusPaymentRequired, cardErr.Reason
	case errors.As(err, &refundErr):
		e.Category, e.StatusCode, e.PublicError = "refund", http.StatusBadGateway, "The refund could not be completed. Our team has been notified."
	case errors.As(err, &conflictErr):
		e.Category, e.StatusCode, e.PublicError = "conflict", http.StatusConflict, "Your payment could not be completed and has been refunded. Please place a new order."
	case errors.Is(err, order.ErrInvalidOrder):
		e.Category, e.StatusCode, e.PublicError = "validation", http.StatusBadRequest, err.Error()
	case errors.Is(err, order.ErrInvalidState):
		e.Category, e.StatusCode, e.PublicError = "state", http.StatusConflict, err.Error()
	case errors.Is(err, order.ErrChargeInProgress):
		e.Category, e.StatusCode, e.PublicError = "state", http.StatusConflict, err.Error()
	case errors.Is(err, tickets.ErrAlreadyHasTicket):
		e.Category, e.StatusCode, e.PublicError = "conflict", http.StatusConflict, "You already have a ticket"
	case errors.Is(err, models.ErrNotFound), errors.Is(err, scrambler.ErrInvalidID):
		e.Category, e.StatusCode, e.PublicError = "not_found", http.StatusNotFound, "Not found"
	default:
		e.Category, e.StatusCode, e.PublicError = "internal", http.StatusInternalServerError, "Internal server error"
	}
	return e
}

func badRequest(msg string, err error) *APIError {
	internal := msg
	if err != nil {
		internal = fmt.Sprintf("%s: %v", msg, err)
	}
	return &APIError{Category: "validation", StatusCode: http.StatusBadRequest, PublicError: msg, InternalError: internal, OriginalErr: err}
}

// WriteError logs err under op and sends the classified response.
func WriteError(w http.ResponseWriter, log *logger.Logger, op string, err error) {
	apiErr := Classify(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		log.Error("API", fmt.Sprintf("%s: %v", op, apiErr))
	} else {
		log.Warn("API", fmt.Sprintf("%s: %v", op, apiErr))
	}
	WriteJSON(w, log, apiErr.StatusCode, utils.ErrorResponse(op+" failed", apiErr.Category, apiErr.PublicError))
}

func WriteJSON(w http.ResponseWriter, log *logger.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}
