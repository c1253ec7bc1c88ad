package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/walletverify/backend/internal/services"
)

type QRHandler struct {
	service   *services.QRService
	validator *services.ValidationHelper
}

func NewQRHandler(service *services.QRService) *QRHandler {
	return &QRHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// GeneratePaymentRequest creates a cobro QR code
// @Summary Generate payment-request QR
// @Description Generate a single-use QR code asking a payer for a fixed amount
// @Tags QR
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{payeeUserId=string,destinationAccount=string,amount=float64,currency=string,concept=string} true "Payment request"
// @Success 200 {object} object{token=string,qrImage=string}
// @Failure 400 {object} services.ErrorResponse
// @Router /qr/generate [post]
func (h *QRHandler) GeneratePaymentRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PayeeUserID        string  `json:"payeeUserId" validate:"required"`
		DestinationAccount string  `json:"destinationAccount" validate:"required,numeric,min=14,max=20"`
		Amount             float64 `json:"amount" validate:"required,gt=0"`
		Currency           string  `json:"currency" validate:"omitempty,len=3"`
		Concept            string  `json:"concept" validate:"omitempty,max=140"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	token, qrImage, err := h.service.GeneratePaymentRequest(r.Context(), &services.PaymentRequest{
		PayeeUserID:        req.PayeeUserID,
		DestinationAccount: req.DestinationAccount,
		Amount:             req.Amount,
		Currency:           req.Currency,
		Concept:            req.Concept,
	})
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"token":   token,
		"qrImage": qrImage,
	})
}

// ResolvePaymentRequest consumes a scanned cobro QR code
// @Summary Resolve payment-request QR
// @Description Resolve a scanned QR token into the transfer details it encodes; each token resolves once
// @Tags QR
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{token=string} true "Scanned token"
// @Success 200 {object} services.PaymentRequest
// @Failure 400 {object} services.ErrorResponse
// @Router /qr/resolve [post]
func (h *QRHandler) ResolvePaymentRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token" validate:"required"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.service.ResolvePaymentRequest(r.Context(), req.Token)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    result,
	})
}
