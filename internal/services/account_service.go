package services

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/walletverify/backend/internal/config"
	"github.com/walletverify/backend/internal/nlu"
)

// AccountService exposes the verification and ledger operations over
// the authenticated JSON API, separate from the public chat webhook.
type AccountService struct {
	users     *UserStore
	bank      *BankService
	verify    VerifyProvider
	limiter   *RateLimiter
	lockout   *LockoutPolicy
	parser    nlu.Parser
	validator *ValidationHelper
	cfg       *config.OTPConfig
}

func NewAccountService(users *UserStore, bank *BankService, verify VerifyProvider,
	limiter *RateLimiter, lockout *LockoutPolicy, parser nlu.Parser, cfg *config.OTPConfig) *AccountService {
	return &AccountService{
		users:     users,
		bank:      bank,
		verify:    verify,
		limiter:   limiter,
		lockout:   lockout,
		parser:    parser,
		validator: NewValidationHelper(),
		cfg:       cfg,
	}
}

// SendVerification starts an OTP challenge for a phone
// @Summary Start phone verification
// @Description Send a one-time passcode to the given phone over the configured channel
// @Tags verify
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{phone=string} true "Target phone"
// @Success 200 {object} object{status=string,sid=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /verify/send [post]
func (as *AccountService) SendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone" validate:"required"`
	}
	if !as.decodeJSON(w, r, &req) {
		return
	}

	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		SendErrorResponse(w, "Invalid phone number", http.StatusBadRequest, nil)
		return
	}

	if err := as.limiter.Check("verify:"+phone, as.cfg.VerifyPerMinute, as.cfg.RateLimitWindow); err != nil {
		SendErrorResponse(w, "Too many verification attempts", http.StatusTooManyRequests, nil)
		return
	}

	res, err := as.verify.Start(r.Context(), phone)
	if err != nil {
		log.Printf("[VERIFY] start failed for %s: %v", phone, err)
		SendErrorResponse(w, "Verification provider unavailable", http.StatusBadGateway, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  res.Status,
		"sid":     res.SID,
		"channel": res.Channel,
	})
}

// CheckVerification checks an OTP code for a phone
// @Summary Check a verification code
// @Description Verify a one-time passcode and update the user's lockout counters
// @Tags verify
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{phone=string,code=string} true "Phone and code"
// @Success 200 {object} object{status=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 423 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /verify/check [post]
func (as *AccountService) CheckVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone" validate:"required"`
		Code  string `json:"code" validate:"required,numeric,min=4,max=8"`
	}
	if !as.decodeJSON(w, r, &req) {
		return
	}

	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		SendErrorResponse(w, "Invalid phone number", http.StatusBadRequest, nil)
		return
	}

	if err := as.limiter.Check("verify:"+phone, as.cfg.VerifyPerMinute, as.cfg.RateLimitWindow); err != nil {
		SendErrorResponse(w, "Too many verification attempts", http.StatusTooManyRequests, nil)
		return
	}

	user, err := as.users.GetOrCreateByPhone(r.Context(), phone)
	if err != nil {
		log.Printf("[VERIFY] resolving user %s: %v", phone, err)
		SendErrorResponse(w, "Failed to resolve user", http.StatusInternalServerError, nil)
		return
	}

	if err := as.lockout.EnsureNotLocked(user); err != nil {
		SendErrorResponse(w, "Account temporarily locked", http.StatusLocked, nil)
		return
	}

	res, err := as.verify.Check(r.Context(), phone, req.Code)
	if err != nil {
		log.Printf("[VERIFY] check failed for %s: %v", phone, err)
		SendErrorResponse(w, "Verification provider unavailable", http.StatusBadGateway, nil)
		return
	}

	as.lockout.RegisterResult(user, res.Status)
	if err := as.users.SaveOTPState(r.Context(), user); err != nil {
		log.Printf("[VERIFY] saving otp state for %s: %v", phone, err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   res.Status,
		"verified": user.Verified,
	})
}

// ParseMessage runs the NLU chain over free text
// @Summary Parse a chat message
// @Description Extract intent and entities from a natural-language banking request
// @Tags nlu
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{text=string} true "Message text"
// @Success 200 {object} nlu.Result
// @Failure 400 {object} services.ErrorResponse
// @Router /nlu/parse [post]
func (as *AccountService) ParseMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text" validate:"required,max=2000"`
	}
	if !as.decodeJSON(w, r, &req) {
		return
	}

	result, err := as.parser.Parse(r.Context(), req.Text)
	if err != nil {
		log.Printf("[NLU] parse failed: %v", err)
		SendErrorResponse(w, "Failed to parse message", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// GetBalance returns a user's wallet balance
// @Summary Get wallet balance
// @Description Retrieve the wallet balance for a user, creating an empty wallet on first read
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param userId path string true "User ID"
// @Success 200 {object} object{userId=string,balance=float64,currency=string}
// @Failure 500 {object} services.ErrorResponse
// @Router /accounts/{userId}/balance [get]
func (as *AccountService) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	balance, err := as.bank.GetBalance(r.Context(), userID)
	if err != nil {
		log.Printf("[BANK] balance query failed for %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch balance", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"userId":   userID,
		"balance":  balance,
		"currency": as.bank.cfg.Currency,
	})
}

// CreateTransfer executes a wallet transfer
// @Summary Create a transfer
// @Description Debit the payer wallet and record a transaction; amounts at or above the 2FA threshold require a prior phone verification
// @Tags transfers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{userId=string,amount=float64,destinationAccount=string,currency=string,concept=string,clientTxId=string,twoFAVerified=bool} true "Transfer details"
// @Success 200 {object} object{success=bool,transaction=models.Transaction}
// @Success 202 {object} object{requires2fa=bool}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /transfers [post]
func (as *AccountService) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID             string  `json:"userId" validate:"required"`
		Amount             float64 `json:"amount" validate:"required,gt=0"`
		DestinationAccount string  `json:"destinationAccount" validate:"required,numeric,min=14,max=20"`
		Currency           string  `json:"currency" validate:"omitempty,len=3"`
		Concept            string  `json:"concept" validate:"omitempty,max=140"`
		ClientTxID         string  `json:"clientTxId" validate:"omitempty,max=64"`
		TwoFAVerified      bool    `json:"twoFAVerified"`
	}
	if !as.decodeJSON(w, r, &req) {
		return
	}

	if as.bank.Is2FARequired(req.Amount) && !req.TwoFAVerified {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{
			"requires2fa": true,
			"message":     "Amount requires phone verification before transfer",
		})
		return
	}

	tx, err := as.bank.Transfer(r.Context(), req.UserID, req.Amount,
		req.DestinationAccount, req.Currency, req.Concept, req.ClientTxID)
	if err != nil {
		switch {
		case errors.Is(err, ErrPayerNotFound):
			SendErrorResponse(w, "Payer wallet not found", http.StatusNotFound, nil)
		case errors.Is(err, ErrInsufficientFunds):
			SendErrorResponse(w, "Insufficient funds", http.StatusUnprocessableEntity, nil)
		case errors.Is(err, ErrRequestConflict):
			SendErrorResponse(w, "Transfer already in flight for this client transaction id", http.StatusConflict, nil)
		default:
			log.Printf("[BANK] transfer failed: %v", err)
			SendErrorResponse(w, "Failed to process transfer", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"transaction": tx,
	})
}

// GetTransaction returns one recorded transaction
// @Summary Get transaction by ID
// @Tags transfers
// @Produce json
// @Security BearerAuth
// @Param txId path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} services.ErrorResponse
// @Router /transfers/{txId} [get]
func (as *AccountService) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "txId")

	tx, err := as.bank.GetTransaction(r.Context(), txID)
	if err != nil {
		log.Printf("[BANK] fetching transaction %s: %v", txID, err)
		SendErrorResponse(w, "Failed to fetch transaction", http.StatusInternalServerError, nil)
		return
	}
	if tx == nil {
		SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tx)
}

// decodeJSON applies the strict single-object decode policy and struct
// validation shared by every JSON endpoint.
func (as *AccountService) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	if err := as.validator.ValidateStruct(dst); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}
