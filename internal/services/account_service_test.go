package services

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletverify/backend/internal/nlu"
)

func newTestAccountService(db *sql.DB, verify VerifyProvider) *AccountService {
	bank := NewBankService(db, testBankConfig())
	return NewAccountService(NewUserStore(db), bank, verify,
		NewRateLimiter(), NewLockoutPolicy(testOTPConfig()), nlu.NewRuleParser(), testOTPConfig())
}

func postJSON(handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestCreateTransferRequires2FA(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := newTestAccountService(db, &fakeVerify{})

	rec := postJSON(svc.CreateTransfer, "/transfers",
		`{"userId":"u1","amount":1500,"destinationAccount":"012345678901234567"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"requires2fa":true`)
	assert.NoError(t, mock.ExpectationsWereMet(), "no ledger call before verification")
}

func TestCreateTransferBelowThresholdExecutes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance"}).AddRow("w1", 500.0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE wallets")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	svc := newTestAccountService(db, &fakeVerify{})

	rec := postJSON(svc.CreateTransfer, "/transfers",
		`{"userId":"u1","amount":200,"destinationAccount":"012345678901234567"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTransferValidation(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := newTestAccountService(db, &fakeVerify{})

	// Destination too short to be a CLABE.
	rec := postJSON(svc.CreateTransfer, "/transfers",
		`{"userId":"u1","amount":200,"destinationAccount":"12345"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown field rejected by the strict decoder.
	rec = postJSON(svc.CreateTransfer, "/transfers",
		`{"userId":"u1","amount":200,"destinationAccount":"012345678901234567","bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTransferInsufficientFunds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance"}).AddRow("w1", 10.0))
	mock.ExpectRollback()

	svc := newTestAccountService(db, &fakeVerify{})

	rec := postJSON(svc.CreateTransfer, "/transfers",
		`{"userId":"u1","amount":200,"destinationAccount":"012345678901234567"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSendVerificationRateLimited(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := testOTPConfig()
	cfg.VerifyPerMinute = 0
	bank := NewBankService(db, testBankConfig())
	svc := NewAccountService(NewUserStore(db), bank, &fakeVerify{},
		NewRateLimiter(), NewLockoutPolicy(cfg), nlu.NewRuleParser(), cfg)

	rec := postJSON(svc.SendVerification, "/verify/send", `{"phone":"+5215512345678"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSendVerificationStartsChallenge(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	verify := &fakeVerify{}
	svc := newTestAccountService(db, verify)

	rec := postJSON(svc.SendVerification, "/verify/send", `{"phone":"+5215512345678"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, verify.startCalls)
	assert.Contains(t, rec.Body.String(), OTPPending)
}

func TestParseMessageEndpoint(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := newTestAccountService(db, &fakeVerify{})

	rec := postJSON(svc.ParseMessage, "/nlu/parse",
		`{"text":"Transferir 100.50 a 012345678901234567"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), nlu.IntentTransfer)
	assert.Contains(t, rec.Body.String(), "100.5")
}

func TestGetBalanceEndpoint(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT balance FROM wallets")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(750.25))

	svc := newTestAccountService(db, &fakeVerify{})

	r := chi.NewRouter()
	r.Get("/accounts/{userId}/balance", svc.GetBalance)

	req := httptest.NewRequest(http.MethodGet, "/accounts/u1/balance", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "750.25")
	assert.Contains(t, rec.Body.String(), "MXN")
}
