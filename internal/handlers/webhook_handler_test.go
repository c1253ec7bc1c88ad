package handlers

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletverify/backend/internal/config"
	"github.com/walletverify/backend/internal/nlu"
	"github.com/walletverify/backend/internal/services"
)

func newWebhookHandler(t *testing.T, authToken string) *WebhookHandler {
	t.Helper()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.OTPConfig{
		MaxAttempts:      5,
		LockDuration:     5 * time.Minute,
		InboundPerMinute: 30,
		VerifyPerMinute:  10,
		RateLimitWindow:  time.Minute,
		ConfirmKeyword:   "confirmar",
	}
	bankCfg := &config.BankConfig{Currency: "MXN", TwoFAThreshold: 1000, TransferTimeout: 10 * time.Second}

	bank := services.NewBankService(db, bankCfg)
	orchestrator := services.NewOrchestrator(db, services.NewRateLimiter(),
		services.NewUserStore(db), services.NewPendingRequestStore(db),
		services.NewLockoutPolicy(cfg),
		services.NewLocalVerifyProvider(nil, cfg, "whatsapp"),
		bank, nlu.NewRuleParser(), services.NewTaskRunner(time.Second), cfg)

	return NewWebhookHandler(orchestrator, authToken, "")
}

func postForm(handler http.HandlerFunc, form url.Values, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func twilioSignature(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(fullURL))
	for _, k := range keys {
		mac.Write([]byte(k))
		mac.Write([]byte(form.Get(k)))
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhookRepliesTwiML(t *testing.T) {
	h := newWebhookHandler(t, "")

	form := url.Values{"From": {"whatsapp:garbage"}, "Body": {"Saldo"}}
	rec := postForm(h.InboundMessage, form, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<Response><Message>")
	assert.Contains(t, rec.Body.String(), services.ReplyInvalidPhone)
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	h := newWebhookHandler(t, "secret-token")

	form := url.Values{"From": {"whatsapp:garbage"}, "Body": {"Saldo"}}
	rec := postForm(h.InboundMessage, form, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := newWebhookHandler(t, "secret-token")

	form := url.Values{"From": {"whatsapp:garbage"}, "Body": {"Saldo"}}
	rec := postForm(h.InboundMessage, form, map[string]string{
		"X-Twilio-Signature": "bm90LWEtcmVhbC1zaWduYXR1cmU=",
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookAcceptsValidSignature(t *testing.T) {
	h := newWebhookHandler(t, "secret-token")
	h.publicURL = "https://bot.example.com/webhook/whatsapp"

	form := url.Values{"From": {"whatsapp:garbage"}, "Body": {"Saldo"}}
	sig := twilioSignature("secret-token", h.publicURL, form)
	rec := postForm(h.InboundMessage, form, map[string]string{
		"X-Twilio-Signature": sig,
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Response>")
}
