package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/argon2"

	"github.com/walletverify/backend/internal/config"
)

// VerificationResult is the provider's answer for a started or checked
// OTP challenge.
type VerificationResult struct {
	Status  string `json:"status"` // approved | denied | pending
	SID     string `json:"sid,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// VerifyProvider starts and checks one-time-passcode challenges for a
// phone number. Implementations must not be relied on to crash-stop the
// caller: failures are wrapped in ErrOtpProvider.
type VerifyProvider interface {
	Start(ctx context.Context, phone string) (*VerificationResult, error)
	Check(ctx context.Context, phone, code string) (*VerificationResult, error)
}

// NewVerifyProvider selects the provider implementation from config.
func NewVerifyProvider(cfg *config.VerifyConfig, otpCfg *config.OTPConfig, rdb *redis.Client) VerifyProvider {
	if strings.EqualFold(cfg.Provider, "twilio") {
		return NewTwilioVerifyClient(cfg)
	}
	return NewLocalVerifyProvider(rdb, otpCfg, cfg.Channel)
}

// TwilioVerifyClient talks to the Twilio Verify v2 REST API.
type TwilioVerifyClient struct {
	cfg    *config.VerifyConfig
	client *http.Client
}

func NewTwilioVerifyClient(cfg *config.VerifyConfig) *TwilioVerifyClient {
	return &TwilioVerifyClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *TwilioVerifyClient) Start(ctx context.Context, phone string) (*VerificationResult, error) {
	form := url.Values{}
	form.Set("To", phone)
	form.Set("Channel", c.cfg.Channel)

	var resp struct {
		SID     string `json:"sid"`
		Status  string `json:"status"`
		Channel string `json:"channel"`
	}
	if err := c.post(ctx, "/Services/"+c.cfg.ServiceSID+"/Verifications", form, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOtpProvider, err)
	}
	return &VerificationResult{Status: resp.Status, SID: resp.SID, Channel: resp.Channel}, nil
}

func (c *TwilioVerifyClient) Check(ctx context.Context, phone, code string) (*VerificationResult, error) {
	form := url.Values{}
	form.Set("To", phone)
	form.Set("Code", code)

	var resp struct {
		SID     string `json:"sid"`
		Status  string `json:"status"`
		Channel string `json:"channel"`
	}
	err := c.post(ctx, "/Services/"+c.cfg.ServiceSID+"/VerificationCheck", form, &resp)
	if err != nil {
		// Twilio answers 404 for a check against an expired or unknown
		// verification; treat it as a denial, not a provider fault.
		if strings.Contains(err.Error(), "status 404") {
			return &VerificationResult{Status: OTPDenied, Channel: c.cfg.Channel}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrOtpProvider, err)
	}

	status := resp.Status
	if status != OTPApproved && status != OTPPending {
		status = OTPDenied
	}
	return &VerificationResult{Status: status, SID: resp.SID, Channel: resp.Channel}, nil
}

// Lookup queries the carrier line type for a phone number via the
// Lookup v2 API. Failures are advisory; callers log and carry on.
func (c *TwilioVerifyClient) Lookup(ctx context.Context, phone string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://lookups.twilio.com/v2/PhoneNumbers/"+url.PathEscape(phone)+"?Fields=line_type_intelligence", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("lookup API returned status %d", resp.StatusCode)
	}

	var body struct {
		LineTypeIntelligence struct {
			Type string `json:"type"`
		} `json:"line_type_intelligence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.LineTypeIntelligence.Type, nil
}

func (c *TwilioVerifyClient) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("verify API returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// LocalVerifyProvider issues codes itself and keeps an argon2id hash in
// Redis under a TTL. Used for development and as the fallback when no
// Twilio credentials are configured.
type LocalVerifyProvider struct {
	redis   *redis.Client
	channel string
	cfg     *config.OTPConfig
}

func NewLocalVerifyProvider(rdb *redis.Client, cfg *config.OTPConfig, channel string) *LocalVerifyProvider {
	return &LocalVerifyProvider{
		redis:   rdb,
		channel: channel,
		cfg:     cfg,
	}
}

func (p *LocalVerifyProvider) Start(ctx context.Context, phone string) (*VerificationResult, error) {
	if p.redis == nil {
		return nil, fmt.Errorf("%w: redis unavailable", ErrOtpProvider)
	}

	code, err := generateCode(p.cfg.LocalCodeLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOtpProvider, err)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOtpProvider, err)
	}
	stored := encodeCodeHash(code, salt)

	key := localCodeKey(phone)
	if err := p.redis.Set(ctx, key, stored, p.cfg.LocalCodeTTL).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOtpProvider, err)
	}

	// In local mode the "delivery" is the log line.
	log.Printf("[VERIFY] local OTP for %s: %s", phone, code)

	return &VerificationResult{Status: OTPPending, SID: "local-" + key, Channel: p.channel}, nil
}

func (p *LocalVerifyProvider) Check(ctx context.Context, phone, code string) (*VerificationResult, error) {
	if p.redis == nil {
		return nil, fmt.Errorf("%w: redis unavailable", ErrOtpProvider)
	}

	key := localCodeKey(phone)
	stored, err := p.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return &VerificationResult{Status: OTPDenied, Channel: p.channel}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOtpProvider, err)
	}

	if !verifyCodeHash(code, stored) {
		return &VerificationResult{Status: OTPDenied, Channel: p.channel}, nil
	}

	p.redis.Del(ctx, key)
	return &VerificationResult{Status: OTPApproved, SID: "local-" + key, Channel: p.channel}, nil
}

func localCodeKey(phone string) string {
	return "verify:code:" + phone
}

func generateCode(length int) (string, error) {
	const digits = "0123456789"
	if length <= 0 {
		length = 6
	}
	code := make([]byte, length)
	charsetLen := big.NewInt(int64(len(digits)))
	for i := range code {
		n, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", err
		}
		code[i] = digits[n.Int64()]
	}
	return string(code), nil
}

func encodeCodeHash(code string, salt []byte) string {
	hash := argon2.IDKey([]byte(code), salt, 1, 64*1024, 4, 32)
	return base64.StdEncoding.EncodeToString(salt) + "$" + base64.StdEncoding.EncodeToString(hash)
}

func verifyCodeHash(code, stored string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 2 {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	computed := argon2.IDKey([]byte(code), salt, 1, 64*1024, 4, 32)
	return subtle.ConstantTimeCompare(expected, computed) == 1
}
