package config

import (
	"os"
	"strconv"
	"time"
)

type OTPConfig struct {
	MaxAttempts        int
	LockDuration       time.Duration
	InboundPerMinute   int
	VerifyPerMinute    int
	RateLimitWindow    time.Duration
	ConfirmKeyword     string
	LocalCodeLength    int
	LocalCodeTTL       time.Duration
}

func LoadOTPConfig() *OTPConfig {
	return &OTPConfig{
		MaxAttempts:      getEnvAsInt("OTP_MAX_ATTEMPTS", 5),
		LockDuration:     time.Duration(getEnvAsInt("OTP_LOCK_MINUTES", 5)) * time.Minute,
		InboundPerMinute: getEnvAsInt("RATE_LIMIT_WHATSAPP_PER_MINUTE", 30),
		VerifyPerMinute:  getEnvAsInt("RATE_LIMIT_VERIFY_PER_MINUTE", 10),
		RateLimitWindow:  getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		ConfirmKeyword:   getEnv("OTP_CONFIRM_KEYWORD", "confirmar"),
		LocalCodeLength:  getEnvAsInt("OTP_LOCAL_CODE_LENGTH", 6),
		LocalCodeTTL:     getEnvAsDuration("OTP_LOCAL_CODE_TTL", 10*time.Minute),
	}
}

type VerifyConfig struct {
	Provider   string // "twilio" or "local"
	AccountSID string
	AuthToken  string
	ServiceSID string
	BaseURL    string
	Channel    string
	Timeout    time.Duration
}

func LoadVerifyConfig() *VerifyConfig {
	return &VerifyConfig{
		Provider:   getEnv("VERIFY_PROVIDER", "local"),
		AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		ServiceSID: getEnv("TWILIO_VERIFY_SERVICE_SID", ""),
		BaseURL:    getEnv("TWILIO_VERIFY_BASE_URL", "https://verify.twilio.com/v2"),
		Channel:    getEnv("VERIFY_CHANNEL", "whatsapp"),
		Timeout:    getEnvAsDuration("VERIFY_TIMEOUT", 10*time.Second),
	}
}

type BankConfig struct {
	Currency        string
	DefaultConcept  string
	TwoFAThreshold  float64
	TransferTimeout time.Duration
}

func LoadBankConfig() *BankConfig {
	return &BankConfig{
		Currency:        getEnv("BANK_CURRENCY", "MXN"),
		DefaultConcept:  getEnv("BANK_DEFAULT_CONCEPT", "Transferencia WhatsApp"),
		TwoFAThreshold:  getEnvAsFloat("TRANSFER_2FA_THRESHOLD", 1000),
		TransferTimeout: getEnvAsDuration("BANK_TRANSFER_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
