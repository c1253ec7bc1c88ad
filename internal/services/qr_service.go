package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

// QRService issues short-lived payment-request (cobro) codes: a payee
// encodes an amount, the payer scans it and the decoded request feeds a
// normal transfer. Codes are single-use and expire from Redis.
type QRService struct {
	redis *redis.Client
}

// PaymentRequest is the payload carried inside a cobro code.
type PaymentRequest struct {
	PayeeUserID        string  `json:"payeeUserId"`
	DestinationAccount string  `json:"destinationAccount"`
	Amount             float64 `json:"amount"`
	Currency           string  `json:"currency"`
	Concept            string  `json:"concept,omitempty"`
	Timestamp          int64   `json:"timestamp"`
	Nonce              string  `json:"nonce"`
}

func NewQRService(rdb *redis.Client) *QRService {
	return &QRService{redis: rdb}
}

// GeneratePaymentRequest encodes the request as an opaque token, stores
// it under a 5 minute TTL and renders the QR image as base64 PNG.
func (s *QRService) GeneratePaymentRequest(ctx context.Context, req *PaymentRequest) (string, string, error) {
	req.Timestamp = time.Now().Unix()
	req.Nonce = s.generateNonce()

	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", "", err
	}

	token := base64.URLEncoding.EncodeToString(jsonData)

	key := fmt.Sprintf("qr:%s", token)
	if err := s.redis.Set(ctx, key, jsonData, 5*time.Minute).Err(); err != nil {
		return "", "", err
	}

	qr, err := qrcode.New(token, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	return token, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ResolvePaymentRequest consumes a scanned token. Each token resolves
// at most once; a replayed or expired token is rejected.
func (s *QRService) ResolvePaymentRequest(ctx context.Context, token string) (*PaymentRequest, error) {
	key := fmt.Sprintf("qr:%s", token)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("invalid or expired payment request")
	}
	if err != nil {
		return nil, err
	}

	var req PaymentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}

	s.redis.Del(ctx, key)

	return &req, nil
}

func (s *QRService) generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
