package billing

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyDerivationSalt       = "netopia_salt"
	keyDerivationIterations = 100000
	derivedKeyLength        = 32
)

// Config holds Netopia gateway credentials and endpoints.
type Config struct {
	APIKey     string
	SecretKey  string
	BaseURL    string
	APIBaseURL string
	Timeout    time.Duration
}

// NetopiaClient talks to the Netopia payments API for token-based recurring
// charges. Payloads are encrypted with a key derived from the shared secret
// and every request carries an HMAC signature over payload and timestamp.
type NetopiaClient struct {
	config *Config
	http   *http.Client
	logger *slog.Logger
}

// ChargeRequest describes one recurring charge against a stored token.
type ChargeRequest struct {
	OrderID        string
	SubscriptionID string
	Amount         float64
	Currency       string
}

// ChargeResult is the gateway's answer to a charge attempt.
type ChargeResult struct {
	Success        bool   `json:"success"`
	GatewayOrderID string `json:"netopia_order_id"`
	Status         string `json:"status"`
	Message        string `json:"message"`
}

// NewNetopiaClient creates a gateway client. A zero timeout defaults to 30s.
func NewNetopiaClient(config *Config, logger *slog.Logger) *NetopiaClient {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &NetopiaClient{
		config: config,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// CreateRecurringPayment charges one renewal order through the gateway.
func (c *NetopiaClient) CreateRecurringPayment(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	payload := map[string]interface{}{
		"order": map[string]interface{}{
			"$": map[string]interface{}{
				"id":        req.OrderID,
				"timestamp": time.Now().UnixMilli(),
				"type":      "card",
			},
			"signature": c.config.APIKey,
			"url": map[string]string{
				"return":  c.config.APIBaseURL + "/payment/success",
				"confirm": c.config.APIBaseURL + "/webhook/netopia/ipn",
			},
			"invoice": map[string]interface{}{
				"$": map[string]interface{}{
					"currency": req.Currency,
					"amount":   req.Amount,
				},
				"details": fmt.Sprintf("Recurring payment for subscription %s", req.SubscriptionID),
			},
			"ipn_cipher": "aes-256-gcm",
		},
	}

	encrypted, err := c.encryptPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt payload: %w", err)
	}

	timestamp := time.Now().Unix()
	signature := c.sign(encrypted, timestamp)

	body, err := json.Marshal(map[string]interface{}{
		"payload":   encrypted,
		"signature": signature,
		"timestamp": timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/v1/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	var result ChargeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := result.Message
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("gateway error (status %d): %s", resp.StatusCode, msg)
	}

	c.logger.Info("Recurring payment created",
		slog.String("order_id", req.OrderID),
		slog.String("gateway_order_id", result.GatewayOrderID),
	)

	return &result, nil
}

// encryptPayload serializes and seals the payload with AES-256-GCM under a
// PBKDF2-derived key, returning it base64 encoded.
func (c *NetopiaClient) encryptPayload(payload map[string]interface{}) (string, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	key := pbkdf2.Key([]byte(c.config.SecretKey), []byte(keyDerivationSalt), keyDerivationIterations, derivedKeyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// sign computes the HMAC-SHA256 request signature over payload+timestamp.
func (c *NetopiaClient) sign(payload string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(c.config.SecretKey))
	fmt.Fprintf(mac, "%s%d", payload, timestamp)
	return hex.EncodeToString(mac.Sum(nil))
}
