package billing

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

func testClient(t *testing.T, baseURL string) *NetopiaClient {
	t.Helper()
	return NewNetopiaClient(&Config{
		APIKey:     "api-key",
		SecretKey:  "secret-key",
		BaseURL:    baseURL,
		APIBaseURL: "https://app.example.com",
		Timeout:    5 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// decryptPayload undoes encryptPayload with the same derived key, so the test
// can verify what actually went over the wire.
func decryptPayload(t *testing.T, secretKey, encoded string) map[string]interface{} {
	t.Helper()

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	key := pbkdf2.Key([]byte(secretKey), []byte(keyDerivationSalt), keyDerivationIterations, derivedKeyLength, sha256.New)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)

	require.Greater(t, len(sealed), gcm.NonceSize())
	plaintext, err := gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], nil)
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(plaintext, &payload))
	return payload
}

func TestNetopiaClient_CreateRecurringPayment(t *testing.T) {
	t.Run("successful charge", func(t *testing.T) {
		var captured struct {
			Payload   string `json:"payload"`
			Signature string `json:"signature"`
			Timestamp int64  `json:"timestamp"`
		}
		var authHeader string

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v1/payments", r.URL.Path)
			authHeader = r.Header.Get("Authorization")

			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(ChargeResult{
				Success:        true,
				GatewayOrderID: "ntp-777",
				Status:         "confirmed",
			})
		}))
		defer srv.Close()

		client := testClient(t, srv.URL)
		result, err := client.CreateRecurringPayment(context.Background(), ChargeRequest{
			OrderID:        "order-1",
			SubscriptionID: "sub-1",
			Amount:         9.99,
			Currency:       "RON",
		})
		require.NoError(t, err)

		assert.True(t, result.Success)
		assert.Equal(t, "ntp-777", result.GatewayOrderID)
		assert.Equal(t, "confirmed", result.Status)

		assert.Equal(t, "Bearer api-key", authHeader)
		assert.NotEmpty(t, captured.Payload)
		assert.NotZero(t, captured.Timestamp)

		// The signature must be reproducible from payload and timestamp.
		assert.Equal(t, client.sign(captured.Payload, captured.Timestamp), captured.Signature)

		// The encrypted payload must decrypt back to the order request.
		payload := decryptPayload(t, "secret-key", captured.Payload)
		order := payload["order"].(map[string]interface{})
		assert.Equal(t, "aes-256-gcm", order["ipn_cipher"])
		assert.Equal(t, "api-key", order["signature"])

		orderAttrs := order["$"].(map[string]interface{})
		assert.Equal(t, "order-1", orderAttrs["id"])
		assert.Equal(t, "card", orderAttrs["type"])

		invoice := order["invoice"].(map[string]interface{})
		invoiceAttrs := invoice["$"].(map[string]interface{})
		assert.Equal(t, 9.99, invoiceAttrs["amount"])
		assert.Equal(t, "RON", invoiceAttrs["currency"])
		assert.Contains(t, invoice["details"], "sub-1")

		urls := order["url"].(map[string]interface{})
		assert.Equal(t, "https://app.example.com/webhook/netopia/ipn", urls["confirm"])
	})

	t.Run("gateway error carries the message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(ChargeResult{
				Success: false,
				Message: "insufficient funds",
			})
		}))
		defer srv.Close()

		result, err := testClient(t, srv.URL).CreateRecurringPayment(context.Background(), ChargeRequest{
			OrderID: "order-1",
			Amount:  9.99,
		})
		require.Error(t, err)
		assert.Nil(t, result)
		assert.Contains(t, err.Error(), "status 402")
		assert.Contains(t, err.Error(), "insufficient funds")
	})

	t.Run("gateway error without message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		_, err := testClient(t, srv.URL).CreateRecurringPayment(context.Background(), ChargeRequest{OrderID: "order-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown error")
	})

	t.Run("non-json response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>gateway maintenance</html>"))
		}))
		defer srv.Close()

		_, err := testClient(t, srv.URL).CreateRecurringPayment(context.Background(), ChargeRequest{OrderID: "order-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode gateway response")
	})

	t.Run("unreachable gateway", func(t *testing.T) {
		client := testClient(t, "http://127.0.0.1:1")

		_, err := client.CreateRecurringPayment(context.Background(), ChargeRequest{OrderID: "order-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "gateway request failed")
	})
}

func TestNetopiaClient_Sign(t *testing.T) {
	client := testClient(t, "http://unused")

	sig1 := client.sign("payload", 1756000000)
	sig2 := client.sign("payload", 1756000000)
	assert.Equal(t, sig1, sig2)
	assert.Len(t, sig1, 64) // hex-encoded SHA-256

	assert.NotEqual(t, sig1, client.sign("payload", 1756000001))
	assert.NotEqual(t, sig1, client.sign("other", 1756000000))
}

func TestNetopiaClient_EncryptPayloadNonceVaries(t *testing.T) {
	client := testClient(t, "http://unused")
	payload := map[string]interface{}{"k": "v"}

	first, err := client.encryptPayload(payload)
	require.NoError(t, err)
	second, err := client.encryptPayload(payload)
	require.NoError(t, err)

	// Fresh nonce per call; identical plaintexts never encrypt alike.
	assert.NotEqual(t, first, second)
}

func TestNewNetopiaClient_DefaultTimeout(t *testing.T) {
	client := NewNetopiaClient(&Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, 30*time.Second, client.http.Timeout)
}
