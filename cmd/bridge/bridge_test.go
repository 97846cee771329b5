package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gateway "github.com/nimasrn/support-inbox/internal/gateways"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(deliveryRate, outageRate float64, token string) *gin.Engine {
	return SetupRouter(NewHandler(NewBridge(deliveryRate, outageRate, 0, 0), token))
}

func post(t *testing.T, r http.Handler, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBridge_Send(t *testing.T) {
	r := newTestRouter(1, 0, "")
	req := SendRequest{JobID: 1, MessageID: 2, To: "+15551234567", Body: "hi", IdempotencyKey: "outbox-1"}

	w := post(t, r, "/api/v1/messages/send", req, "")
	require.Equal(t, http.StatusOK, w.Code)
	var first SendResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, StatusAccepted, first.Status)
	assert.NotEmpty(t, first.ProviderMessageID)

	t.Run("same idempotency key replays the answer", func(t *testing.T) {
		w := post(t, r, "/api/v1/messages/send", req, "")
		var again SendResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &again))
		assert.Equal(t, first.ProviderMessageID, again.ProviderMessageID)
	})

	t.Run("status lookup", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/messages/"+first.ProviderMessageID, nil))
		require.Equal(t, http.StatusOK, w.Code)
		var st SendResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
		assert.Equal(t, StatusDelivered, st.Status)

		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/messages/wamid.nope", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing recipient", func(t *testing.T) {
		w := post(t, r, "/api/v1/messages/send", SendRequest{Body: "hi"}, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestBridge_FailureModes(t *testing.T) {
	w := post(t, newTestRouter(0, 0, ""), "/api/v1/messages/send", SendRequest{To: "+1555", Body: "hi"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp SendResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, StatusFailed, resp.Status)
	assert.NotEmpty(t, resp.ErrorCode)
	assert.Equal(t, errorMessages[resp.ErrorCode], resp.ErrorMsg)

	w = post(t, newTestRouter(1, 1, ""), "/api/v1/messages/send", SendRequest{To: "+1555", Body: "hi"}, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBridge_Token(t *testing.T) {
	r := newTestRouter(1, 0, "bridge-token")
	req := SendRequest{To: "+1555", Body: "hi"}

	assert.Equal(t, http.StatusUnauthorized, post(t, r, "/api/v1/messages/send", req, "").Code)
	assert.Equal(t, http.StatusUnauthorized, post(t, r, "/api/v1/messages/send", req, "wrong").Code)
	assert.Equal(t, http.StatusOK, post(t, r, "/api/v1/messages/send", req, "bridge-token").Code)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBridge_UpdateConfig(t *testing.T) {
	b := NewBridge(1, 0, 0, 0)
	r := SetupRouter(NewHandler(b, ""))

	req := httptest.NewRequest(http.MethodPut, "/api/v1/config", bytes.NewBufferString(`{"delivery_rate":0.5,"outage_rate":2}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	delivery, outage := b.rates()
	assert.Equal(t, 0.5, delivery)
	assert.Equal(t, float64(0), outage)
}

// The delivery worker's relay must understand the bridge's wire format.
func TestBridge_RelayCompatibility(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(1, 0, "bridge-token"))
	defer srv.Close()
	rejecting := httptest.NewServer(newTestRouter(0, 0, "bridge-token"))
	defer rejecting.Close()

	relay, err := gateway.NewRelay(gateway.Config{
		Providers: []gateway.ProviderConfig{{Name: "bridge", URL: srv.URL, Weight: 100}},
		Token:     "bridge-token",
		Timeout:   2 * time.Second,
	})
	require.NoError(t, err)

	resp, err := relay.Send(context.Background(), gateway.SendRequest{
		JobID: 7, MessageID: 9, To: "+15551234567", Body: "hello", IdempotencyKey: "outbox-7",
	})
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusAccepted, resp.Status)
	assert.Equal(t, "bridge", resp.Provider)
	assert.NotEmpty(t, resp.ProviderMessageID)

	relay, err = gateway.NewRelay(gateway.Config{
		Providers: []gateway.ProviderConfig{{Name: "bridge", URL: rejecting.URL, Weight: 100}},
		Token:     "bridge-token",
	})
	require.NoError(t, err)
	_, err = relay.Send(context.Background(), gateway.SendRequest{JobID: 8, To: "+1555", Body: "x"})
	assert.True(t, errors.Is(err, gateway.ErrRejected))
}
