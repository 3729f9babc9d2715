package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T) *gin.Engine {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	cfg := testConfig()
	cfg.DB.DSN = os.Getenv("DB_DSN")
	cfg.DB.AutoMigrate = true
	cfg.Auth.AdminPassword = "admin123"

	st, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, st)
	t.Cleanup(func() { _ = st.Close() })

	return newTestRouter(t, cfg, staticRecognizer(invoiceText, nil), nil, st)
}

func TestFullFlow(t *testing.T) {
	r := setupTestServer(t)
	username := fmt.Sprintf("user-%d", time.Now().UnixNano())

	// 1. Register user
	regBody, _ := json.Marshal(map[string]string{"username": username, "password": "pass12"})
	resp := performRequest(r, http.MethodPost, "/register", bytes.NewBuffer(regBody), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	// 2. Login
	token, refresh := login(t, r, username, "pass12")

	// 3. Upload an invoice
	resp = postImage(t, r, "/api/ocr", token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	id, ok := decode(t, resp)["scan_id"].(float64)
	require.True(t, ok, "scan is stored")

	// 4. Read it back
	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/api/scans/%d", int(id)), nil, token, "")
	require.Equal(t, http.StatusOK, resp.Code)
	scan := decode(t, resp)
	assert.Equal(t, "2023-08-05", scan["date"])
	assert.Equal(t, "145.99", scan["amount_value"])

	// 5. Monthly summary
	resp = performRequest(r, http.MethodGet, "/api/scans/summary", nil, token, "")
	require.Equal(t, http.StatusOK, resp.Code)
	var months []map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &months))
	require.NotEmpty(t, months)
	assert.Equal(t, "2023-08", months[0]["month"])

	// 6. Refresh rotates the token
	rtBody, _ := json.Marshal(map[string]string{"refresh_token": refresh})
	resp = performRequest(r, http.MethodPost, "/refresh", bytes.NewBuffer(rtBody), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code)
	resp = performRequest(r, http.MethodPost, "/refresh", bytes.NewBuffer(rtBody), "", "application/json")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	// 7. Unauthorized access to the history should be 401
	unauth := performRequest(r, http.MethodGet, "/api/scans", nil, "", "")
	assert.Equal(t, http.StatusUnauthorized, unauth.Code)
}
