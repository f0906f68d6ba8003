package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appAudit "github.com/clubhub/marketplace/internal/application/audit"
	appAuth "github.com/clubhub/marketplace/internal/application/auth"
	"github.com/clubhub/marketplace/internal/application/listing"
	appMember "github.com/clubhub/marketplace/internal/application/member"
	"github.com/clubhub/marketplace/internal/application/negotiation"
	appRating "github.com/clubhub/marketplace/internal/application/rating"
	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/infrastructure/memory"
	"github.com/clubhub/marketplace/internal/infrastructure/sse"
)

type testAPI struct {
	t       *testing.T
	handler http.Handler
	hub     *sse.Hub
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := zerolog.Nop()
	store := memory.NewStore()
	hub := sse.NewHub()
	t.Cleanup(hub.Stop)
	auditSvc := appAudit.NewService(store.AuditLogs(), logger, []byte("audit-key"))
	listingSvc := listing.NewService(store.Items(), store.Offers(), auditSvc, logger)
	srv := NewServer(Deps{
		Auth:        appAuth.NewService(store.Members(), []byte("0123456789abcdef"), time.Hour, logger),
		Members:     appMember.NewService(store.Members(), logger),
		Listings:    listingSvc,
		Negotiation: negotiation.NewService(store.Items(), store.Offers(), listingSvc, auditSvc, hub, logger),
		Ratings:     appRating.NewService(store.Items(), store.Offers(), store.Ratings(), auditSvc, hub, logger),
		Audit:       auditSvc,
		Hub:         hub,
		Logger:      logger,
	})
	return &testAPI{t: t, handler: srv.Router(), hub: hub}
}

func (a *testAPI) do(method, path, token string, body interface{}) (int, map[string]interface{}) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	out := map[string]interface{}{}
	if rec.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

type session struct {
	token   string
	id      string
	shortID string
}

func (a *testAPI) register(username string) session {
	a.t.Helper()
	code, body := a.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"username": username,
		"password": "Correct-Horse-42",
	})
	require.Equal(a.t, http.StatusCreated, code, body)
	m := body["member"].(map[string]interface{})
	return session{token: body["token"].(string), id: m["memberId"].(string), shortID: m["shortId"].(string)}
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func TestFullTransactionOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	seller := api.register("seller")
	buyer := api.register("buyer")

	code, it := api.do(http.MethodPost, "/v1/items", seller.token, map[string]interface{}{
		"title":       "Signed match ball",
		"askingPrice": "120.00",
	})
	require.Equal(t, http.StatusCreated, code, it)
	itemID := str(it["itemId"])
	assert.Equal(t, "active", it["status"])

	code, first := api.do(http.MethodPost, "/v1/items/"+itemID+"/offers", buyer.token, map[string]interface{}{"amount": "90"})
	require.Equal(t, http.StatusCreated, code, first)

	code, counter := api.do(http.MethodPost, "/v1/offers/"+str(first["offerId"])+"/counter", seller.token, map[string]interface{}{"amount": "110", "note": "firm"})
	require.Equal(t, http.StatusCreated, code, counter)
	counterID := str(counter["offerId"])

	code, body := api.do(http.MethodPost, "/v1/offers/"+counterID+"/accept", seller.token, nil)
	assert.Equal(t, http.StatusForbidden, code, "sender cannot accept own counter")
	assert.Equal(t, apperr.CodeForbidden, body["error"])

	code, accepted := api.do(http.MethodPost, "/v1/offers/"+counterID+"/accept", buyer.token, nil)
	require.Equal(t, http.StatusOK, code, accepted)
	assert.Equal(t, "accepted", accepted["status"])

	code, it = api.do(http.MethodGet, "/v1/items/"+itemID, buyer.token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "sold", it["status"])

	code, body = api.do(http.MethodPost, "/v1/offers/"+counterID+"/ratings", seller.token, map[string]interface{}{"score": 5})
	assert.Equal(t, http.StatusConflict, code, "rating waits for receipt")
	assert.Equal(t, apperr.CodeConflict, body["error"])

	code, _ = api.do(http.MethodPost, "/v1/offers/"+counterID+"/confirm-receipt", seller.token, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, confirmed := api.do(http.MethodPost, "/v1/offers/"+counterID+"/confirm-receipt", buyer.token, nil)
	require.Equal(t, http.StatusOK, code, confirmed)
	assert.Equal(t, true, confirmed["receiptConfirmed"])

	code, elig := api.do(http.MethodGet, "/v1/offers/"+counterID+"/rating-eligibility", seller.token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "seller", elig["role"])
	assert.Equal(t, true, elig["canRate"])

	code, rating := api.do(http.MethodPost, "/v1/offers/"+counterID+"/ratings", buyer.token, map[string]interface{}{
		"score":    4,
		"comment":  "as described",
		"reviewee": map[string]string{"shortId": seller.shortID},
	})
	require.Equal(t, http.StatusCreated, code, rating)
	code, body = api.do(http.MethodPost, "/v1/offers/"+counterID+"/ratings", buyer.token, map[string]interface{}{"score": 5})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, apperr.CodeAlreadyRated, body["error"])

	ratingID := str(rating["ratingId"])
	code, _ = api.do(http.MethodPost, "/v1/ratings/"+ratingID+"/response", seller.token, map[string]string{"response": "thanks"})
	assert.Equal(t, http.StatusOK, code)
	code, body = api.do(http.MethodPost, "/v1/ratings/"+ratingID+"/response", seller.token, map[string]string{"response": "again"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, apperr.CodeAlreadyResponded, body["error"])

	code, profile := api.do(http.MethodGet, "/v1/members/"+seller.shortID+"/ratings", buyer.token, nil)
	require.Equal(t, http.StatusOK, code)
	summary := profile["summary"].(map[string]interface{})
	assert.EqualValues(t, 1, summary["count"])
	assert.EqualValues(t, 4, summary["average"])

	code, history := api.do(http.MethodGet, "/v1/items/"+itemID+"/offers", seller.token, nil)
	require.Equal(t, http.StatusOK, code)
	offers := history["offers"].([]interface{})
	require.Len(t, offers, 2)
	assert.Equal(t, counterID, str(offers[0].(map[string]interface{})["offerId"]))
}

func TestAuthAndErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	admin := api.register("admin")
	member := api.register("member")

	code, body := api.do(http.MethodGet, "/v1/items", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, apperr.CodeUnauthorized, body["error"])

	code, _ = api.do(http.MethodGet, "/v1/items", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = api.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "member", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, apperr.CodeUnauthorized, body["error"])

	code, body = api.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "MEMBER", "password": "Correct-Horse-42"})
	require.Equal(t, http.StatusOK, code, body)
	assert.NotEmpty(t, body["token"])

	code, me := api.do(http.MethodGet, "/v1/auth/me", member.token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, member.shortID, me["shortId"])
	assert.Equal(t, "MEMBER", me["role"])

	code, _ = api.do(http.MethodGet, "/v1/members", member.token, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = api.do(http.MethodGet, "/v1/members", admin.token, nil)
	assert.Equal(t, http.StatusOK, code)

	code, body = api.do(http.MethodPost, "/v1/items", member.token, map[string]interface{}{"askingPrice": "5"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, apperr.CodeValidation, body["error"])
	assert.Contains(t, str(body["message"]), "title")

	code, _ = api.do(http.MethodPost, "/v1/items", member.token, map[string]interface{}{"title": "x", "askingPrice": "5", "bogus": 1})
	assert.Equal(t, http.StatusBadRequest, code, "unknown fields are rejected")

	code, _ = api.do(http.MethodGet, "/v1/items/not-a-uuid", member.token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, body = api.do(http.MethodGet, "/v1/items/6f1c3c52-2f53-4c4b-9a53-2a3f7f0e8a11", member.token, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, apperr.CodeNotFound, body["error"])

	code, it := api.do(http.MethodPost, "/v1/items", member.token, map[string]interface{}{"title": "Cap", "askingPrice": "12", "status": "draft"})
	require.Equal(t, http.StatusCreated, code)
	itemID := str(it["itemId"])
	code, _ = api.do(http.MethodPost, "/v1/items/"+itemID+"/offers", admin.token, map[string]interface{}{"amount": "10"})
	assert.Equal(t, http.StatusBadRequest, code, "drafts take no offers")
	code, _ = api.do(http.MethodPost, "/v1/items/"+itemID+"/publish", admin.token, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = api.do(http.MethodPost, "/v1/items/"+itemID+"/publish", member.token, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = api.do(http.MethodPost, "/v1/items/"+itemID+"/offers", member.token, map[string]interface{}{"amount": "10"})
	assert.Equal(t, http.StatusBadRequest, code, "no self-offers")

	code, _ = api.do(http.MethodPost, "/v1/members/"+member.shortID+"/status", admin.token, map[string]string{"status": "DISABLED"})
	assert.Equal(t, http.StatusOK, code)
	code, _ = api.do(http.MethodGet, "/v1/items", member.token, nil)
	assert.Equal(t, http.StatusUnauthorized, code, "disabled members lose access")
}

func TestEventStreamDeliversToRecipient(t *testing.T) {
	api := newTestAPI(t)
	seller := api.register("seller")
	buyer := api.register("buyer")

	_, it := api.do(http.MethodPost, "/v1/items", seller.token, map[string]interface{}{"title": "Pennant", "askingPrice": "8"})
	itemID := str(it["itemId"])

	srv := httptest.NewServer(api.handler)
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events?access_token="+seller.token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, ": connected"))
	require.Eventually(t, func() bool { return api.hub.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)

	code, _ := api.do(http.MethodPost, "/v1/items/"+itemID+"/offers", buyer.token, map[string]interface{}{"amount": "6"})
	require.Equal(t, http.StatusCreated, code)

	var event, data string
	for event == "" || data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	assert.Equal(t, "offer.created", event)
	assert.Contains(t, data, itemID)
}
