package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookrelay.io/internal/apps"
	"hookrelay.io/internal/auth"
	"hookrelay.io/internal/envelope"
	"hookrelay.io/internal/ids"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	tokens  *auth.Tokens
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	tokens, err := auth.NewTokens(auth.NewKeys([]byte("test-secret")), "hookrelay-test")
	require.NoError(t, err)

	var key [envelope.KeySize]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")
	store := apps.NewCached(apps.NewInMemory(envelope.New(key)), 0, 0)

	api := New(tokens, store, Options{Version: "test", RateBurst: 1000, RatePerSecond: 1000})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{baseURL: srv.URL, client: srv.Client(), tokens: tokens, t: t}
}

func (c *apiClient) orgToken(org ids.OrganizationID) string {
	c.t.Helper()
	tok, err := c.tokens.GenerateOrgToken(org)
	require.NoError(c.t, err)
	return tok
}

func (c *apiClient) do(method, path, token string, body any) (*http.Response, []byte) {
	c.t.Helper()
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, payload)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, data
}

func (c *apiClient) createApp(token, name, uid string) apps.Application {
	c.t.Helper()
	resp, body := c.do(http.MethodPost, "/api/v1/app", token, createAppRequest{Name: name, UID: uid})
	require.Equal(c.t, http.StatusCreated, resp.StatusCode, string(body))
	var app apps.Application
	require.NoError(c.t, json.Unmarshal(body, &app))
	return app
}

func decodeError(t *testing.T, body []byte) map[string]string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestHealthz(t *testing.T) {
	c := newTestAPI(t)
	resp, body := c.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestMissingOrInvalidToken(t *testing.T) {
	c := newTestAPI(t)

	resp, body := c.do(http.MethodGet, "/api/v1/app", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	e := decodeError(t, body)
	assert.Equal(t, "authentication_failed", e["code"])
	assert.Equal(t, "Invalid token", e["detail"])

	resp, _ = c.do(http.MethodGet, "/api/v1/app", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateListAndGetApp(t *testing.T) {
	c := newTestAPI(t)
	org := ids.NewOrganizationID()
	tok := c.orgToken(org)

	app := c.createApp(tok, "billing", "billing-prod")
	require.NoError(t, app.ID.Validate())

	resp, body := c.do(http.MethodGet, "/api/v1/app", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list listAppsResponse
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, app.ID, list.Data[0].ID)

	for _, ref := range []string{app.ID.String(), "billing-prod"} {
		resp, body = c.do(http.MethodGet, "/api/v1/app/"+ref, tok, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, ref)
		var got apps.Application
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, app.ID, got.ID)
	}
}

func TestCreateAppValidation(t *testing.T) {
	c := newTestAPI(t)
	tok := c.orgToken(ids.NewOrganizationID())

	resp, _ := c.do(http.MethodPost, "/api/v1/app", tok, createAppRequest{Name: " "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = c.do(http.MethodPost, "/api/v1/app", tok, createAppRequest{Name: "x", UID: "has space"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	c.createApp(tok, "first", "dup")
	resp, _ = c.do(http.MethodPost, "/api/v1/app", tok, createAppRequest{Name: "second", UID: "dup"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestOtherOrganizationSeesNotFound(t *testing.T) {
	c := newTestAPI(t)
	owner := c.orgToken(ids.NewOrganizationID())
	other := c.orgToken(ids.NewOrganizationID())
	app := c.createApp(owner, "billing", "")

	resp, _ := c.do(http.MethodGet, "/api/v1/app/"+app.ID.String(), other, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = c.do(http.MethodDelete, "/api/v1/app/"+app.ID.String(), other, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMalformedAppID(t *testing.T) {
	c := newTestAPI(t)
	tok := c.orgToken(ids.NewOrganizationID())

	resp, body := c.do(http.MethodGet, "/api/v1/app/bad!id", tok, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", decodeError(t, body)["code"])
}

func TestAppPortalAccessToken(t *testing.T) {
	c := newTestAPI(t)
	orgTok := c.orgToken(ids.NewOrganizationID())
	app := c.createApp(orgTok, "billing", "")
	sibling := c.createApp(orgTok, "shipping", "")

	resp, body := c.do(http.MethodPost, "/api/v1/auth/app-portal-access/"+app.ID.String(), orgTok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var portal portalAccessResponse
	require.NoError(t, json.Unmarshal(body, &portal))
	require.NotEmpty(t, portal.Token)

	resp, _ = c.do(http.MethodGet, "/api/v1/app/"+app.ID.String(), portal.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = c.do(http.MethodGet, "/api/v1/app/"+sibling.ID.String(), portal.Token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = c.do(http.MethodGet, "/api/v1/app", portal.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = c.do(http.MethodDelete, "/api/v1/app/"+app.ID.String(), portal.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = c.do(http.MethodPost, "/api/v1/auth/app-portal-access/"+app.ID.String(), portal.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDeleteApp(t *testing.T) {
	c := newTestAPI(t)
	tok := c.orgToken(ids.NewOrganizationID())
	app := c.createApp(tok, "billing", "billing-uid")

	resp, _ := c.do(http.MethodGet, "/api/v1/app/billing-uid", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = c.do(http.MethodDelete, "/api/v1/app/"+app.ID.String(), tok, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = c.do(http.MethodGet, "/api/v1/app/billing-uid", tok, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSecrets(t *testing.T) {
	c := newTestAPI(t)
	tok := c.orgToken(ids.NewOrganizationID())
	app := c.createApp(tok, "billing", "")
	path := "/api/v1/app/" + app.ID.String() + "/secret/signing"

	resp, _ := c.do(http.MethodGet, path, tok, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := c.do(http.MethodPut, path, tok, secretRequest{Value: "whsec_abc"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode, string(body))

	resp, body = c.do(http.MethodGet, path, tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got secretResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, secretResponse{Name: "signing", Value: "whsec_abc"}, got)

	resp, _ = c.do(http.MethodGet, "/api/v1/app/"+app.ID.String()+"/secret/bad$name", tok, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownRoute(t *testing.T) {
	c := newTestAPI(t)
	resp, body := c.do(http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, body)["code"])
}
