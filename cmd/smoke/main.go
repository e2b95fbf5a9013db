// Command smoke runs an end-to-end check against a running hookrelay server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"hookrelay.io/internal/auth"
	"hookrelay.io/internal/config"
	"hookrelay.io/internal/grpcapi"
	"hookrelay.io/internal/grpcauth"
	"hookrelay.io/internal/ids"
	"hookrelay.io/internal/obs"
)

func main() {
	log := obs.Logger()

	base := os.Getenv("HOOKRELAY_SMOKE_URL")
	if base == "" {
		base = "http://localhost:8071"
	}
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	tokens, err := auth.NewTokens(auth.NewKeys([]byte(cfg.Auth.JWTSecret)), cfg.Auth.Issuer)
	if err != nil {
		log.WithError(err).Fatal("init tokens")
	}

	orgA, err := tokens.GenerateOrgToken(ids.NewOrganizationID())
	if err != nil {
		log.WithError(err).Fatal("mint org token")
	}
	orgB, err := tokens.GenerateOrgToken(ids.NewOrganizationID())
	if err != nil {
		log.WithError(err).Fatal("mint org token")
	}

	c := &client{base: base, http: &http.Client{Timeout: 5 * time.Second}}

	var app struct {
		ID string `json:"id"`
	}
	uid := fmt.Sprintf("smoke-%d", time.Now().UnixNano())
	c.must(http.MethodPost, "/api/v1/app", orgA, map[string]string{"name": "smoke", "uid": uid}, http.StatusCreated, &app)
	c.must(http.MethodGet, "/api/v1/app/"+uid, orgA, nil, http.StatusOK, nil)
	c.must(http.MethodGet, "/api/v1/app/"+app.ID, orgB, nil, http.StatusNotFound, nil)

	var portal struct {
		Token string `json:"token"`
	}
	c.must(http.MethodPost, "/api/v1/auth/app-portal-access/"+app.ID, orgA, nil, http.StatusOK, &portal)
	c.must(http.MethodGet, "/api/v1/app/"+app.ID, portal.Token, nil, http.StatusOK, nil)
	c.must(http.MethodGet, "/api/v1/app", portal.Token, nil, http.StatusForbidden, nil)

	secretPath := "/api/v1/app/" + app.ID + "/secret/smoke"
	c.must(http.MethodPut, secretPath, portal.Token, map[string]string{"value": "s3cr3t"}, http.StatusNoContent, nil)
	var secret struct {
		Value string `json:"value"`
	}
	c.must(http.MethodGet, secretPath, portal.Token, nil, http.StatusOK, &secret)
	if secret.Value != "s3cr3t" {
		log.Fatalf("secret round trip returned %q", secret.Value)
	}

	if cfg.GRPCAddr != "" {
		checkGRPC(cfg.GRPCAddr, orgA, orgB, app.ID)
	}

	c.must(http.MethodDelete, "/api/v1/app/"+app.ID, orgA, nil, http.StatusNoContent, nil)

	fmt.Printf("smoke test passed: app=%s\n", app.ID)
}

func checkGRPC(addr, owner, stranger, appID string) {
	log := obs.Logger()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpcauth.Dial(addr, "")
	if err != nil {
		log.WithError(err).Fatal("dial grpc")
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: "hookrelay"})
	if err != nil {
		log.WithError(err).Fatal("grpc health")
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		log.Fatalf("grpc health status %v", resp.GetStatus())
	}

	client := grpcapi.NewAppsClient(conn)
	if _, err := client.GetApp(ctx, appID); status.Code(err) != codes.Unauthenticated {
		log.Fatalf("grpc GetApp without token: %v", err)
	}
	out, err := client.GetApp(grpcauth.WithBearer(ctx, owner), appID)
	if err != nil {
		log.WithError(err).Fatal("grpc GetApp")
	}
	if got := out.GetFields()["id"].GetStringValue(); got != appID {
		log.Fatalf("grpc GetApp returned %q", got)
	}
	if _, err := client.GetApp(grpcauth.WithBearer(ctx, stranger), appID); status.Code(err) != codes.NotFound {
		log.Fatalf("grpc GetApp across orgs: %v", err)
	}
}

type client struct {
	base string
	http *http.Client
}

func (c *client) must(method, path, token string, body any, want int, out any) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			obs.Logger().WithError(err).Fatal("marshal body")
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base+path, payload)
	if err != nil {
		obs.Logger().WithError(err).Fatal("build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		obs.Logger().WithError(err).Fatalf("%s %s", method, path)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		obs.Logger().Fatalf("%s %s: status %d, want %d: %s", method, path, resp.StatusCode, want, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			obs.Logger().WithError(err).Fatalf("decode %s %s", method, path)
		}
	}
}
