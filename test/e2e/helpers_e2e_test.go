//go:build e2e

package e2e_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"
)

// getenv returns the value of the environment variable k or def if empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

var baseURL = getenv("E2E_BASE_URL", "http://localhost:8080") + "/v1"

// waitForAppReady polls /healthz until the server answers or the deadline
// passes, skipping the test when the app never comes up.
func waitForAppReady(t *testing.T, client *http.Client, timeout time.Duration) {
	t.Helper()
	healthz := getenv("E2E_BASE_URL", "http://localhost:8080") + "/healthz"
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(healthz)
		if resp != nil {
			_ = resp.Body.Close()
		}
		if err == nil && resp.StatusCode == http.StatusOK {
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Skip("App not available; skipping E2E")
}

// doJSON performs a JSON request against the API and decodes the response
// body into a generic map.
func doJSON(t *testing.T, client *http.Client, method, path, apikey string, body any) (int, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, baseURL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if apikey != "" {
		req.Header.Set("apikey", apikey)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s %s response: %v", method, path, err)
	}
	return resp.StatusCode, out
}

// registerE2EUser creates a user and returns its alias and one-time api key.
func registerE2EUser(t *testing.T, client *http.Client, username string) (string, string) {
	t.Helper()
	st, body := doJSON(t, client, http.MethodPost, "/users", "", map[string]any{"username": username})
	if st != http.StatusCreated {
		t.Fatalf("create user %q: want 201, got %d body %#v", username, st, body)
	}
	alias, _ := body["username"].(string)
	key, _ := body["api_key"].(string)
	if alias == "" || key == "" {
		t.Fatalf("create user %q: incomplete response %#v", username, body)
	}
	return alias, key
}

// uniqueModel isolates one test's queue traffic from concurrently running
// tests: prompts pinned to this model are only popped by this test's worker.
func uniqueModel(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
