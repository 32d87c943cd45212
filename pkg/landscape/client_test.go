package landscape

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/landscape-community/landscape-mcp/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*APIClient, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewAPIClient(config.API{
		URI:       srv.URL + "/api/",
		AccessKey: "test-access",
		SecretKey: "test-secret",
		Timeout:   5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewAPIClient: %v", err)
	}
	client.now = func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}
	return client, srv
}

// expectedSignature recomputes the version 2 signature the way the server
// side would: sorted RFC 3986 encoded params, minus the signature itself.
func expectedSignature(t *testing.T, host, path string, values url.Values) string {
	t.Helper()

	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, uriEncode(k)+"="+uriEncode(values.Get(k)))
	}
	toSign := strings.Join([]string{"GET", strings.ToLower(host), path, strings.Join(parts, "&")}, "\n")

	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte(toSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestGetComputers_SignedRequest(t *testing.T) {
	var gotURL *url.URL
	var gotHost string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL
		gotHost = r.Host
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 1, "hostname": "web-01", "reboot_required_flag": true, "tags": ["production"]}]`))
	})

	computers, err := client.GetComputers(context.Background(), "tag:production", 25)
	if err != nil {
		t.Fatalf("GetComputers: %v", err)
	}

	if len(computers) != 1 {
		t.Fatalf("computers = %d, want 1", len(computers))
	}
	if computers[0].Hostname != "web-01" || !computers[0].NeedsReboot {
		t.Errorf("computer = %+v", computers[0])
	}

	q := gotURL.Query()
	if q.Get("action") != "GetComputers" {
		t.Errorf("action = %q", q.Get("action"))
	}
	if q.Get("access_key_id") != "test-access" {
		t.Errorf("access_key_id = %q", q.Get("access_key_id"))
	}
	if q.Get("signature_method") != "HmacSHA256" || q.Get("signature_version") != "2" {
		t.Errorf("signature params = %q %q", q.Get("signature_method"), q.Get("signature_version"))
	}
	if q.Get("timestamp") != "2026-03-01T12:00:00Z" {
		t.Errorf("timestamp = %q", q.Get("timestamp"))
	}
	if q.Get("query") != "tag:production" {
		t.Errorf("query = %q", q.Get("query"))
	}
	if q.Get("with_annotations") != "true" {
		t.Errorf("with_annotations = %q", q.Get("with_annotations"))
	}

	want := expectedSignature(t, gotHost, "/api/", q)
	if got := q.Get("signature"); got != want {
		t.Errorf("signature = %q, want %q", got, want)
	}
}

func TestCall_OmitsEmptyParams(t *testing.T) {
	var gotURL *url.URL
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL
		w.Write([]byte(`[]`))
	})

	if _, err := client.GetComputers(context.Background(), "", 10); err != nil {
		t.Fatalf("GetComputers: %v", err)
	}

	if _, present := gotURL.Query()["query"]; present {
		t.Error("empty query param should be omitted from the signed request")
	}
}

func TestCall_UpstreamErrorJSON(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "InvalidSignature", "message": "signature does not match"}`))
	})

	_, err := client.GetAlerts(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "signature does not match") {
		t.Errorf("error = %q, expected upstream message", err)
	}
	if !strings.Contains(err.Error(), "GetAlerts") {
		t.Errorf("error = %q, expected action name", err)
	}
}

func TestCall_UpstreamErrorRawBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("upstream exploded"))
	})

	_, err := client.GetAlerts(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "upstream exploded") {
		t.Errorf("error = %q", err)
	}
}

func TestCall_DecodeError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := client.GetAlerts(context.Background())
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !strings.Contains(err.Error(), "decode response") {
		t.Errorf("error = %q", err)
	}
}

func TestCall_ContextCancellation(t *testing.T) {
	started := make(chan struct{})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := client.GetComputers(ctx, "", 10)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestNewAPIClient_RejectsRelativeURI(t *testing.T) {
	_, err := NewAPIClient(config.API{URI: "not-a-url", AccessKey: "a", SecretKey: "s"})
	if err == nil {
		t.Fatal("expected error for relative URI")
	}
}

func TestURIEncode(t *testing.T) {
	cases := map[string]string{
		"abc-123_~.":      "abc-123_~.",
		"tag:production":  "tag%3Aproduction",
		"a b":             "a%20b",
		"100%+":           "100%25%2B",
		"2026-03-01T12:00:00Z": "2026-03-01T12%3A00%3A00Z",
	}
	for in, want := range cases {
		if got := uriEncode(in); got != want {
			t.Errorf("uriEncode(%q) = %q, want %q", in, got, want)
		}
	}
}
