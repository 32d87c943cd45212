package landscape

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/landscape-community/landscape-mcp/pkg/config"
	"github.com/landscape-community/landscape-mcp/pkg/logger"
)

const (
	signatureMethod  = "HmacSHA256"
	signatureVersion = "2"
	apiVersion       = "2011-08-01"
)

// APIClient talks to a Landscape server over HTTPS with signed requests.
type APIClient struct {
	http      *resty.Client
	uri       *url.URL
	accessKey string
	secretKey string
	now       func() time.Time // swapped in tests for deterministic signatures
	observer  func(action string, err error)
}

// SetObserver registers a hook fired after every API call, for metrics.
// Must be called before the client is shared between goroutines.
func (c *APIClient) SetObserver(fn func(action string, err error)) {
	c.observer = fn
}

// NewAPIClient builds a client from the given API configuration.
func NewAPIClient(cfg config.API) (*APIClient, error) {
	u, err := url.Parse(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("parse API URI: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("API URI %q must be absolute", cfg.URI)
	}

	http := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0) // single attempt per invocation, retries are the caller's problem
	if cfg.SSLCAFile != "" {
		http.SetRootCertificate(cfg.SSLCAFile)
	}

	return &APIClient{
		http:      http,
		uri:       u,
		accessKey: cfg.AccessKey,
		secretKey: cfg.SecretKey,
		now:       time.Now,
	}, nil
}

// GetComputers implements Client.
func (c *APIClient) GetComputers(ctx context.Context, query string, limit int) ([]Computer, error) {
	params := map[string]string{
		"query":            query,
		"limit":            strconv.Itoa(limit),
		"with_annotations": "true",
	}
	var out []Computer
	if err := c.call(ctx, "GetComputers", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPackages implements Client.
func (c *APIClient) GetPackages(ctx context.Context, search, query string, limit int) ([]Package, error) {
	params := map[string]string{
		"search": search,
		"query":  query,
		"limit":  strconv.Itoa(limit),
	}
	var out []Package
	if err := c.call(ctx, "GetPackages", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetActivities implements Client.
func (c *APIClient) GetActivities(ctx context.Context, query string, limit, offset int) ([]Activity, error) {
	params := map[string]string{
		"query":  query,
		"limit":  strconv.Itoa(limit),
		"offset": strconv.Itoa(offset),
	}
	var out []Activity
	if err := c.call(ctx, "GetActivities", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAlerts implements Client.
func (c *APIClient) GetAlerts(ctx context.Context) ([]Alert, error) {
	var out []Alert
	if err := c.call(ctx, "GetAlerts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetNotPingingComputers implements Client.
func (c *APIClient) GetNotPingingComputers(ctx context.Context, sinceMinutes, limit int) ([]Computer, error) {
	params := map[string]string{
		"since_minutes": strconv.Itoa(sinceMinutes),
		"limit":         strconv.Itoa(limit),
	}
	var out []Computer
	if err := c.call(ctx, "GetNotPingingComputers", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// call performs one signed GET against the API and decodes the JSON body.
func (c *APIClient) call(ctx context.Context, action string, params map[string]string, out any) (err error) {
	if c.observer != nil {
		defer func() { c.observer(action, err) }()
	}
	full := map[string]string{
		"action":            action,
		"access_key_id":     c.accessKey,
		"signature_method":  signatureMethod,
		"signature_version": signatureVersion,
		"timestamp":         c.now().UTC().Format(time.RFC3339),
		"version":           apiVersion,
	}
	for k, v := range params {
		if v == "" {
			continue
		}
		full[k] = v
	}

	rawQuery := c.signedQuery(full)
	target := c.uri.Scheme + "://" + c.uri.Host + c.uri.Path + "?" + rawQuery

	resp, err := c.http.R().SetContext(ctx).Get(target)
	if err != nil {
		return fmt.Errorf("landscape %s: %w", action, err)
	}
	if resp.IsError() {
		return fmt.Errorf("landscape %s: %s: %s",
			action, resp.Status(), upstreamMessage(resp.Body()))
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("landscape %s: decode response: %w", action, err)
	}

	logger.DebugCF("landscape", "API call", map[string]any{
		"action": action,
		"status": resp.StatusCode(),
	})
	return nil
}

// signedQuery builds the canonical query string and appends the HMAC-SHA256
// signature (Landscape signature version 2).
func (c *APIClient) signedQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(uriEncode(k))
		b.WriteByte('=')
		b.WriteString(uriEncode(params[k]))
	}
	canonical := b.String()

	path := c.uri.Path
	if path == "" {
		path = "/"
	}
	toSign := strings.Join([]string{"GET", strings.ToLower(c.uri.Host), path, canonical}, "\n")

	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(toSign))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return canonical + "&signature=" + uriEncode(sig)
}

// uriEncode percent-encodes per RFC 3986: unreserved characters pass
// through, everything else (including space) is %XX. url.QueryEscape is not
// usable here because it emits '+' for space, which breaks the signature.
func uriEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'A' && ch <= 'Z', ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
			b.WriteByte(ch)
		case ch == '-' || ch == '_' || ch == '.' || ch == '~':
			b.WriteByte(ch)
		default:
			fmt.Fprintf(&b, "%%%02X", ch)
		}
	}
	return b.String()
}

// upstreamMessage extracts a human-readable message from an error body.
// Landscape returns {"error": "...", "message": "..."} for API errors; fall
// back to the raw body when it isn't JSON.
func upstreamMessage(body []byte) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 200 {
		trimmed = trimmed[:200]
	}
	return trimmed
}
