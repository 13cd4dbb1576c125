package cloud

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrCloudRejected = errors.New("cloud request rejected")

// Client talks to the vendor cloud. Every request carries an HMAC-SHA256
// signature over a canonical string; business calls additionally carry a
// bearer token that is fetched lazily and cached until shortly before its
// expiry.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	http         *http.Client

	token       string
	tokenExpiry time.Time
}

func NewClient(baseURL, clientID, clientSecret string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenResult struct {
	AccessToken string `json:"access_token"`
	ExpireTime  int64  `json:"expire_time"`
}

type apiResponse struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Result  json.RawMessage `json:"result"`
}

// StatusEntry is one datapoint reported by the cloud for a device
type StatusEntry struct {
	Code      string `json:"code"`
	Value     any    `json:"value"`
	Timestamp int64  `json:"t"`
}

// Command is one datapoint write sent to the cloud
type Command struct {
	Code  string `json:"code"`
	Value any    `json:"value"`
}

// DeviceStatus fetches the current datapoints of one cloud device
func (c *Client) DeviceStatus(ctx context.Context, cloudID string) ([]StatusEntry, error) {
	raw, err := c.call(ctx, http.MethodGet, "/v1.0/devices/"+cloudID+"/status", nil)
	if err != nil {
		return nil, err
	}
	var out []StatusEntry
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding device status: %w", err)
	}
	return out, nil
}

// SendCommands pushes datapoint writes to one cloud device
func (c *Client) SendCommands(ctx context.Context, cloudID string, cmds []Command) error {
	body, err := json.Marshal(map[string]any{"commands": cmds})
	if err != nil {
		return err
	}
	_, err = c.call(ctx, http.MethodPost, "/v1.0/devices/"+cloudID+"/commands", body)
	return err
}

// call performs an authenticated business request, fetching a fresh token
// first when the cached one is absent or about to expire
func (c *Client) call(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, method, path, body, token)
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}
	raw, err := c.do(ctx, http.MethodGet, "/v1.0/token?grant_type=1", nil, "")
	if err != nil {
		return "", fmt.Errorf("fetching cloud token: %w", err)
	}
	var tr tokenResult
	if err := json.Unmarshal(raw, &tr); err != nil {
		return "", fmt.Errorf("decoding cloud token: %w", err)
	}
	c.token = tr.AccessToken
	// renew one minute early so in-flight requests never race the expiry
	c.tokenExpiry = time.Now().Add(time.Duration(tr.ExpireTime)*time.Second - time.Minute)
	return c.token, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, token string) (json.RawMessage, error) {
	t := strconv.FormatInt(time.Now().UnixMilli(), 10)
	nonce := uuid.NewString()
	sign := Sign(c.clientID, c.clientSecret, token, t, nonce, method, path, body)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("client_id", c.clientID)
	req.Header.Set("sign", sign)
	req.Header.Set("t", t)
	req.Header.Set("sign_method", "HMAC-SHA256")
	req.Header.Set("nonce", nonce)
	if token != "" {
		req.Header.Set("access_token", token)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var ar apiResponse
	if err := json.Unmarshal(data, &ar); err != nil {
		return nil, fmt.Errorf("decoding cloud response: %w", err)
	}
	if !ar.Success {
		return nil, fmt.Errorf("%w: code %d: %s", ErrCloudRejected, ar.Code, ar.Msg)
	}
	return ar.Result, nil
}

// Sign computes the request signature. The canonical string is the HTTP
// method, the hex SHA-256 of the body, an empty headers line and the path
// with its query parameters in sorted order, joined by newlines. The HMAC
// key is the client secret and the message is clientID + token + t + nonce
// + canonical string; the digest is upper-case hex.
func Sign(clientID, secret, token, t, nonce, method, path string, body []byte) string {
	bodyHash := sha256.Sum256(body)
	canonical := method + "\n" + hex.EncodeToString(bodyHash[:]) + "\n\n" + canonicalPath(path)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(clientID + token + t + nonce + canonical))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

func canonicalPath(path string) string {
	i := strings.IndexByte(path, '?')
	if i < 0 {
		return path
	}
	base, rawQuery := path[:i], path[i+1:]
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return path
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, v := range values[k] {
			parts = append(parts, k+"="+v)
		}
	}
	return base + "?" + strings.Join(parts, "&")
}
