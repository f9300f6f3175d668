package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/calembot/calembot/internal/domain"
	"github.com/calembot/calembot/internal/ports"
)

// Client talks to the account API over HTTP. It implements the narrow
// capability surface the core depends on; everything else the upstream API
// offers is out of scope.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string

	userID  string
	device  deviceIdentity
	session sessionBlob
}

var _ ports.AccountClient = (*Client)(nil)

const (
	threadFetchLimit  = 20
	sendMethodText    = "text"
	sendMethodLink    = "link"
	registerEndpoint  = "push/register/"
	broadcastEndpoint = "direct_v2/threads/broadcast/%s/"
	threadEndpoint    = "direct_v2/threads/%s/"
)

func (c *Client) UserID() string {
	return c.userID
}

// SessionMaterial returns the opaque blob persisted as apiSettings. The core
// never interprets it; only Factory.Restore does.
func (c *Client) SessionMaterial() []byte {
	data, err := json.Marshal(c.session)
	if err != nil {
		return nil
	}
	return data
}

func (c *Client) RegisterPushToken(ctx context.Context, reg domain.PushRegistration) error {
	params := url.Values{}
	params.Set("device_type", reg.DeviceType)
	params.Set("is_main_push_channel", strconv.FormatBool(reg.IsMainPushChannel))
	params.Set("phone_id", reg.PhoneID)
	params.Set("device_token", reg.DeviceToken)
	params.Set("guid", reg.GUID)
	params.Set("users", reg.UserID)

	// The register call is unsigned; authenticated identity rides on the
	// session cookie.
	var resp apiResponse
	if err := c.postForm(ctx, registerEndpoint, params, false, &resp); err != nil {
		return fmt.Errorf("register push token: %w", err)
	}
	return nil
}

func (c *Client) SendDirectMessage(ctx context.Context, msg domain.DirectMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	method := sendMethodText
	params := url.Values{}
	params.Set("text", msg.Text)
	if msg.ContainsLink() {
		method = sendMethodLink
		params.Set("link_text", msg.Text)
		params.Set("link_urls", encodeStringList(extractLinks(msg.Text)))
		params.Del("text")
	}

	if len(msg.ThreadIDs) > 0 {
		params.Set("thread_ids", encodeStringList(msg.ThreadIDs))
	} else {
		params.Set("recipient_users", encodeStringList(msg.UserIDs))
	}
	params.Set("action", "send_item")

	var resp apiResponse
	endpoint := fmt.Sprintf(broadcastEndpoint, method)
	if err := c.postForm(ctx, endpoint, params, true, &resp); err != nil {
		return fmt.Errorf("send direct message: %w", err)
	}
	return nil
}

func (c *Client) FetchThread(ctx context.Context, threadID, cursor string, maxItems int) (domain.ThreadPage, error) {
	if maxItems <= 0 || maxItems > threadFetchLimit {
		maxItems = threadFetchLimit
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(maxItems))
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	endpoint := fmt.Sprintf(threadEndpoint, url.PathEscape(threadID))
	var resp threadResponse
	if err := c.get(ctx, endpoint, query, &resp); err != nil {
		return domain.ThreadPage{}, fmt.Errorf("fetch thread %s: %w", threadID, err)
	}

	items := make([]domain.ThreadItem, 0, len(resp.Thread.Items))
	for _, item := range resp.Thread.Items {
		items = append(items, domain.ThreadItem{
			ItemID: item.ItemID,
			UserID: item.UserID,
			Text:   item.Text,
			SentAt: time.UnixMicro(item.Timestamp),
		})
	}

	return domain.ThreadPage{
		Items:         items,
		Cursor:        resp.Thread.OldestCursor,
		MoreAvailable: resp.Thread.HasOlder,
	}, nil
}

type apiResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
}

type threadResponse struct {
	apiResponse
	Thread struct {
		Items []struct {
			ItemID    string `json:"item_id"`
			UserID    string `json:"user_id"`
			Text      string `json:"text"`
			Timestamp int64  `json:"timestamp"`
		} `json:"items"`
		OldestCursor string `json:"oldest_cursor"`
		HasOlder     bool   `json:"has_older"`
	} `json:"thread"`
}

func (c *Client) postForm(ctx context.Context, endpoint string, params url.Values, signed bool, out responseChecker) error {
	params.Set("_uuid", c.device.GUID)
	params.Set("_uid", c.userID)

	body := params.Encode()
	if signed {
		body = signBody(body, c.session.SignatureKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out responseChecker) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	return c.do(req, out)
}

type responseChecker interface {
	check() error
}

func (r apiResponse) check() error {
	if r.Status == "ok" {
		return nil
	}
	if r.ErrorType == "login_required" || r.ErrorType == "checkpoint_challenge_required" {
		return fmt.Errorf("%w: %s", domain.ErrSessionStale, r.Message)
	}
	return fmt.Errorf("api status %q: %s", r.Status, r.Message)
}

func (c *Client) do(req *http.Request, out responseChecker) error {
	req.Header.Set("User-Agent", c.userAgent)
	for _, cookie := range c.session.Cookies {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: http %d", domain.ErrSessionStale, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return out.check()
}

func encodeStringList(values []string) string {
	data, _ := json.Marshal(values)
	return string(data)
}

func extractLinks(text string) []string {
	var links []string
	for _, field := range strings.Fields(text) {
		if strings.HasPrefix(field, "http://") || strings.HasPrefix(field, "https://") {
			links = append(links, field)
		}
	}
	return links
}
