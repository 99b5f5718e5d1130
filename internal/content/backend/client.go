// Package backend talks to the hosted backend-as-a-service that stores the
// studio's portfolio content and authenticates admins. Tables are reached
// through its PostgREST-style REST surface and users through its auth API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/louisbranch/portfolio.studio/internal/content"
	apperrors "github.com/louisbranch/portfolio.studio/internal/platform/errors"
	"github.com/louisbranch/portfolio.studio/internal/platform/requestctx"
	"github.com/louisbranch/portfolio.studio/internal/platform/timeouts"
)

const (
	restPrefix = "/rest/v1/"
	userPath   = "/auth/v1/user"
	// maxErrorBody bounds how much of an error response is read into a message.
	maxErrorBody = 4 << 10
)

// User is the backend's view of an authenticated account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Client is a backend REST client. It implements content.Store.
type Client struct {
	baseURL *url.URL
	anonKey string
	client  *http.Client
}

// New returns a client for the backend at baseURL.
func New(baseURL, anonKey string, client *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url must be http or https: %q", baseURL)
	}
	if strings.TrimSpace(anonKey) == "" {
		return nil, fmt.Errorf("backend anon key is required")
	}
	if client == nil {
		client = &http.Client{Timeout: timeouts.BackendRequest}
	}
	return &Client{baseURL: u, anonKey: strings.TrimSpace(anonKey), client: client}, nil
}

// List reads one page of collection. Page tokens are row offsets.
func (c *Client) List(ctx context.Context, collection content.Collection, pageSize int, pageToken string) (content.Page, error) {
	if pageSize <= 0 {
		return content.Page{}, fmt.Errorf("page size must be greater than zero")
	}
	offset := 0
	if token := strings.TrimSpace(pageToken); token != "" {
		n, err := strconv.Atoi(token)
		if err != nil || n < 0 {
			return content.Page{}, apperrors.E(apperrors.KindInvalidInput, fmt.Sprintf("invalid page token %q", pageToken))
		}
		offset = n
	}
	query := url.Values{}
	query.Set("select", "*")
	query.Set("order", "position.asc,id.asc")
	query.Set("limit", strconv.Itoa(pageSize+1))
	query.Set("offset", strconv.Itoa(offset))

	var items []content.Item
	if err := c.do(ctx, http.MethodGet, c.tableURL(collection, query), nil, &items); err != nil {
		return content.Page{}, fmt.Errorf("list %s: %w", collection, err)
	}
	page := content.Page{Items: withCollection(items, collection)}
	if len(page.Items) > pageSize {
		page.Items = page.Items[:pageSize]
		page.NextPageToken = strconv.Itoa(offset + pageSize)
	}
	return page, nil
}

// Get reads one row by id.
func (c *Client) Get(ctx context.Context, collection content.Collection, id string) (content.Item, error) {
	query := idFilter(id)
	query.Set("select", "*")
	query.Set("limit", "1")
	var items []content.Item
	if err := c.do(ctx, http.MethodGet, c.tableURL(collection, query), nil, &items); err != nil {
		return content.Item{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return first(items, collection)
}

// Create inserts item and returns the stored representation.
func (c *Client) Create(ctx context.Context, item content.Item) (content.Item, error) {
	item = item.Normalize()
	if err := item.Validate(); err != nil {
		return content.Item{}, err
	}
	item.CreatedAt, item.UpdatedAt = item.CreatedAt.UTC(), item.UpdatedAt.UTC()
	var items []content.Item
	if err := c.do(ctx, http.MethodPost, c.tableURL(item.Collection, nil), item, &items); err != nil {
		if apperrors.IsKind(err, apperrors.KindConflict) {
			return content.Item{}, content.ErrAlreadyExists
		}
		return content.Item{}, fmt.Errorf("create %s: %w", item.Collection, err)
	}
	return first(items, item.Collection)
}

// Update patches the row matching item.ID.
func (c *Client) Update(ctx context.Context, item content.Item) (content.Item, error) {
	item = item.Normalize()
	if item.ID == "" {
		return content.Item{}, content.ErrNotFound
	}
	if err := item.Validate(); err != nil {
		return content.Item{}, err
	}
	patch := item
	// The backend owns identity and timestamps.
	patch.ID = ""
	patch.CreatedAt = patch.CreatedAt.UTC()
	patch.UpdatedAt = patch.UpdatedAt.UTC()
	var items []content.Item
	if err := c.do(ctx, http.MethodPatch, c.tableURL(item.Collection, idFilter(item.ID)), patch, &items); err != nil {
		return content.Item{}, fmt.Errorf("update %s/%s: %w", item.Collection, item.ID, err)
	}
	return first(items, item.Collection)
}

// Delete removes the row matching id.
func (c *Client) Delete(ctx context.Context, collection content.Collection, id string) error {
	var items []content.Item
	if err := c.do(ctx, http.MethodDelete, c.tableURL(collection, idFilter(id)), nil, &items); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if len(items) == 0 {
		return content.ErrNotFound
	}
	return nil
}

// GetUser resolves the account that owns token.
func (c *Client) GetUser(ctx context.Context, token string) (User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, apperrors.E(apperrors.KindUnauthorized, "bearer token is required")
	}
	var user User
	ctx = requestctx.WithBearerToken(ctx, token)
	if err := c.do(ctx, http.MethodGet, c.resolve(userPath, nil), nil, &user); err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	if strings.TrimSpace(user.ID) == "" {
		return User{}, apperrors.E(apperrors.KindUnauthorized, "backend returned no user")
	}
	return user, nil
}

func (c *Client) tableURL(collection content.Collection, query url.Values) string {
	return c.resolve(restPrefix+url.PathEscape(string(collection)), query)
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, target string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	bearer := requestctx.BearerTokenFromContext(ctx)
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.KindUnavailable, "backend request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type errorBody struct {
	Message          string `json:"message"`
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var parsed errorBody
	message := ""
	if json.Unmarshal(raw, &parsed) == nil {
		for _, candidate := range []string{parsed.Message, parsed.Msg, parsed.ErrorDescription} {
			if candidate = strings.TrimSpace(candidate); candidate != "" {
				message = candidate
				break
			}
		}
	}
	if message == "" {
		message = "backend returned " + resp.Status
	}
	kind := apperrors.KindForStatus(resp.StatusCode)
	if kind == apperrors.KindUnknown {
		kind = apperrors.KindUnavailable
	}
	return apperrors.E(kind, message)
}

func idFilter(id string) url.Values {
	query := url.Values{}
	query.Set("id", "eq."+strings.TrimSpace(id))
	return query
}

func withCollection(items []content.Item, collection content.Collection) []content.Item {
	if items == nil {
		items = []content.Item{}
	}
	for i := range items {
		items[i].Collection = collection
	}
	return items
}

func first(items []content.Item, collection content.Collection) (content.Item, error) {
	if len(items) == 0 {
		return content.Item{}, content.ErrNotFound
	}
	item := items[0]
	item.Collection = collection
	return item, nil
}

var _ content.Store = (*Client)(nil)
