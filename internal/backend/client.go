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
	"time"

	"storefront-client/internal/models"
	"storefront-client/internal/util"

	"go.uber.org/zap"
)

// ChatRequest is the payload sent on every chat turn. Context fields let the
// backend keep conversational continuity without server-side session state.
type ChatRequest struct {
	Message          string                 `json:"message"`
	SessionID        string                 `json:"session_id,omitempty"`
	CurrentPage      string                 `json:"current_page,omitempty"`
	CurrentProductID *int64                 `json:"current_product_id,omitempty"`
	ContextData      map[string]interface{} `json:"context_data,omitempty"`
}

// ChatResponse is the backend's reply to a chat turn.
type ChatResponse struct {
	Response   string                 `json:"response"`
	Timestamp  string                 `json:"timestamp"`
	TokensUsed int                    `json:"tokens_used,omitempty"`
	Intent     string                 `json:"intent,omitempty"`
	Entities   map[string]interface{} `json:"entities,omitempty"`
	Products   []models.Product       `json:"products,omitempty"`
	CartTotal  *float64               `json:"cart_total,omitempty"`
}

// HistoryItem is one turn of server-side conversation history.
type HistoryItem struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Client talks to the remote chat/catalog service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a backend client with the configured request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     util.GetLogger(),
	}
}

// SendMessage posts a chat turn and returns the bot reply.
func (c *Client) SendMessage(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	ctx, span := util.StartSpan(ctx, "backend.SendMessage")
	defer span.End()

	var resp ChatResponse
	if err := c.postJSON(ctx, "/api/chat", req, &resp); err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	return &resp, nil
}

// ClearHistory asks the backend to drop server-side history for a session.
func (c *Client) ClearHistory(ctx context.Context, sessionID string) error {
	ctx, span := util.StartSpan(ctx, "backend.ClearHistory")
	defer span.End()

	body := map[string]string{"session_id": sessionID}
	if err := c.postJSON(ctx, "/api/clear-history", body, nil); err != nil {
		return fmt.Errorf("clear history failed: %w", err)
	}
	return nil
}

// GetHistory retrieves server-side conversation history.
func (c *Client) GetHistory(ctx context.Context) ([]HistoryItem, error) {
	var resp struct {
		History []HistoryItem `json:"history"`
	}
	if err := c.getJSON(ctx, "/api/history", &resp); err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return resp.History, nil
}

// Health probes the backend. A 200 means connected; anything else counts as
// disconnected, not as a hard error.
func (c *Client) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		util.BackendHealthChecks.WithLabelValues("failure").Inc()
		c.logger.Debug("Backend health probe failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		util.BackendHealthChecks.WithLabelValues("failure").Inc()
		return false
	}

	util.BackendHealthChecks.WithLabelValues("success").Inc()
	return true
}

// GetProducts lists catalog products, optionally filtered by category and
// free-text search.
func (c *Client) GetProducts(ctx context.Context, categoryID, search string) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "backend.GetProducts")
	defer span.End()

	path := "/api/products"
	params := url.Values{}
	if categoryID != "" {
		params.Set("category_id", categoryID)
	}
	if search != "" {
		params.Set("search", search)
	}
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var products []models.Product
	if err := c.getJSON(ctx, path, &products); err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}
	return products, nil
}

// GetProduct retrieves a single product by id.
func (c *Client) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "backend.GetProduct")
	defer span.End()

	var product models.Product
	if err := c.getJSON(ctx, "/api/products/"+strconv.FormatInt(id, 10), &product); err != nil {
		return nil, fmt.Errorf("failed to get product %d: %w", id, err)
	}
	return &product, nil
}

// GetCategories lists catalog categories.
func (c *Client) GetCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := c.getJSON(ctx, "/api/categories", &categories); err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	return categories, nil
}

// AddToCart writes an item to the server-side cart. The local cart engine
// does not use this; it exists for UIs that opt into server-side carts.
func (c *Client) AddToCart(ctx context.Context, userID, productID int64, quantity int) error {
	body := map[string]interface{}{
		"user_id":    userID,
		"product_id": productID,
		"quantity":   quantity,
	}
	if err := c.postJSON(ctx, "/api/cart", body, nil); err != nil {
		return fmt.Errorf("failed to add to server cart: %w", err)
	}
	return nil
}

// GetCart reads the server-side cart for a user.
func (c *Client) GetCart(ctx context.Context, userID int64) (map[string]interface{}, error) {
	var cart map[string]interface{}
	if err := c.getJSON(ctx, "/api/cart/"+strconv.FormatInt(userID, 10), &cart); err != nil {
		return nil, fmt.Errorf("failed to get server cart: %w", err)
	}
	return cart, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, dest interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, path, dest)
}

func (c *Client) getJSON(ctx context.Context, path string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	// Strip query params from the metric label to keep cardinality bounded.
	endpoint := path
	if q := strings.IndexByte(path, '?'); q >= 0 {
		endpoint = path[:q]
	}
	return c.do(req, endpoint, dest)
}

func (c *Client) do(req *http.Request, endpoint string, dest interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		util.BackendRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return err
	}
	defer resp.Body.Close()

	util.BackendRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, string(raw))
	}

	if dest == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
