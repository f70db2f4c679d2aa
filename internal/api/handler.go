package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront-client/internal/backend"
	"storefront-client/internal/cart"
	"storefront-client/internal/chat"
	"storefront-client/internal/models"
	"storefront-client/internal/store"
	"storefront-client/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler exposes the client's engines to a presentation layer over local
// HTTP. Input validation lives here; the engines themselves accept whatever
// they are given.
type Handler struct {
	cart    *cart.Engine
	chat    *chat.Orchestrator
	backend *backend.Client
	monitor *backend.Monitor
	kv      store.KV
}

// NewHandler creates the HTTP handler.
func NewHandler(cartEngine *cart.Engine, orchestrator *chat.Orchestrator, client *backend.Client, monitor *backend.Monitor, kv store.KV) *Handler {
	return &Handler{
		cart:    cartEngine,
		chat:    orchestrator,
		backend: client,
		monitor: monitor,
		kv:      kv,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/cart", h.getCart)
		v1.POST("/cart/items", h.addCartItem)
		v1.PUT("/cart/items/:productId", h.updateCartItem)
		v1.DELETE("/cart/items/:productId", h.removeCartItem)
		v1.GET("/cart/items/:productId/quantity", h.getItemQuantity)
		v1.DELETE("/cart", h.clearCart)

		v1.GET("/chat/messages", h.getMessages)
		v1.POST("/chat/messages", h.sendMessage)
		v1.DELETE("/chat/messages", h.clearChat)
		v1.GET("/chat/session", h.getSession)
		v1.PUT("/chat/context", h.updateContext)
		v1.GET("/chat/stats", h.getChatStats)
		v1.GET("/chat/settings", h.getSettings)
		v1.PUT("/chat/settings", h.updateSettings)
		v1.GET("/chat/widget", h.getWidgetState)
		v1.PUT("/chat/widget", h.updateWidgetState)
		v1.POST("/chat/connection/check", h.checkConnection)

		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.GET("/categories", h.listCategories)
	}
}

// healthCheck reports local liveness plus the backend connection flag.
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"time":              time.Now().Unix(),
		"backend_connected": h.monitor.Connected(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// addCartItemRequest carries a product snapshot plus the quantity to add.
type addCartItemRequest struct {
	Product  models.Product `json:"product" binding:"required"`
	Quantity int            `json:"quantity" binding:"required,min=1"`
}

func (h *Handler) getCart(c *gin.Context) {
	c.JSON(http.StatusOK, h.cart.State())
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.Product.ID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	// Stock is a UI-level guard; the engine itself never clamps.
	if req.Quantity > req.Product.StockQuantity {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Requested quantity exceeds available stock",
		})
		return
	}

	state := h.cart.AddItem(c.Request.Context(), req.Product, req.Quantity)
	c.JSON(http.StatusOK, state)
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) updateCartItem(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	var req updateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	state := h.cart.UpdateQuantity(c.Request.Context(), productID, req.Quantity)
	c.JSON(http.StatusOK, state)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	state := h.cart.RemoveItem(c.Request.Context(), productID)
	c.JSON(http.StatusOK, state)
}

func (h *Handler) getItemQuantity(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"quantity": h.cart.GetItemQuantity(productID)})
}

func (h *Handler) clearCart(c *gin.Context) {
	c.JSON(http.StatusOK, h.cart.ClearCart(c.Request.Context()))
}

func (h *Handler) getMessages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": h.chat.Messages()})
}

type sendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	corrID := h.chat.SendMessage(req.Text)
	if corrID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message text is blank"})
		return
	}

	// The reply arrives asynchronously; the caller polls messages.
	c.JSON(http.StatusAccepted, gin.H{
		"correlation_id": corrID,
		"typing_state":   h.chat.TypingState(),
	})
}

func (h *Handler) clearChat(c *gin.Context) {
	h.chat.ClearChat(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"messages": h.chat.Messages()})
}

func (h *Handler) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"session_id":   h.chat.SessionID(),
		"typing_state": h.chat.TypingState(),
		"connected":    h.monitor.Connected(),
	})
}

type updateContextRequest struct {
	CurrentPage      *string                `json:"current_page"`
	CurrentProductID *int64                 `json:"current_product_id"`
	ClearProduct     bool                   `json:"clear_product"`
	ContextData      map[string]interface{} `json:"context_data"`
}

func (h *Handler) updateContext(c *gin.Context) {
	var req updateContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.CurrentPage != nil {
		h.chat.SetCurrentPage(*req.CurrentPage)
	}
	if req.CurrentProductID != nil {
		h.chat.SetCurrentProduct(req.CurrentProductID)
	} else if req.ClearProduct {
		h.chat.SetCurrentProduct(nil)
	}
	if len(req.ContextData) > 0 {
		h.chat.MergeContextData(req.ContextData)
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) getChatStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics": h.chat.GetMetrics(),
		"summary": h.chat.GetSummary(),
	})
}

func (h *Handler) getSettings(c *gin.Context) {
	settings := models.DefaultChatSettings()
	err := store.GetJSON(c.Request.Context(), h.kv, models.KeyChatSettings, &settings)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		settings = models.DefaultChatSettings()
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) updateSettings(c *gin.Context) {
	var settings models.ChatSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := store.SetJSON(c.Request.Context(), h.kv, models.KeyChatSettings, settings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save settings"})
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) getWidgetState(c *gin.Context) {
	minimized := false
	raw, err := h.kv.Get(c.Request.Context(), models.KeyWidgetState)
	if err == nil {
		minimized = raw == "true"
	}
	c.JSON(http.StatusOK, gin.H{"minimized": minimized})
}

type widgetStateRequest struct {
	Minimized bool `json:"minimized"`
}

func (h *Handler) updateWidgetState(c *gin.Context) {
	var req widgetStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	value := "false"
	if req.Minimized {
		value = "true"
	}
	if err := h.kv.Set(c.Request.Context(), models.KeyWidgetState, value); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save widget state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"minimized": req.Minimized})
}

// checkConnection triggers a manual health probe (the retry button).
func (h *Handler) checkConnection(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"connected": h.monitor.CheckNow(c.Request.Context())})
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.backend.GetProducts(c.Request.Context(), c.Query("category_id"), c.Query("search"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to fetch products",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	product, err := h.backend.GetProduct(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to fetch product",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.backend.GetCategories(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to fetch categories",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, categories)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
