package models

import "time"

// Product represents a catalog product as served by the remote backend.
// Reference data only: the client never mutates products, it snapshots them
// into cart items and chat suggestions.
type Product struct {
	ID            int64                  `json:"id"`
	Name          string                 `json:"name"`
	Description   string                 `json:"description,omitempty"`
	Brand         string                 `json:"brand"`
	Model         string                 `json:"model,omitempty"`
	Price         float64                `json:"price"`
	OriginalPrice *float64               `json:"original_price,omitempty"`
	StockQuantity int                    `json:"stock_quantity"`
	Rating        float64                `json:"rating"`
	ReviewCount   int                    `json:"review_count"`
	ImageURL      string                 `json:"image_url"`
	Specs         map[string]interface{} `json:"specifications,omitempty"`
}

// CartItem is a product snapshot plus the requested quantity. At most one
// item exists per product id within a cart.
type CartItem struct {
	ID       string  `json:"id"`
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// CartState is the full client-side cart. Total and ItemCount are derived
// from Items and recomputed on every mutation, never adjusted incrementally.
type CartState struct {
	Items     []CartItem `json:"items"`
	Total     float64    `json:"total"`
	ItemCount int        `json:"item_count"`
}

// EmptyCart returns the canonical zero-value cart state.
func EmptyCart() CartState {
	return CartState{Items: []CartItem{}, Total: 0, ItemCount: 0}
}

// ChatMessage is a single entry in a session's conversation history.
type ChatMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	IsBot     bool      `json:"is_bot"`
	Timestamp time.Time `json:"timestamp"`

	// IsLoading marks a transient placeholder awaiting a backend reply.
	// CorrelationID pairs the placeholder with the request that created it.
	IsLoading     bool   `json:"is_loading,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`

	TypingState string    `json:"typing_state,omitempty"`
	Products    []Product `json:"products,omitempty"`
	Intent      string    `json:"intent,omitempty"`
}

// Bot typing states
const (
	TypingIdle      = "idle"
	TypingThinking  = "thinking"
	TypingTyping    = "typing"
	TypingSearching = "searching"
)

// Keys under which client state is persisted in the local store
const (
	KeyCart           = "shopping_cart"
	KeySessionID      = "chat_session_id"
	KeyMessagesPrefix = "chat_messages_" // + session id
	KeyChatSettings   = "chat_settings"
	KeyWidgetState    = "chat_widget_minimized"
)

// ChatSettings holds user-facing chat display preferences.
type ChatSettings struct {
	SoundEnabled    bool   `json:"sound_enabled"`
	ShowTimestamps  bool   `json:"show_timestamps"`
	ShowSuggestions bool   `json:"show_suggestions"`
	Language        string `json:"language"`
}

// DefaultChatSettings returns the settings applied when none are persisted.
func DefaultChatSettings() ChatSettings {
	return ChatSettings{
		SoundEnabled:    true,
		ShowTimestamps:  true,
		ShowSuggestions: true,
		Language:        "es",
	}
}

// Category is a catalog category as served by the remote backend.
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
