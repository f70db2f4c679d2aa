package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"storefront-client/config"
	"storefront-client/internal/backend"
	"storefront-client/internal/models"
	"storefront-client/internal/store"
	"storefront-client/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Orchestrator manages the assistant session: a stable per-client session
// id, the persisted message history, the context data forwarded on every
// request, and the cosmetic typing state machine.
//
// Sends are not coalesced: each SendMessage issues its own request, and each
// request carries a correlation id pairing it with the loading placeholder
// it inserted, so interleaved sends resolve against the right placeholder.
type Orchestrator struct {
	kv     store.KV
	client *backend.Client
	cfg    config.ChatConfig
	logger *zap.Logger

	// lifecycle context: cancelled by Close, stops typing timers and
	// abandons in-flight sends.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu               sync.Mutex
	sessionID        string
	messages         []models.ChatMessage
	typingState      string
	typingGen        int
	currentPage      string
	currentProductID *int64
	contextData      map[string]interface{}
	sessionStart     time.Time
	lastActivity     time.Time
}

// Metrics is a point-in-time view of conversation activity.
type Metrics struct {
	TotalMessages int       `json:"total_messages"`
	SessionStart  time.Time `json:"session_start_time"`
	LastActivity  time.Time `json:"last_activity"`
}

// Summary aggregates the conversation for display in the stats panel.
type Summary struct {
	UserMessageCount  int            `json:"user_message_count"`
	BotMessageCount   int            `json:"bot_message_count"`
	TotalMessages     int            `json:"total_messages"`
	SessionDurationMS int64          `json:"session_duration_ms"`
	LastActivity      time.Time      `json:"last_activity"`
	HasProducts       bool           `json:"has_products"`
	IntentCounts      map[string]int `json:"intent_counts"`
}

// NewOrchestrator restores or creates the session and its history. Bad
// persisted history falls back to the greeting; startup never fails on it.
func NewOrchestrator(ctx context.Context, kv store.KV, client *backend.Client, cfg config.ChatConfig) *Orchestrator {
	lifecycle, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		kv:           kv,
		client:       client,
		cfg:          cfg,
		logger:       util.GetLogger(),
		ctx:          lifecycle,
		cancel:       cancel,
		typingState:  models.TypingIdle,
		contextData:  make(map[string]interface{}),
		currentPage:  "home",
		sessionStart: time.Now(),
		lastActivity: time.Now(),
	}

	o.sessionID = o.loadSessionID(ctx)
	o.messages = o.loadHistory(ctx)

	return o
}

// loadSessionID returns the persisted session id, generating and persisting
// a time-derived token on first run. Session ids are never rotated.
func (o *Orchestrator) loadSessionID(ctx context.Context) string {
	id, err := o.kv.Get(ctx, models.KeySessionID)
	if err == nil && id != "" {
		return id
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		o.logger.Warn("Failed to read session id, generating a new one", zap.Error(err))
	}

	id = fmt.Sprintf("session_%d", time.Now().UnixMilli())
	if err := o.kv.Set(ctx, models.KeySessionID, id); err != nil {
		o.logger.Error("Failed to persist session id", zap.Error(err))
	}
	return id
}

func (o *Orchestrator) loadHistory(ctx context.Context) []models.ChatMessage {
	var saved []models.ChatMessage
	err := store.GetJSON(ctx, o.kv, models.KeyMessagesPrefix+o.sessionID, &saved)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			o.logger.Warn("Failed to load chat history, starting fresh", zap.Error(err))
		}
		return []models.ChatMessage{greetingMessage()}
	}

	// Placeholders persisted by a previous run belong to requests that died
	// with that process; drop them.
	messages := make([]models.ChatMessage, 0, len(saved))
	for _, msg := range saved {
		if !msg.IsLoading {
			messages = append(messages, msg)
		}
	}
	if len(messages) == 0 {
		return []models.ChatMessage{greetingMessage()}
	}
	return messages
}

func greetingMessage() models.ChatMessage {
	return models.ChatMessage{
		ID:        "1",
		Text:      greetingText,
		IsBot:     true,
		Timestamp: time.Now(),
	}
}

// SessionID returns the stable session identifier.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// Messages returns a copy of the current history.
func (o *Orchestrator) Messages() []models.ChatMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.ChatMessage, len(o.messages))
	copy(out, o.messages)
	return out
}

// TypingState returns the bot's current presentation state.
func (o *Orchestrator) TypingState() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.typingState
}

// SetCurrentPage records the page the user is on. Last write wins.
func (o *Orchestrator) SetCurrentPage(page string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.currentPage = page
}

// SetCurrentProduct records the product the user is viewing, nil when
// leaving a product page. A non-nil id is also remembered in context data.
func (o *Orchestrator) SetCurrentProduct(productID *int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.currentProductID = productID
	if productID != nil {
		o.contextData["lastViewedProductId"] = *productID
	}
}

// MergeContextData folds extra entries into the session context.
func (o *Orchestrator) MergeContextData(data map[string]interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for k, v := range data {
		o.contextData[k] = v
	}
}

// SendMessage appends the user message and a typed loading placeholder, then
// issues the backend request asynchronously. Blank text is ignored. The
// returned correlation id identifies the in-flight exchange; it is empty for
// ignored sends.
func (o *Orchestrator) SendMessage(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}

	state := classifyTyping(trimmed)
	corrID := uuid.New().String()
	now := time.Now()

	userMsg := models.ChatMessage{
		ID:        strconv.FormatInt(now.UnixMilli(), 10),
		Text:      trimmed,
		IsBot:     false,
		Timestamp: now,
	}
	placeholder := models.ChatMessage{
		ID:            "loading-" + strconv.FormatInt(now.UnixMilli(), 10),
		Text:          placeholderText(state),
		IsBot:         true,
		Timestamp:     now,
		IsLoading:     true,
		CorrelationID: corrID,
		TypingState:   state,
	}

	o.mu.Lock()
	o.messages = append(o.messages, userMsg, placeholder)
	o.typingState = state
	o.typingGen++
	gen := o.typingGen
	o.lastActivity = now
	req := &backend.ChatRequest{
		Message:          trimmed,
		SessionID:        o.sessionID,
		CurrentPage:      o.currentPage,
		CurrentProductID: o.currentProductID,
		ContextData:      copyContext(o.contextData),
	}
	o.persistHistoryLocked()
	o.mu.Unlock()

	util.ChatMessagesSentTotal.Inc()
	o.simulateTyping(gen, len(trimmed))

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		start := time.Now()
		resp, err := o.client.SendMessage(o.ctx, req)
		util.ChatResponseLatency.Observe(time.Since(start).Seconds())

		if err != nil {
			o.handleFailure(corrID, err)
			return
		}
		o.handleSuccess(corrID, resp)
	}()

	return corrID
}

// simulateTyping runs the cosmetic pacing independently of the network call:
// thinking for a random 0.5-1.5s, typing for a length-bounded stretch, then
// idle. A newer send or Close supersedes it via the generation counter.
func (o *Orchestrator) simulateTyping(gen, messageLen int) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		o.setTypingState(gen, models.TypingThinking)
		if !o.pause(thinkingDelay()) {
			return
		}

		o.setTypingState(gen, models.TypingTyping)
		if !o.pause(typingDelay(messageLen, o.cfg.TypingBaseDelay, o.cfg.TypingMaxDelay)) {
			return
		}

		o.setTypingState(gen, models.TypingIdle)
	}()
}

// pause sleeps for d unless the orchestrator is closed first.
func (o *Orchestrator) pause(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-o.ctx.Done():
		return false
	}
}

// setTypingState applies a timer transition only if no newer send has taken
// over the typing animation.
func (o *Orchestrator) setTypingState(gen int, state string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen == o.typingGen {
		o.typingState = state
	}
}

func (o *Orchestrator) handleSuccess(corrID string, resp *backend.ChatResponse) {
	timestamp, err := time.Parse(time.RFC3339, resp.Timestamp)
	if err != nil {
		timestamp = time.Now()
	}

	botMsg := models.ChatMessage{
		ID:        strconv.FormatInt(time.Now().UnixMilli(), 10),
		Text:      resp.Response,
		IsBot:     true,
		Timestamp: timestamp,
		Products:  resp.Products,
		Intent:    resp.Intent,
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.replacePlaceholderLocked(corrID, botMsg)

	if len(resp.Products) > 0 {
		o.contextData["products"] = resp.Products
		o.contextData["lastIntent"] = resp.Intent
		o.contextData["lastEntities"] = resp.Entities
	}
	o.lastActivity = time.Now()
	o.persistHistoryLocked()
}

func (o *Orchestrator) handleFailure(corrID string, sendErr error) {
	util.ChatSendFailuresTotal.Inc()
	o.logger.Error("Chat send failed", zap.Error(sendErr))

	errMsg := models.ChatMessage{
		ID:        strconv.FormatInt(time.Now().UnixMilli(), 10),
		Text:      failureText,
		IsBot:     true,
		Timestamp: time.Now(),
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.replacePlaceholderLocked(corrID, errMsg)
	o.persistHistoryLocked()
}

// replacePlaceholderLocked removes the placeholder matching corrID and
// appends the terminal message. If the placeholder is gone (history was
// cleared mid-flight) the terminal message is still appended.
func (o *Orchestrator) replacePlaceholderLocked(corrID string, terminal models.ChatMessage) {
	kept := o.messages[:0]
	for _, msg := range o.messages {
		if msg.IsLoading && msg.CorrelationID == corrID {
			continue
		}
		kept = append(kept, msg)
	}
	o.messages = append(kept, terminal)
}

// ClearChat resets history to the greeting, clears context data, drops the
// persisted history and asks the backend to forget the session. The backend
// call is fire-and-forget: failure is logged, never surfaced.
func (o *Orchestrator) ClearChat(ctx context.Context) {
	o.mu.Lock()
	o.messages = []models.ChatMessage{greetingMessage()}
	o.contextData = make(map[string]interface{})
	o.typingGen++
	o.typingState = models.TypingIdle
	sessionID := o.sessionID
	o.mu.Unlock()

	if err := o.kv.Delete(ctx, models.KeyMessagesPrefix+sessionID); err != nil {
		o.logger.Error("Failed to clear persisted history", zap.Error(err))
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.client.ClearHistory(o.ctx, sessionID); err != nil {
			o.logger.Warn("Failed to clear server-side history", zap.Error(err))
		}
	}()
}

// GetMetrics returns current conversation metrics. Loading placeholders do
// not count as messages.
func (o *Orchestrator) GetMetrics() Metrics {
	o.mu.Lock()
	defer o.mu.Unlock()

	total := 0
	for _, msg := range o.messages {
		if !msg.IsLoading {
			total++
		}
	}
	return Metrics{
		TotalMessages: total,
		SessionStart:  o.sessionStart,
		LastActivity:  o.lastActivity,
	}
}

// GetSummary aggregates the conversation for the stats panel.
func (o *Orchestrator) GetSummary() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Summary{
		SessionDurationMS: time.Since(o.sessionStart).Milliseconds(),
		LastActivity:      o.lastActivity,
		IntentCounts:      make(map[string]int),
	}
	for _, msg := range o.messages {
		switch {
		case !msg.IsBot:
			s.UserMessageCount++
		case !msg.IsLoading:
			s.BotMessageCount++
		}
		if len(msg.Products) > 0 {
			s.HasProducts = true
		}
		if msg.Intent != "" {
			s.IntentCounts[msg.Intent]++
		}
	}
	s.TotalMessages = s.UserMessageCount + s.BotMessageCount
	return s
}

// Close cancels timers and in-flight sends and waits for them to finish.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

// persistHistoryLocked writes the full history blob. Callers hold o.mu.
func (o *Orchestrator) persistHistoryLocked() {
	if err := store.SetJSON(o.ctx, o.kv, models.KeyMessagesPrefix+o.sessionID, o.messages); err != nil {
		o.logger.Error("Failed to persist chat history", zap.Error(err))
	}
}

func copyContext(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

