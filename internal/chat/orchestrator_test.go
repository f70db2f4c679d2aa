package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront-client/config"
	"storefront-client/internal/backend"
	"storefront-client/internal/models"
	"storefront-client/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChatConfig() config.ChatConfig {
	return config.ChatConfig{
		TypingBaseDelay: time.Millisecond,
		TypingMaxDelay:  10 * time.Millisecond,
	}
}

func newTestOrchestrator(t *testing.T, kv store.KV, handler http.HandlerFunc) *Orchestrator {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := backend.NewClient(srv.URL, 5*time.Second)
	o := NewOrchestrator(context.Background(), kv, client, testChatConfig())
	t.Cleanup(o.Close)
	return o
}

func chatReply(t *testing.T, w http.ResponseWriter, resp backend.ChatResponse) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func countPlaceholders(messages []models.ChatMessage) int {
	n := 0
	for _, msg := range messages {
		if msg.IsLoading {
			n++
		}
	}
	return n
}

func TestNewSessionGeneratesAndReusesID(t *testing.T) {
	kv := store.NewMemoryStore()

	first := newTestOrchestrator(t, kv, func(w http.ResponseWriter, r *http.Request) {})
	id := first.SessionID()
	assert.True(t, strings.HasPrefix(id, "session_"))

	second := newTestOrchestrator(t, kv, func(w http.ResponseWriter, r *http.Request) {})
	assert.Equal(t, id, second.SessionID())
}

func TestHistoryBootstrapsWithGreeting(t *testing.T) {
	o := newTestOrchestrator(t, store.NewMemoryStore(), func(w http.ResponseWriter, r *http.Request) {})

	messages := o.Messages()
	require.Len(t, messages, 1)
	assert.True(t, messages[0].IsBot)
	assert.Equal(t, greetingText, messages[0].Text)
	assert.Equal(t, models.TypingIdle, o.TypingState())
}

func TestCorruptHistoryFallsBackToGreeting(t *testing.T) {
	kv := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, models.KeySessionID, "session_42"))
	require.NoError(t, kv.Set(ctx, models.KeyMessagesPrefix+"session_42", "not-json"))

	o := newTestOrchestrator(t, kv, func(w http.ResponseWriter, r *http.Request) {})

	messages := o.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, greetingText, messages[0].Text)
}

func TestStaleLoadingPlaceholdersDroppedOnLoad(t *testing.T) {
	kv := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, models.KeySessionID, "session_42"))
	saved := []models.ChatMessage{
		{ID: "1", Text: "hola", IsBot: false, Timestamp: time.Now()},
		{ID: "loading-2", Text: "InfoBot está escribiendo...", IsBot: true, IsLoading: true, Timestamp: time.Now()},
	}
	require.NoError(t, store.SetJSON(ctx, kv, models.KeyMessagesPrefix+"session_42", saved))

	o := newTestOrchestrator(t, kv, func(w http.ResponseWriter, r *http.Request) {})

	messages := o.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "hola", messages[0].Text)
}

func TestSendMessageAppendsUserAndPlaceholderThenReply(t *testing.T) {
	release := make(chan struct{})
	o := newTestOrchestrator(t, store.NewMemoryStore(), func(w http.ResponseWriter, r *http.Request) {
		<-release
		chatReply(t, w, backend.ChatResponse{
			Response:  "Hola",
			Timestamp: time.Now().Format(time.RFC3339),
		})
	})

	corrID := o.SendMessage("hola")
	require.NotEmpty(t, corrID)

	// Before the backend answers: greeting + user message + placeholder.
	messages := o.Messages()
	require.Len(t, messages, 3)
	assert.False(t, messages[1].IsBot)
	assert.Equal(t, "hola", messages[1].Text)
	assert.True(t, messages[2].IsLoading)
	assert.Equal(t, corrID, messages[2].CorrelationID)
	assert.Equal(t, models.TypingTyping, messages[2].TypingState)
	assert.Equal(t, 1, countPlaceholders(messages))

	close(release)

	require.Eventually(t, func() bool {
		msgs := o.Messages()
		return countPlaceholders(msgs) == 0 && msgs[len(msgs)-1].Text == "Hola"
	}, 2*time.Second, 10*time.Millisecond)

	messages = o.Messages()
	require.Len(t, messages, 3)
	assert.True(t, messages[2].IsBot)
	assert.False(t, messages[2].IsLoading)
}

func TestSendMessageBlankIsIgnored(t *testing.T) {
	o := newTestOrchestrator(t, store.NewMemoryStore(), func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend should not be called for blank messages")
	})

	assert.Empty(t, o.SendMessage(""))
	assert.Empty(t, o.SendMessage("   \n\t"))
	assert.Len(t, o.Messages(), 1)
}

func TestSendFailureAppendsCanonicalErrorMessage(t *testing.T) {
	o := newTestOrchestrator(t, store.NewMemoryStore(), func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	require.NotEmpty(t, o.SendMessage("hola"))

	require.Eventually(t, func() bool {
		msgs := o.Messages()
		return countPlaceholders(msgs) == 0 && msgs[len(msgs)-1].Text == failureText
	}, 2*time.Second, 10*time.Millisecond)

	messages := o.Messages()
	require.Len(t, messages, 3)
	assert.True(t, messages[2].IsBot)
	assert.Empty(t, messages[2].Products)
}

func TestResponseMergesContextIntoNextRequest(t *testing.T) {
	var mu sync.Mutex
	var requests []backend.ChatRequest

	o := newTestOrchestrator(t, store.NewMemoryStore(), func(w http.ResponseWriter, r *http.Request) {
		var req backend.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()

		chatReply(t, w, backend.ChatResponse{
			Response:  "Tenemos estas laptops",
			Timestamp: time.Now().Format(time.RFC3339),
			Intent:    "product_search",
			Entities:  map[string]interface{}{"category": "laptops"},
			Products:  []models.Product{{ID: 7, Name: "Laptop", Price: 999}},
		})
	})

	o.SetCurrentPage("product-detail")
	productID := int64(7)
	o.SetCurrentProduct(&productID)

	o.SendMessage("buscar laptops")
	require.Eventually(t, func() bool {
		return countPlaceholders(o.Messages()) == 0 && len(o.Messages()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	o.SendMessage("la segunda")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(requests) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	first, second := requests[0], requests[1]
	assert.Equal(t, o.SessionID(), first.SessionID)
	assert.Equal(t, "product-detail", first.CurrentPage)
	require.NotNil(t, first.CurrentProductID)
	assert.Equal(t, int64(7), *first.CurrentProductID)
	assert.EqualValues(t, 7, first.ContextData["lastViewedProductId"])

	assert.Equal(t, "product_search", second.ContextData["lastIntent"])
	assert.NotNil(t, second.ContextData["products"])
	assert.NotNil(t, second.ContextData["lastEntities"])
}

func TestFailureLeavesContextUnchanged(t *testing.T) {
	var mu sync.Mutex
	var requests []backend.ChatRequest
	fail := true

	o := newTestOrchestrator(t, store.NewMemoryStore(), func(w http.ResponseWriter, r *http.Request) {
		var req backend.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		requests = append(requests, req)
		shouldFail := fail
		fail = false
		mu.Unlock()

		if shouldFail {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		chatReply(t, w, backend.ChatResponse{Response: "ok", Timestamp: time.Now().Format(time.RFC3339)})
	})

	o.SendMessage("hola")
	require.Eventually(t, func() bool {
		return countPlaceholders(o.Messages()) == 0 && len(o.Messages()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	o.SendMessage("sigues ahi?")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(requests) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, requests[1].ContextData, "lastIntent")
	assert.NotContains(t, requests[1].ContextData, "products")
}

func TestInterleavedSendsPairByCorrelationID(t *testing.T) {
	releaseFirst := make(chan struct{})
	releaseSecond := make(chan struct{})

	o := newTestOrchestrator(t, store.NewMemoryStore(), func(w http.ResponseWriter, r *http.Request) {
		var req backend.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		switch req.Message {
		case "primero":
			<-releaseFirst
			chatReply(t, w, backend.ChatResponse{Response: "uno", Timestamp: time.Now().Format(time.RFC3339)})
		case "segundo":
			<-releaseSecond
			chatReply(t, w, backend.ChatResponse{Response: "dos", Timestamp: time.Now().Format(time.RFC3339)})
		}
	})

	first := o.SendMessage("primero")
	second := o.SendMessage("segundo")
	require.NotEmpty(t, first)
	require.NotEmpty(t, second)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, countPlaceholders(o.Messages()))

	// Resolve out of order: the later send answers first.
	close(releaseSecond)
	require.Eventually(t, func() bool {
		return countPlaceholders(o.Messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The remaining placeholder belongs to the first send.
	var remaining models.ChatMessage
	for _, msg := range o.Messages() {
		if msg.IsLoading {
			remaining = msg
		}
	}
	assert.Equal(t, first, remaining.CorrelationID)

	close(releaseFirst)
	require.Eventually(t, func() bool {
		return countPlaceholders(o.Messages()) == 0
	}, 2*time.Second, 10*time.Millisecond)

	texts := make([]string, 0)
	for _, msg := range o.Messages() {
		if msg.IsBot && msg.Text != greetingText {
			texts = append(texts, msg.Text)
		}
	}
	assert.ElementsMatch(t, []string{"uno", "dos"}, texts)
}

func TestClearChatResetsToSingleGreeting(t *testing.T) {
	var mu sync.Mutex
	clearedSession := ""

	kv := store.NewMemoryStore()
	o := newTestOrchestrator(t, kv, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/clear-history" {
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			mu.Lock()
			clearedSession = body["session_id"]
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
			return
		}
		chatReply(t, w, backend.ChatResponse{Response: "ok", Timestamp: time.Now().Format(time.RFC3339)})
	})

	o.SendMessage("hola")
	require.Eventually(t, func() bool {
		return countPlaceholders(o.Messages()) == 0 && len(o.Messages()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	o.ClearChat(context.Background())

	messages := o.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, greetingText, messages[0].Text)
	assert.Equal(t, models.TypingIdle, o.TypingState())

	_, err := kv.Get(context.Background(), models.KeyMessagesPrefix+o.SessionID())
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return clearedSession == o.SessionID()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTypingStateSettlesToIdle(t *testing.T) {
	o := newTestOrchestrator(t, store.NewMemoryStore(), func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, backend.ChatResponse{Response: "ok", Timestamp: time.Now().Format(time.RFC3339)})
	})

	o.SendMessage("hola")

	require.Eventually(t, func() bool {
		return o.TypingState() == models.TypingIdle
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMetricsAndSummary(t *testing.T) {
	o := newTestOrchestrator(t, store.NewMemoryStore(), func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, backend.ChatResponse{
			Response:  "Claro",
			Timestamp: time.Now().Format(time.RFC3339),
			Intent:    "greeting",
		})
	})

	o.SendMessage("hola")
	require.Eventually(t, func() bool {
		return countPlaceholders(o.Messages()) == 0 && len(o.Messages()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	metrics := o.GetMetrics()
	assert.Equal(t, 3, metrics.TotalMessages)

	summary := o.GetSummary()
	assert.Equal(t, 1, summary.UserMessageCount)
	assert.Equal(t, 2, summary.BotMessageCount)
	assert.Equal(t, 3, summary.TotalMessages)
	assert.False(t, summary.HasProducts)
	assert.Equal(t, 1, summary.IntentCounts["greeting"])
}

func TestHistoryPersistsAcrossRestart(t *testing.T) {
	kv := store.NewMemoryStore()
	handler := func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, backend.ChatResponse{Response: "Hola de nuevo", Timestamp: time.Now().Format(time.RFC3339)})
	}

	first := newTestOrchestrator(t, kv, handler)
	first.SendMessage("hola")
	require.Eventually(t, func() bool {
		return countPlaceholders(first.Messages()) == 0 && len(first.Messages()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	second := newTestOrchestrator(t, kv, handler)
	messages := second.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, "hola", messages[1].Text)
	assert.Equal(t, "Hola de nuevo", messages[2].Text)
}
