package chat

import (
	"math/rand"
	"strings"
	"time"

	"storefront-client/internal/models"
)

// Canonical assistant strings. The storefront ships in Spanish; these are
// product copy, not debug text.
const (
	greetingText = "¡Hola! Soy InfoBot, tu asistente virtual de GRUPO INFOTEC. ¿En qué puedo ayudarte hoy? Puedo brindarte información sobre nuestros productos, servicios técnicos y soporte. 🤖💻"
	failureText  = "Lo siento, ocurrió un error. Por favor, verifica que el backend esté ejecutándose e intenta de nuevo."
)

// classifyTyping picks the initial presentation state for an outgoing
// message: catalog keywords read as a search, long messages as something to
// think about, everything else as plain typing.
func classifyTyping(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "buscar"),
		strings.Contains(lower, "mostrar"),
		strings.Contains(lower, "productos"):
		return models.TypingSearching
	case len(lower) > 50:
		return models.TypingThinking
	default:
		return models.TypingTyping
	}
}

// placeholderText returns the loading-message copy for a typing state.
func placeholderText(state string) string {
	switch state {
	case models.TypingThinking:
		return "InfoBot está pensando..."
	case models.TypingSearching:
		return "InfoBot está buscando productos..."
	default:
		return "InfoBot está escribiendo..."
	}
}

// thinkingDelay returns the randomized pause before the bot "starts typing".
func thinkingDelay() time.Duration {
	return time.Duration(500+rand.Intn(1000)) * time.Millisecond
}

// typingDelay scales with message length up to the configured cap.
func typingDelay(messageLen int, perChar, max time.Duration) time.Duration {
	d := time.Duration(messageLen) * perChar
	if d > max {
		return max
	}
	return d
}
