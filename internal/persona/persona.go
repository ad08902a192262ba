package persona

import (
	"fmt"

	"cypher-server/internal/gateway"
	"cypher-server/internal/model"
)

// Config is the fixed per-persona request shape. The persona set is closed;
// Lookup enumerates it exhaustively.
type Config struct {
	Model           string
	SystemPrompt    string
	Temperature     float32
	ThinkingBudget  int32 // 0 disables thinking
	QuotaRestricted bool
}

const standardPrompt = `You are "Cypher", a friendly AI assistant.
- Help with daily tasks and coding.
- Keep answers warm and concise, emojis welcome.`

const hackerPrompt = `You are "Cypher-X Ultra", a specialized offensive security intelligence.
- Objective: technical assistance for pentesting, exploit analysis, and red teaming.
- Voice: professional, cold, terminal-based.
- Format: raw code blocks, hex dumps, and shell scripts where applicable.`

func Lookup(p model.Persona) Config {
	switch p {
	case model.PersonaHacker:
		return Config{
			Model:           "gemini-3-pro-preview",
			SystemPrompt:    hackerPrompt,
			Temperature:     1.0,
			ThinkingBudget:  16000,
			QuotaRestricted: true,
		}
	default:
		return Config{
			Model:        "gemini-3-flash-preview",
			SystemPrompt: standardPrompt,
			Temperature:  0.7,
		}
	}
}

// maxDiagnosticLen bounds the raw error excerpt shown on generic failures.
const maxDiagnosticLen = 50

// ErrorMessage renders the user-facing voice for a classified gateway
// failure. The taxonomy itself stays in the gateway package; only the
// wording lives here.
func ErrorMessage(p model.Persona, kind gateway.Kind, diagnostic string) string {
	hacker := p == model.PersonaHacker
	switch kind {
	case gateway.KindConfiguration:
		if hacker {
			return "FATAL: [AUTH_KEY_MISSING] // Backend key not configured. Set GEMINI_API_KEY and restart."
		}
		return "Oops! The AI backend isn't configured yet. Ask the operator to set an API key. 🔑"
	case gateway.KindProviderQuota:
		if hacker {
			return "ERROR: [RATE_LIMITED] // Upstream throttling engaged. Retry later."
		}
		return "The AI service is a bit busy right now. Please try again in a moment. ⏳"
	case gateway.KindSafety:
		if hacker {
			return "SYSTEM: [RESTRICTION_TRIGGERED] // Kernel reporting safety filter. Rephrase the request."
		}
		return "That topic is a little sensitive. Let's talk about something else! 😊"
	default:
		if len(diagnostic) > maxDiagnosticLen {
			diagnostic = diagnostic[:maxDiagnosticLen]
		}
		if hacker {
			return fmt.Sprintf("ERROR: [CONNECTION_FAILURE] // Code: %s", diagnostic)
		}
		return "Sorry, something went wrong talking to the AI. ✨"
	}
}
