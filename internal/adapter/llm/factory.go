package llm

import (
	"log"
	"time"
)

// ModeMock selects the scripted mock model.
const ModeMock = "MOCK"

// NewModel creates a model for the given agent mode. MOCK returns a
// MockClient; anything else returns an OpenAI-compatible Client.
func NewModel(mode, baseURL, apiKey, model string, timeout time.Duration) Model {
	if mode == ModeMock {
		log.Println("AGENT_MODE=MOCK detected, using mock LLM client")
		return NewMockClient()
	}
	return NewClient(baseURL, apiKey, model, timeout)
}
