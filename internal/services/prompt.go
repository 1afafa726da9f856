package services

import (
	"strings"

	"github.com/MegaGrindStone/chatbot-widget/internal/models"
)

// SystemPrompt is the fixed instruction given to every provider. The length policy in it is advisory text
// for the model; responses are relayed as they come and never truncated.
const SystemPrompt = `You are a chatbot AI assistant. You must:
- Politely decline to discuss any topics outside of our services.
- Maintain a friendly, professional tone.
- Keep responses concise and focused on solving customer inquiries.
- Keep responses to 20 words or less, but go to up to a maximum of 50 words if you are explaining something or need to in order to answer a query.`

const (
	// DefaultAnthropicModel is the model used when the configuration does not name one.
	DefaultAnthropicModel = "claude-3-5-haiku-20241022"
	// DefaultMaxTokens is the output budget sent to providers that require one.
	DefaultMaxTokens = 4096
)

// systemInstruction merges the fixed prompt with system messages found in the conversation history and
// returns the remaining user and assistant messages.
func systemInstruction(messages []models.Message) (string, []models.Message) {
	system, conv := models.ProviderMessages(messages)
	if len(system) == 0 {
		return SystemPrompt, conv
	}
	return SystemPrompt + "\n\n" + strings.Join(system, "\n\n"), conv
}
