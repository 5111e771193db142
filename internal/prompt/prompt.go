// Package prompt composes the ordered message sequence for one generation
// request. The output is provider-agnostic; role renaming and system-channel
// handling live in the provider adapters.
package prompt

import (
	"strings"

	"github.com/qandu/ai-relay/internal/domain"
)

// BuildMessages assembles system prompt, prior history and the new user turn
// into a single sequence. History order is preserved (oldest first); entries
// with roles other than user/assistant, such as stored tool-call artifacts,
// are dropped. The new user turn is always last.
func BuildMessages(systemPrompt string, history []domain.Message, newUserText string) []domain.Message {
	messages := make([]domain.Message, 0, len(history)+2)

	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, domain.Message{
			Role:    domain.RoleSystem,
			Content: systemPrompt,
		})
	}

	for _, message := range history {
		if message.Role != domain.RoleUser && message.Role != domain.RoleAssistant {
			continue
		}
		messages = append(messages, message)
	}

	messages = append(messages, domain.Message{
		Role:    domain.RoleUser,
		Content: newUserText,
	})

	return messages
}
