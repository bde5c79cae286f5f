package ai

import (
	"fmt"

	"github.com/hewlab/hew/internal/agent/session"
)

const (
	// localHistoryLimit caps how many recent messages are sent to local
	// providers, where tokens are free but context windows are small.
	localHistoryLimit = 50

	// meteredHistoryTail is how many recent messages survive elision on
	// metered providers once the conversation grows past the threshold.
	meteredHistoryTail = 10
)

// IsLocalProvider reports whether the provider runs on the local machine
// and bills nothing per token.
func IsLocalProvider(providerID string) bool {
	return providerID == "ollama"
}

// OptimizeHistory trims conversation history according to the cost model
// of the target provider.
//
// Local providers get up to localHistoryLimit of the most recent messages
// verbatim. Metered providers keep short conversations untouched; longer
// ones are reduced to the first user message, a synthetic elision marker,
// and the most recent tail.
func OptimizeHistory(providerID string, msgs []session.Message) []session.Message {
	if IsLocalProvider(providerID) {
		if len(msgs) > localHistoryLimit {
			return msgs[len(msgs)-localHistoryLimit:]
		}
		return msgs
	}

	if len(msgs) <= meteredHistoryTail {
		return msgs
	}

	tailStart := len(msgs) - meteredHistoryTail
	tail := msgs[tailStart:]

	// Keep the first user message so the original task statement
	// survives elision. Skip it if it already falls inside the tail.
	var first *session.Message
	for i := range msgs[:tailStart] {
		if msgs[i].Role == "user" {
			first = &msgs[i]
			break
		}
	}

	result := make([]session.Message, 0, meteredHistoryTail+2)
	if first != nil {
		result = append(result, *first)
	}

	elided := len(msgs) - len(tail)
	if first != nil {
		elided--
	}
	if elided > 0 {
		result = append(result, session.Message{
			Role:    "user",
			Content: fmt.Sprintf("[%d earlier messages elided]", elided),
		})
	}

	return append(result, tail...)
}
