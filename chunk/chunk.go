// Package chunk groups work items into backend-call-sized batches.
package chunk

import "github.com/packlate/packlate/document"

// PromptOverhead is the token allowance reserved in every batch for
// instructions and glossary lines.
const PromptOverhead = 500

// EstimateTokens approximates the token cost of text. Four characters
// per token is close enough for budgeting purposes.
func EstimateTokens(text string) int {
	return len(text)/4 + 1
}

// Split partitions items into ordered batches whose summed token
// estimates stay under maxTokens minus PromptOverhead. An item whose
// own estimate exceeds the budget becomes a singleton batch rather
// than being dropped or truncated. Input order is preserved so logs
// and retries correlate to first-seen item order.
func Split(items []document.Item, maxTokens int) [][]document.Item {
	var chunks [][]document.Item
	var current []document.Item
	currentTokens := 0
	budget := maxTokens - PromptOverhead

	for _, item := range items {
		tokens := EstimateTokens(item.Original)
		switch {
		case tokens > budget:
			if len(current) > 0 {
				chunks = append(chunks, current)
				current = nil
				currentTokens = 0
			}
			chunks = append(chunks, []document.Item{item})
		case currentTokens+tokens > budget:
			chunks = append(chunks, current)
			current = []document.Item{item}
			currentTokens = tokens
		default:
			current = append(current, item)
			currentTokens += tokens
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}
