package anthropic

// CachedSystem wraps a long, stable system prompt (the newsroom style guide)
// in a single block with a one-hour cache breakpoint, so consecutive drafts
// in a daily run read it from the prompt cache.
func CachedSystem(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: "1h"}}}
}
