package anthropic

// BuildCachedSystemBlocks returns the system prompt as a single block with
// a 1-hour cache breakpoint, so consecutive batches of one run reuse the
// cached prompt.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: "1h"}}}
}
