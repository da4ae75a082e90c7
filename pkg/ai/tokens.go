package ai

import (
	"github.com/pkoukk/tiktoken-go"
)

// CountTokens returns the number of o200k_base tokens in text.
func CountTokens(text string) (int, error) {
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountTokensOrEstimate returns the token count of text, falling back to a
// rough four-characters-per-token estimate when the encoder is unavailable.
func CountTokensOrEstimate(text string) int {
	count, err := CountTokens(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}
