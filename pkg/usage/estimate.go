package usage

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

var (
	encOnce  sync.Once
	encoding *tiktoken.Tiktoken
)

func loadEncoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// CountTokens counts text with the cl100k_base encoding, falling back to
// EstimateFast when the encoding cannot be loaded.
func CountTokens(text string) int {
	if enc := loadEncoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return EstimateFast(text)
}

// EstimateFast is max(runes/4, words), at least 1 for non-blank text.
func EstimateFast(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	estimate := len([]rune(trimmed)) / 4
	if words := len(strings.Fields(trimmed)); estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}

// Estimate predicts the token usage of a session from its description
type Estimate struct {
	SessionID         string `json:"session_id,omitempty"`
	DescriptionTokens int    `json:"description_tokens"`
	EstimatedInput    int    `json:"estimated_input"`
	EstimatedOutput   int    `json:"estimated_output"`
	RecordedInput     int    `json:"recorded_input"`
	RecordedOutput    int    `json:"recorded_output"`
}

// Projection constants for EstimateSession, per description token.
const (
	inputMultiplier  = 12
	outputMultiplier = 4
	baseInput        = 2000
	baseOutput       = 500
)

// EstimateSession combines a description-based projection with what has
// already been recorded for the session.
func EstimateSession(sessionID, description string, recorded []Record) Estimate {
	n := CountTokens(description)
	est := Estimate{
		SessionID:         sessionID,
		DescriptionTokens: n,
		EstimatedInput:    baseInput + n*inputMultiplier,
		EstimatedOutput:   baseOutput + n*outputMultiplier,
	}
	for _, r := range recorded {
		est.RecordedInput += r.InputTokens
		est.RecordedOutput += r.OutputTokens
	}
	return est
}
