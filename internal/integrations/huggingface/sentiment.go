package huggingface

import (
	"context"
	"encoding/json"
	"strings"
)

type sentimentRequest struct {
	Inputs string `json:"inputs"`
}

// Sentiment returns a polarity in [-1, 1]: the positive probability minus
// the negative probability reported by the sentiment model.
func (c *Client) Sentiment(ctx context.Context, text string) (float64, error) {
	raw, err := c.postJSON(ctx, c.sentimentURL, sentimentRequest{Inputs: text})
	if err != nil {
		return 0, err
	}
	return parsePolarity(raw)
}

func parsePolarity(raw []byte) (float64, error) {
	if !isJSONArray(raw) {
		if msg, ok := upstreamErrorMessage(raw); ok {
			return 0, &ReportedError{StatusCode: 200, Message: msg}
		}
		return 0, &FormatError{Detail: "expected a list of label scores"}
	}

	// Pipelines answer with either [[{...}]] (batched) or [{...}].
	var scores []labelScore
	var nested [][]labelScore
	if err := json.Unmarshal(raw, &nested); err == nil {
		if len(nested) > 0 {
			scores = nested[0]
		}
	} else if err := json.Unmarshal(raw, &scores); err != nil {
		return 0, &FormatError{Detail: err.Error()}
	}

	var polarity float64
	recognised := false
	for _, s := range scores {
		switch strings.ToLower(strings.TrimSpace(s.Label)) {
		case "positive", "pos", "label_2":
			polarity += s.Score
			recognised = true
		case "negative", "neg", "label_0":
			polarity -= s.Score
			recognised = true
		case "neutral", "neu", "label_1":
			recognised = true
		}
	}
	if !recognised {
		return 0, &FormatError{Detail: "no polarity labels"}
	}
	return clampPolarity(polarity), nil
}

func clampPolarity(p float64) float64 {
	if p > 1 {
		return 1
	}
	if p < -1 {
		return -1
	}
	return p
}
