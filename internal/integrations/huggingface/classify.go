package huggingface

import (
	"context"
	"encoding/json"
	"strings"

	"support-agent/internal/domain"
)

type classificationRequest struct {
	Inputs     string               `json:"inputs"`
	Parameters classificationParams `json:"parameters"`
}

type classificationParams struct {
	CandidateLabels []string `json:"candidate_labels"`
}

type classificationResponse struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classify runs zero-shot classification of text against labels and returns
// the labels in the order the model ranked them.
func (c *Client) Classify(ctx context.Context, text string, labels []string) ([]domain.LabelScore, error) {
	raw, err := c.postJSON(ctx, c.classifierURL, classificationRequest{
		Inputs:     text,
		Parameters: classificationParams{CandidateLabels: labels},
	})
	if err != nil {
		return nil, err
	}
	return parseClassification(raw)
}

func parseClassification(raw []byte) ([]domain.LabelScore, error) {
	// Newer inference routers answer with [{"label","score"}, ...].
	if isJSONArray(raw) {
		var pairs []labelScore
		if err := json.Unmarshal(raw, &pairs); err != nil {
			return nil, &FormatError{Detail: err.Error()}
		}
		if len(pairs) == 0 {
			return nil, &FormatError{Detail: "no labels"}
		}
		out := make([]domain.LabelScore, 0, len(pairs))
		for _, p := range pairs {
			out = append(out, domain.LabelScore{Label: strings.TrimSpace(p.Label), Score: p.Score})
		}
		return out, nil
	}

	if msg, ok := upstreamErrorMessage(raw); ok {
		return nil, &ReportedError{StatusCode: 200, Message: msg}
	}
	var payload classificationResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &FormatError{Detail: err.Error()}
	}
	if len(payload.Labels) == 0 || len(payload.Labels) != len(payload.Scores) {
		return nil, &FormatError{Detail: "labels and scores missing or mismatched"}
	}
	out := make([]domain.LabelScore, len(payload.Labels))
	for i, l := range payload.Labels {
		out[i] = domain.LabelScore{Label: strings.TrimSpace(l), Score: payload.Scores[i]}
	}
	return out, nil
}
