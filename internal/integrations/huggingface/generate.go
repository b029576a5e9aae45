package huggingface

import (
	"context"
	"encoding/json"
)

type generationRequest struct {
	Inputs  string            `json:"inputs"`
	Options generationOptions `json:"options"`
}

type generationOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type generatedText struct {
	GeneratedText *string `json:"generated_text"`
}

// Generate asks the text-generation model to continue prompt and returns the
// raw generated text, which usually echoes the prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	raw, err := c.postJSON(ctx, c.generationURL, generationRequest{
		Inputs:  prompt,
		Options: generationOptions{WaitForModel: true},
	})
	if err != nil {
		return "", err
	}
	return parseGeneration(raw)
}

func parseGeneration(raw []byte) (string, error) {
	if !isJSONArray(raw) {
		if msg, ok := upstreamErrorMessage(raw); ok {
			return "", &ReportedError{StatusCode: 200, Message: msg}
		}
		return "", &FormatError{Detail: "expected a list of generations"}
	}
	var out []generatedText
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &FormatError{Detail: err.Error()}
	}
	if len(out) == 0 || out[0].GeneratedText == nil {
		return "", &FormatError{Detail: "missing generated_text"}
	}
	return *out[0].GeneratedText, nil
}
