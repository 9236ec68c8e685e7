// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"strings"

	"github.com/jeranaias/gemchat/internal/model"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

// GenerationConfig holds optional sampling parameters. Zero values are
// omitted so the server defaults apply.
type GenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata *Usage `json:"usageMetadata,omitempty"`
}

// Usage reports token counts for a response.
type Usage struct {
	PromptTokens     int `json:"promptTokenCount"`
	CandidatesTokens int `json:"candidatesTokenCount"`
	TotalTokens      int `json:"totalTokenCount"`
}

// text returns the concatenated text of the first candidate.
func (r *generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// =============================================================================
// CONVERSION
// =============================================================================

func toContent(t model.Turn) content {
	c := content{Role: string(t.Role), Parts: make([]part, 0, len(t.Parts))}
	for _, p := range t.Parts {
		switch {
		case p.Image != nil:
			c.Parts = append(c.Parts, part{InlineData: &inlineData{
				MIMEType: p.Image.MIMEType,
				Data:     p.Image.Data,
			}})
		case p.Text != "":
			c.Parts = append(c.Parts, part{Text: p.Text})
		}
	}
	return c
}

// buildContents converts history plus the new prompt into request contents.
// Turns without any sendable part are dropped since the API rejects them.
func buildContents(prompt string, history []model.Turn, images []model.InlineImage) []content {
	contents := make([]content, 0, len(history)+1)
	for _, t := range history {
		if c := toContent(t); len(c.Parts) > 0 {
			contents = append(contents, c)
		}
	}
	contents = append(contents, toContent(model.NewUserTurn(prompt, images)))
	return contents
}
