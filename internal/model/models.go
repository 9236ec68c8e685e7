// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo describes a Gemini model that can be selected for chat.
type ModelInfo struct {
	// ID is the model identifier used in API paths
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Tier categorizes the model's capability level
	Tier string `json:"tier"`

	// MaxTokens is the input context window
	MaxTokens int `json:"max_tokens"`

	// Vision reports whether inline images are accepted
	Vision bool `json:"vision"`

	Description string `json:"description"`
}

// Models is the registry of known models keyed by short name.
var Models = map[string]ModelInfo{
	"flash": {
		ID:          "gemini-2.5-flash",
		Name:        "Gemini 2.5 Flash",
		Tier:        "Fast",
		MaxTokens:   1048576,
		Vision:      true,
		Description: "Fast multimodal model, the default",
	},
	"flash-lite": {
		ID:          "gemini-2.5-flash-lite",
		Name:        "Gemini 2.5 Flash-Lite",
		Tier:        "Fast",
		MaxTokens:   1048576,
		Vision:      true,
		Description: "Lowest latency and cost",
	},
	"pro": {
		ID:          "gemini-2.5-pro",
		Name:        "Gemini 2.5 Pro",
		Tier:        "Powerful",
		MaxTokens:   1048576,
		Vision:      true,
		Description: "Most capable for complex reasoning",
	},
	"2.0-flash": {
		ID:          "gemini-2.0-flash",
		Name:        "Gemini 2.0 Flash",
		Tier:        "Balanced",
		MaxTokens:   1048576,
		Vision:      true,
		Description: "Previous generation workhorse",
	},
}

// ContextString returns a formatted context window string.
func (m ModelInfo) ContextString() string {
	if m.MaxTokens >= 1000000 {
		return fmt.Sprintf("%.1fM tokens", float64(m.MaxTokens)/1000000)
	}
	if m.MaxTokens >= 1000 {
		return fmt.Sprintf("%dK tokens", m.MaxTokens/1000)
	}
	return fmt.Sprintf("%d tokens", m.MaxTokens)
}

// =============================================================================
// MODEL LOOKUP
// =============================================================================

// ResolveModel maps a short name to its API ID. Unknown names are returned
// unchanged so new models work without a registry update.
func ResolveModel(nameOrID string) string {
	if info, ok := GetModelInfo(nameOrID); ok {
		return info.ID
	}
	return nameOrID
}

// GetModelInfo looks up a model by short name or exact ID.
func GetModelInfo(nameOrID string) (ModelInfo, bool) {
	if info, ok := Models[strings.ToLower(nameOrID)]; ok {
		return info, true
	}
	for _, info := range Models {
		if info.ID == nameOrID {
			return info, true
		}
	}
	return ModelInfo{}, false
}

// ModelShortNames returns the registry keys in sorted order.
func ModelShortNames() []string {
	names := make([]string, 0, len(Models))
	for name := range Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
