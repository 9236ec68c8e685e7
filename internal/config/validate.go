// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every problem found by Validate.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return "config validation failed: " + strings.Join(msgs, "; ")
}

// Has reports whether field (dot notation) failed validation.
func (e ValidateErrors) Has(field string) bool {
	for _, ve := range e {
		if ve.Field == field {
			return true
		}
	}
	return false
}

var (
	logLevels   = []interface{}{"debug", "info", "warn", "warning", "error"}
	logFormats  = []interface{}{"json", "text"}
	backends    = []interface{}{"file", "sqlite", BackendNone}
	themes      = []interface{}{"auto", "dark", "light"}
	exportKinds = []interface{}{"md", "markdown", "json", "yaml", "yml"}
)

// Validate checks every section and returns ValidateErrors listing each
// offending key in dot notation.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		fn   func() error
	}{
		{"gemini", c.Gemini.Validate},
		{"retry", c.Retry.Validate},
		{"render", c.Render.Validate},
		{"storage", c.Storage.Validate},
		{"ui", c.UI.Validate},
		{"logging", c.Logging.Validate},
		{"export", c.Export.Validate},
	}

	var errs ValidateErrors
	for _, s := range sections {
		errs = append(errs, flatten(s.name, s.fn())...)
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// flatten turns ozzo's per-field error map into sorted ValidationErrors.
func flatten(section string, err error) ValidateErrors {
	if err == nil {
		return nil
	}
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return ValidateErrors{{Field: section, Message: err.Error()}}
	}

	keys := make([]string, 0, len(fieldErrs))
	for k := range fieldErrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(ValidateErrors, 0, len(keys))
	for _, k := range keys {
		out = append(out, ValidationError{
			Field:   section + "." + k,
			Message: fieldErrs[k].Error(),
		})
	}
	return out
}

// Validate checks the gemini section.
func (g GeminiConfig) Validate() error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.Model, validation.Required),
		validation.Field(&g.BaseURL, validation.Required, validation.By(httpURL)),
		validation.Field(&g.Timeout, validation.By(positiveDuration)),
		validation.Field(&g.RequestsPerMinute, validation.Min(0)),
	)
}

// Validate checks the retry section.
func (r RetryConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.MaxRetries, validation.Min(0), validation.Max(10)),
		validation.Field(&r.BaseDelay, validation.By(positiveDuration)),
		validation.Field(&r.MaxDelay, validation.By(positiveDuration), validation.By(notBelow(r.BaseDelay.Duration, "base_delay"))),
		validation.Field(&r.FirstChunkTimeout, validation.By(positiveDuration)),
		validation.Field(&r.WarningTTL, validation.By(positiveDuration)),
	)
}

// Validate checks the render section.
func (r RenderConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FrameInterval, validation.By(durationBetween(time.Millisecond, time.Second))),
	)
}

// Validate checks the storage section.
func (s StorageConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Backend, validation.Required, validation.In(backends...)),
		validation.Field(&s.MaxSessions, validation.Min(1)),
	)
}

// Validate checks the ui section.
func (u UIConfig) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.Theme, validation.In(themes...)),
	)
}

// Validate checks the logging section.
func (l LoggingConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In(logLevels...)),
		validation.Field(&l.Format, validation.In(logFormats...)),
		validation.Field(&l.Retention, validation.Min(1)),
	)
}

// Validate checks the export section.
func (e ExportConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Format, validation.In(exportKinds...)),
	)
}

// =============================================================================
// RULES
// =============================================================================

func httpURL(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must be an http or https URL")
	}
	if u.Host == "" {
		return errors.New("must include a host")
	}
	return nil
}

func positiveDuration(value interface{}) error {
	d, _ := value.(Duration)
	if d.Duration <= 0 {
		return errors.New("must be a positive duration")
	}
	return nil
}

func durationBetween(lo, hi time.Duration) validation.RuleFunc {
	return func(value interface{}) error {
		d, _ := value.(Duration)
		if d.Duration < lo || d.Duration > hi {
			return fmt.Errorf("must be between %s and %s", lo, hi)
		}
		return nil
	}
}

func notBelow(min time.Duration, name string) validation.RuleFunc {
	return func(value interface{}) error {
		d, _ := value.(Duration)
		if d.Duration < min {
			return fmt.Errorf("must not be less than %s", name)
		}
		return nil
	}
}
