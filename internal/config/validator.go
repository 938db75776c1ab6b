// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
	"time"
)

// Validator validates configuration against schema rules.
type Validator struct{}

// NewValidator creates a new config validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidationError contains multiple validation failures.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single field validation error.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(msgs, "; ")
}

// IsEmpty returns true if there are no validation errors.
func (e *ValidationError) IsEmpty() bool {
	return len(e.Errors) == 0
}

// Add adds a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Validate checks configuration validity.
func (v *Validator) Validate(cfg *Config) error {
	errs := &ValidationError{}

	v.validateServer(cfg, errs)
	v.validateCLI(cfg, errs)
	v.validateSession(cfg, errs)
	v.validateIdle(cfg, errs)
	v.validateLogging(cfg, errs)
	v.validateEvents(cfg, errs)

	if errs.IsEmpty() {
		return nil
	}
	return errs
}

func (v *Validator) validateServer(cfg *Config, errs *ValidationError) {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs.Add("server.port", "must be between 0 and 65535")
	}

	hasCertKey := cfg.Server.TLSCert != "" || cfg.Server.TLSKey != ""
	if cfg.Server.TLSTailscale && hasCertKey {
		errs.Add("server", "tls_tailscale and tls_cert/tls_key are mutually exclusive")
	}
	if !cfg.Server.TLSTailscale && (cfg.Server.TLSCert == "") != (cfg.Server.TLSKey == "") {
		errs.Add("server", "both tls_cert and tls_key must be specified together")
	}
}

func (v *Validator) validateCLI(cfg *Config, errs *ValidationError) {
	if cfg.CLI.BinaryPath == "" {
		errs.Add("cli.binary_path", "is required")
	}
}

func (v *Validator) validateSession(cfg *Config, errs *ValidationError) {
	if cfg.Session.StorePath == "" {
		errs.Add("session.store_path", "is required")
	}
	if cfg.Session.TTL != "" {
		if _, err := time.ParseDuration(cfg.Session.TTL); err != nil {
			errs.Add("session.ttl", fmt.Sprintf("invalid duration format: %s", err))
		}
	}
}

func (v *Validator) validateIdle(cfg *Config, errs *ValidationError) {
	for field, s := range map[string]string{
		"idle_timeout.baseline":      cfg.Idle.Baseline,
		"idle_timeout.tool_executing": cfg.Idle.ToolExecuting,
		"idle_timeout.compacting":    cfg.Idle.Compacting,
	} {
		if s == "" {
			continue
		}
		if d, err := time.ParseDuration(s); err != nil {
			errs.Add(field, fmt.Sprintf("invalid duration format: %s", err))
		} else if d <= 0 {
			errs.Add(field, "must be positive")
		}
	}
}

func (v *Validator) validateLogging(cfg *Config, errs *ValidationError) {
	if cfg.Logging.Level == "" {
		return
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs.Add("logging.level", fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", cfg.Logging.Level))
	}
}

func (v *Validator) validateEvents(cfg *Config, errs *ValidationError) {
	if cfg.Events.History.MaxAge == "" {
		return
	}
	if d, err := time.ParseDuration(cfg.Events.History.MaxAge); err != nil {
		errs.Add("events.history.max_age", fmt.Sprintf("invalid duration format: %s", err))
	} else if d < 0 {
		errs.Add("events.history.max_age", "must be positive")
	}
}
