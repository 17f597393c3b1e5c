package config

import (
	"net/url"
)

// Validator validates import configurations.
type Validator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate returns nil if cfg is valid, or the first validation failure.
func (v *Validator) Validate(cfg *ImportConfig) error {
	if cfg == nil {
		return ErrConfigEmpty
	}
	if err := v.validateHost(cfg.Host); err != nil {
		return err
	}
	if cfg.Username == "" || cfg.Password == "" {
		return ErrCredentialsMissing
	}
	if cfg.Archive == "" {
		return ErrArchiveEmpty
	}
	if cfg.MaxParallelism < 0 {
		return ErrParallelismNegative
	}
	if cfg.RequestTimeoutMs < 0 {
		return ErrTimeoutNegative
	}
	return v.validateLedger(cfg.Ledger)
}

func (v *Validator) validateHost(host string) error {
	if host == "" {
		return ErrHostEmpty
	}
	u, err := url.Parse(host)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrHostInvalid
	}
	return nil
}

// validateLedger accepts a nil ledger (no recording).
func (v *Validator) validateLedger(l *LedgerConfig) error {
	if l == nil {
		return nil
	}
	switch l.Driver {
	case "sqlite", "mysql":
	default:
		return ErrLedgerDriver
	}
	if l.DSN == "" {
		return ErrLedgerDSNEmpty
	}
	return nil
}
