package config

import "errors"

// Sentinel errors for import configuration validation.
var (
	// ErrConfigEmpty is returned when the config data is empty (zero bytes).
	ErrConfigEmpty = errors.New("import configuration is empty")

	// ErrHostEmpty is returned when host is empty.
	ErrHostEmpty = errors.New("host is required")

	// ErrHostInvalid is returned when host is not an absolute http(s) URL.
	ErrHostInvalid = errors.New("host must be an absolute http or https URL")

	// ErrCredentialsMissing is returned when username or password is empty.
	ErrCredentialsMissing = errors.New("username and password are required")

	// ErrArchiveEmpty is returned when no source archive is configured.
	ErrArchiveEmpty = errors.New("archive is required")

	// ErrParallelismNegative is returned when max_parallelism < 0.
	ErrParallelismNegative = errors.New("max_parallelism must not be negative")

	// ErrTimeoutNegative is returned when request_timeout_ms < 0.
	ErrTimeoutNegative = errors.New("request_timeout_ms must not be negative")

	// ErrLedgerDriver is returned for an unknown ledger driver.
	ErrLedgerDriver = errors.New("ledger.driver must be sqlite or mysql")

	// ErrLedgerDSNEmpty is returned when a ledger is configured without a dsn.
	ErrLedgerDSNEmpty = errors.New("ledger.dsn is required")
)
