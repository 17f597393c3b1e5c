// Package config provides import configuration loading and validation.
package config

import (
	"time"

	"github.com/jakesower/gtfs-import/contracts"
)

// DefaultHost is used when no host is configured.
const DefaultHost = "https://www.arcgis.com/sharing/rest"

// ImportConfig is the static configuration of one import run.
type ImportConfig struct {
	Host     string `json:"host"`
	Username string `json:"username"`
	Password string `json:"password"`
	Referer  string `json:"referer,omitempty"`

	// GroupID receives the shared items. Empty means a group is created.
	GroupID string `json:"group_id,omitempty"`

	// Archive is the path of the GTFS zip file.
	Archive string `json:"archive"`

	Share            *ShareConfig  `json:"share,omitempty"`
	MaxParallelism   int           `json:"max_parallelism,omitempty"`
	RequestTimeoutMs int64         `json:"request_timeout_ms,omitempty"`
	Ledger           *LedgerConfig `json:"ledger,omitempty"`
}

// ShareConfig overrides the visibility of shared items. Unset fields default to true.
type ShareConfig struct {
	Everyone *bool `json:"everyone,omitempty"`
	Org      *bool `json:"org,omitempty"`
}

// LedgerConfig selects where run outcomes are recorded.
type LedgerConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// SharePolicy resolves the share visibility of the run.
func (c *ImportConfig) SharePolicy() contracts.SharePolicy {
	p := contracts.DefaultSharePolicy()
	if c.Share == nil {
		return p
	}
	if c.Share.Everyone != nil {
		p.Everyone = *c.Share.Everyone
	}
	if c.Share.Org != nil {
		p.Org = *c.Share.Org
	}
	return p
}

// RequestTimeout returns the per-request timeout, zero meaning the client default.
func (c *ImportConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}
