// Package config loads the server configuration from <data-dir>/insertd.yaml.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/maruel/insertd/internal/auth"
	"github.com/maruel/insertd/internal/capability"
)

// FileName is the configuration file name inside the data directory.
const FileName = "insertd.yaml"

// ServerConfig stores all server-wide configuration.
// Loaded from insertd.yaml; defaults apply when the file is missing.
type ServerConfig struct {
	// Databases maps served names to SQLite files. Relative paths resolve
	// against the data directory. When empty every *.db in the data directory
	// is served under its base name.
	Databases map[string]string `yaml:"databases,omitempty" json:"databases,omitempty" jsonschema:"description=Database name to SQLite file path"`

	// CreateDatabases lets the first write to an unknown name create the file.
	CreateDatabases bool `yaml:"create_databases,omitempty" json:"create_databases,omitempty"`

	// Unsafe grants every capability to every caller.
	Unsafe bool `yaml:"unsafe,omitempty" json:"unsafe,omitempty" jsonschema:"description=Grant insert:all to everyone"`

	// CORS adds permissive CORS headers to write responses.
	CORS bool `yaml:"cors,omitempty" json:"cors,omitempty"`

	// Allow is the actor allow block for insert:all. Absent means the block
	// does not take part in decisions.
	Allow any `yaml:"allow,omitempty" json:"allow,omitempty" jsonschema:"description=Actor allow block granting insert:all"`

	// Permissions are fine-grained rules evaluated after the allow block.
	Permissions []capability.Rule `yaml:"permissions,omitempty" json:"permissions,omitempty"`

	// Tokens are static bearer tokens.
	Tokens []auth.Token `yaml:"tokens,omitempty" json:"tokens,omitempty"`

	// JWTSecret enables HS256 signed bearer tokens.
	JWTSecret string `yaml:"jwt_secret,omitempty" json:"jwt_secret,omitempty"`

	Quotas     Quotas     `yaml:"quotas" json:"quotas"`
	RateLimits RateLimits `yaml:"rate_limits" json:"rate_limits"`
	Metrics    Metrics    `yaml:"metrics" json:"metrics"`
}

// Quotas bounds request sizes.
type Quotas struct {
	// MaxRequestBodyBytes limits the size of a write body. 0 means unlimited.
	MaxRequestBodyBytes ByteSize `yaml:"max_request_body_bytes" json:"max_request_body_bytes"`

	// MaxBatchRows limits the number of rows in one array body. 0 means
	// unlimited.
	MaxBatchRows int `yaml:"max_batch_rows" json:"max_batch_rows" jsonschema:"description=Maximum rows per request (0=unlimited)"`
}

// Validate checks that all quota values are non-negative.
func (q *Quotas) Validate() error {
	if q.MaxRequestBodyBytes < 0 {
		return errors.New("max_request_body_bytes must be non-negative")
	}
	if q.MaxBatchRows < 0 {
		return errors.New("max_batch_rows must be non-negative")
	}
	return nil
}

// DefaultQuotas returns the default quotas.
func DefaultQuotas() Quotas {
	return Quotas{
		MaxRequestBodyBytes: 10 * 1024 * 1024, // 10 MiB
		MaxBatchRows:        10000,
	}
}

// RateLimits defines rate limiting configuration (requests per minute).
type RateLimits struct {
	// WriteRatePerMin limits writes per actor, or per client IP for anonymous
	// callers. 0 means unlimited.
	WriteRatePerMin int `yaml:"write_rate_per_min" json:"write_rate_per_min"`

	// WriteBurst is the bucket size. 0 derives it from the rate.
	WriteBurst int `yaml:"write_burst,omitempty" json:"write_burst,omitempty"`
}

// Validate checks that rate limit values are non-negative.
func (r *RateLimits) Validate() error {
	if r.WriteRatePerMin < 0 {
		return errors.New("write_rate_per_min must be non-negative")
	}
	if r.WriteBurst < 0 {
		return errors.New("write_burst must be non-negative")
	}
	return nil
}

// DefaultRateLimits returns the default rate limits.
func DefaultRateLimits() RateLimits {
	return RateLimits{WriteRatePerMin: 600}
}

// Metrics selects the metrics backend.
type Metrics struct {
	Backend       string        `yaml:"backend,omitempty" json:"backend,omitempty" jsonschema:"enum=none,enum=prometheus,enum=datadog"`
	Tags          []string      `yaml:"tags,omitempty" json:"tags,omitempty" jsonschema:"description=Extra Datadog tags (key:value)"`
	FlushInterval time.Duration `yaml:"flush_interval,omitempty" json:"flush_interval,omitempty" jsonschema:"type=string,description=Datadog flush interval such as 30s"`
}

// Validate checks the backend name.
func (m *Metrics) Validate() error {
	switch m.Backend {
	case "", "none", "prometheus", "datadog":
	default:
		return fmt.Errorf("unknown backend %q", m.Backend)
	}
	if m.FlushInterval < 0 {
		return errors.New("flush_interval must be non-negative")
	}
	return nil
}

// Default returns the configuration used when no file exists.
func Default() *ServerConfig {
	return &ServerConfig{Quotas: DefaultQuotas(), RateLimits: DefaultRateLimits()}
}

// Validate checks that the configuration is valid.
func (c *ServerConfig) Validate() error {
	for name, path := range c.Databases {
		if name == "" || strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("databases: invalid name %q", name)
		}
		if path == "" {
			return fmt.Errorf("databases: %s: path is required", name)
		}
	}
	for i := range c.Permissions {
		if !slices.Contains(capability.Actions, c.Permissions[i].Action) {
			return fmt.Errorf("permissions[%d]: unknown action %q", i, c.Permissions[i].Action)
		}
	}
	for i := range c.Tokens {
		if err := c.Tokens[i].Validate(); err != nil {
			return fmt.Errorf("tokens[%d]: %w", i, err)
		}
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 bytes")
	}
	if err := c.Quotas.Validate(); err != nil {
		return fmt.Errorf("quotas: %w", err)
	}
	if err := c.RateLimits.Validate(); err != nil {
		return fmt.Errorf("rate_limits: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}

// Policies returns the access policies in evaluation order.
func (c *ServerConfig) Policies() []capability.Policy {
	return []capability.Policy{
		capability.Unsafe(c.Unsafe),
		capability.AllowBlock(c.Allow, c.Allow != nil),
		capability.Rules(c.Permissions),
	}
}

// Authenticator returns the bearer token resolver for this configuration.
func (c *ServerConfig) Authenticator() *auth.Authenticator {
	return auth.New(c.Tokens, c.JWTSecret)
}

// Path returns the configuration file path for dataDir.
func Path(dataDir string) string {
	return filepath.Join(dataDir, FileName)
}

// Load loads configuration from dataDir/insertd.yaml. A missing file yields
// the defaults. Unknown keys are rejected.
func Load(dataDir string) (*ServerConfig, error) {
	cfg := Default()
	f, err := os.Open(Path(dataDir)) //nolint:gosec // G304: path is constructed from dataDir, not user input
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
	}
	defer func() { _ = f.Close() }()
	d := yaml.NewDecoder(f)
	d.KnownFields(true)
	if err := d.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return cfg, nil
}

// Schema returns the JSON Schema describing insertd.yaml.
func Schema() ([]byte, error) {
	r := jsonschema.Reflector{FieldNameTag: "yaml", DoNotReference: true, AllowAdditionalProperties: false}
	b, err := json.MarshalIndent(r.Reflect(&ServerConfig{}), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// ByteSize is a size in bytes. In YAML it is either an integer or a
// human-readable string such as "10 MiB".
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: byte size must be a scalar", value.Line)
	}
	if value.Tag == "!!int" {
		var i int64
		if err := value.Decode(&i); err != nil {
			return err
		}
		*b = ByteSize(i)
		return nil
	}
	n, err := humanize.ParseBytes(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*b = ByteSize(n)
	return nil
}

// String formats the size with IEC units.
func (b ByteSize) String() string {
	if b < 0 {
		return fmt.Sprintf("%d B", int64(b))
	}
	return humanize.IBytes(uint64(b))
}

// JSONSchema implements the jsonschema custom schema hook.
func (ByteSize) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "integer", Minimum: json.Number("0")},
			{Type: "string", Pattern: `^\d+(\.\d+)?\s*[A-Za-z]*$`},
		},
		Description: "Size in bytes, or a string such as \"10 MiB\"",
	}
}
