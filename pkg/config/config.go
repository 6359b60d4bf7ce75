// Package config loads and validates the engine's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/validation"
)

// Config is the full engine configuration.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Inference   InferenceConfig   `yaml:"inference"`
	FanIn       FanInConfig       `yaml:"fan_in"`
	ESI         ESIConfig         `yaml:"esi"`
	Audit       AuditConfig       `yaml:"audit"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Events      EventsConfig      `yaml:"events"`
	Attestation AttestationConfig `yaml:"attestation"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// InferenceConfig sizes the inference worker pool.
type InferenceConfig struct {
	Workers     int           `yaml:"workers"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
}

// FanInConfig sets the default parent-count threshold for fan-in
// reduction. Network specs may override it per network.
type FanInConfig struct {
	Threshold int `yaml:"threshold"`
}

// ESIConfig overrides the evidence sufficiency weights and cutoffs.
// Zero-valued sections keep the defaults.
type ESIConfig struct {
	Weights *ESIWeightsConfig `yaml:"weights,omitempty"`
	Cutoffs *ESICutoffsConfig `yaml:"cutoffs,omitempty"`
}

// ESIWeightsConfig mirrors esi.Weights in YAML form.
type ESIWeightsConfig struct {
	ActivationRatio     float64 `yaml:"activation_ratio"`
	MeanConfidence      float64 `yaml:"mean_confidence"`
	FallbackPenalty     float64 `yaml:"fallback_penalty"`
	ContributionEntropy float64 `yaml:"contribution_entropy"`
	ClusterDiversity    float64 `yaml:"cluster_diversity"`
}

// ESICutoffsConfig mirrors esi.Cutoffs in YAML form.
type ESICutoffsConfig struct {
	High     float64 `yaml:"high"`
	Moderate float64 `yaml:"moderate"`
}

// AuditConfig controls the persistent audit trail.
type AuditConfig struct {
	Dir                string `yaml:"dir"`
	RotationSize       int64  `yaml:"rotation_size"`
	MemoryEvents       int    `yaml:"memory_events"`
	DisablePersistence bool   `yaml:"disable_persistence"`
}

// ArchiveConfig selects where CPT export bundles go.
type ArchiveConfig struct {
	// Backend is one of "none", "fs", "s3", "postgres".
	Backend string `yaml:"backend"`

	// FS backend
	Dir string `yaml:"dir,omitempty"`

	// S3 backend
	Bucket string `yaml:"bucket,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`
	Region string `yaml:"region,omitempty"`

	// Postgres backend. The DSN may also come from KORINSIC_ARCHIVE_DSN.
	DSN string `yaml:"dsn,omitempty"`
}

// EventsConfig controls the lifecycle event publisher.
type EventsConfig struct {
	// ListenAddr is the mangos pub socket address, e.g.
	// "tcp://0.0.0.0:9451" or "inproc://korinsic-events". Empty disables
	// publishing.
	ListenAddr string `yaml:"listen_addr"`
}

// AttestationConfig configures approval attestation signing. The secret
// itself comes from the environment, never the file.
type AttestationConfig struct {
	// SecretEnv names the environment variable holding the HMAC secret.
	SecretEnv string `yaml:"secret_env"`
	Issuer    string `yaml:"issuer"`
}

// Default returns the configuration the engine runs with when no file is
// given.
func Default() *Config {
	return &Config{
		Logging:   LoggingConfig{Level: "info"},
		Inference: InferenceConfig{Workers: 0, TaskTimeout: 30 * time.Second},
		FanIn:     FanInConfig{Threshold: 4},
		Audit:     AuditConfig{Dir: "audit", MemoryEvents: 1024},
		Archive:   ArchiveConfig{Backend: "none"},
		Attestation: AttestationConfig{
			SecretEnv: "KORINSIC_ATTESTATION_SECRET",
			Issuer:    "korinsic-engine",
		},
	}
}

// Load reads a YAML config file over the defaults and validates the
// result.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AttestationSecret resolves the signing secret from the configured
// environment variable. Empty means attestation is disabled.
func (c *Config) AttestationSecret() []byte {
	if c.Attestation.SecretEnv == "" {
		return nil
	}
	if v := os.Getenv(c.Attestation.SecretEnv); v != "" {
		return []byte(v)
	}
	return nil
}

// ArchiveDSN resolves the Postgres archive DSN, preferring the
// environment over the file.
func (c *Config) ArchiveDSN() string {
	if v := os.Getenv("KORINSIC_ARCHIVE_DSN"); v != "" {
		return v
	}
	return c.Archive.DSN
}

// Validate checks the configuration for operator mistakes.
func (c *Config) Validate() error {
	cv := validation.NewConfigValidator("Config").
		OneOf("Logging.Level", c.Logging.Level, []string{"debug", "info", "warn", "error"}).
		NonNegative("Inference.Workers", c.Inference.Workers).
		MinDuration("Inference.TaskTimeout", c.Inference.TaskTimeout, time.Second).
		Positive("FanIn.Threshold", c.FanIn.Threshold).
		OneOf("Archive.Backend", c.Archive.Backend, []string{"none", "fs", "s3", "postgres"}).
		When(c.Archive.Backend == "fs", func(v *validation.ConfigValidator) {
			v.Required("Archive.Dir", c.Archive.Dir)
		}).
		When(c.Archive.Backend == "s3", func(v *validation.ConfigValidator) {
			v.Required("Archive.Bucket", c.Archive.Bucket)
		}).
		When(c.Archive.Backend == "postgres", func(v *validation.ConfigValidator) {
			v.Required("Archive.DSN", c.ArchiveDSN())
		}).
		When(!c.Audit.DisablePersistence, func(v *validation.ConfigValidator) {
			v.Required("Audit.Dir", c.Audit.Dir)
		}).
		Positive("Audit.MemoryEvents", c.Audit.MemoryEvents)

	if c.ESI.Weights != nil {
		w := c.ESI.Weights
		cv.Custom("ESI.Weights", func() error {
			sum := w.ActivationRatio + w.MeanConfidence + w.FallbackPenalty + w.ContributionEntropy + w.ClusterDiversity
			if sum < 0.999999 || sum > 1.000001 {
				return fmt.Errorf("weights sum to %.9f, want 1", sum)
			}
			return nil
		})
	}
	if c.ESI.Cutoffs != nil {
		cv.UnitInterval("ESI.Cutoffs.High", c.ESI.Cutoffs.High).
			UnitInterval("ESI.Cutoffs.Moderate", c.ESI.Cutoffs.Moderate).
			Custom("ESI.Cutoffs", func() error {
				if c.ESI.Cutoffs.High < c.ESI.Cutoffs.Moderate {
					return fmt.Errorf("high cutoff %.3f below moderate %.3f", c.ESI.Cutoffs.High, c.ESI.Cutoffs.Moderate)
				}
				return nil
			})
	}
	return cv.Validate()
}
