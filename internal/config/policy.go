package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Reclassify modes.
const (
	ReclassifyStrict  = "strict"
	ReclassifyAutoAll = "auto-all"
)

// Duration is a time.Duration that reads "5s"-style strings from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type RetryPolicy struct {
	MaxAttempts      int      `yaml:"max_attempts"`
	InitialWait      Duration `yaml:"initial_wait"`
	MaxWait          Duration `yaml:"max_wait"`
	QuotaInitialWait Duration `yaml:"quota_initial_wait"`
}

type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// SyncPolicy tunes reconciliation runs.
type SyncPolicy struct {
	Concurrency          int         `yaml:"concurrency"`
	MaxRecordsPerRun     int         `yaml:"max_records_per_run"`
	RunTimeout           Duration    `yaml:"run_timeout"`
	CallTimeout          Duration    `yaml:"call_timeout"`
	Retry                RetryPolicy `yaml:"retry"`
	RateLimit            RateLimit   `yaml:"rate_limit"`
	PageSize             int         `yaml:"page_size"`
	DanglingGrace        Duration    `yaml:"dangling_grace"`
	MaxErrorMessages     int         `yaml:"max_error_messages"`
	DefaultListID        string      `yaml:"default_list_id"`
	ReclassifyMode       string      `yaml:"reclassify_mode"`
	RenderSubtaskSummary bool        `yaml:"render_subtask_summary"`
	PrefixProjectInTitle bool        `yaml:"prefix_project_in_title"`
}

// DefaultSyncPolicy returns the policy used when no file is present.
func DefaultSyncPolicy() SyncPolicy {
	return SyncPolicy{
		Concurrency:      4,
		MaxRecordsPerRun: 0,
		RunTimeout:       Duration(10 * time.Minute),
		CallTimeout:      Duration(20 * time.Second),
		Retry: RetryPolicy{
			MaxAttempts:      4,
			InitialWait:      Duration(500 * time.Millisecond),
			MaxWait:          Duration(10 * time.Second),
			QuotaInitialWait: Duration(5 * time.Second),
		},
		RateLimit: RateLimit{
			RequestsPerSecond: 5,
			Burst:             5,
		},
		PageSize:         100,
		DanglingGrace:    Duration(2 * time.Minute),
		MaxErrorMessages: 5,
		ReclassifyMode:   ReclassifyStrict,
	}
}

// LoadSyncPolicy reads path over the defaults. A missing file yields the defaults.
func LoadSyncPolicy(path string) (SyncPolicy, error) {
	policy := DefaultSyncPolicy()
	if path == "" {
		return policy, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return policy, nil
		}
		return policy, fmt.Errorf("failed to read sync policy: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &policy); err != nil {
		return policy, fmt.Errorf("failed to parse sync policy: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return policy, err
	}
	return policy, nil
}

// Validate rejects values no run could honor.
func (p SyncPolicy) Validate() error {
	switch {
	case p.Concurrency < 1:
		return fmt.Errorf("concurrency must be at least 1, got %d", p.Concurrency)
	case p.MaxRecordsPerRun < 0:
		return fmt.Errorf("max_records_per_run must not be negative, got %d", p.MaxRecordsPerRun)
	case p.Retry.MaxAttempts < 1:
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", p.Retry.MaxAttempts)
	case p.PageSize < 1 || p.PageSize > 100:
		return fmt.Errorf("page_size must be within 1..100, got %d", p.PageSize)
	case p.RateLimit.RequestsPerSecond < 0:
		return fmt.Errorf("rate_limit.requests_per_second must not be negative")
	case p.MaxErrorMessages < 1:
		return fmt.Errorf("max_error_messages must be at least 1, got %d", p.MaxErrorMessages)
	case p.ReclassifyMode != ReclassifyStrict && p.ReclassifyMode != ReclassifyAutoAll:
		return fmt.Errorf("reclassify_mode must be %q or %q, got %q", ReclassifyStrict, ReclassifyAutoAll, p.ReclassifyMode)
	}
	return nil
}
