package seeder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type Config struct {
	Schema          string
	Table           string
	Days            int
	EventsPerDay    int
	BatchSize       int
	UserCardinality int
	Seed            int64
	CreateTable     bool
	Truncate        bool
}

func DefaultConfig() Config {
	return Config{
		Schema:          "atomic",
		Table:           "events",
		Days:            30,
		EventsPerDay:    200,
		BatchSize:       500,
		UserCardinality: 200,
		Seed:            time.Now().UTC().UnixNano(),
		CreateTable:     true,
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	steps := []func() error{
		func() error { return applyString(lookup, "DATAAGENT_DEMO_SCHEMA", &cfg.Schema) },
		func() error { return applyString(lookup, "DATAAGENT_DEMO_TABLE", &cfg.Table) },
		func() error { return applyInt(lookup, "DATAAGENT_DEMO_DAYS", &cfg.Days) },
		func() error { return applyInt(lookup, "DATAAGENT_DEMO_EVENTS_PER_DAY", &cfg.EventsPerDay) },
		func() error { return applyInt(lookup, "DATAAGENT_DEMO_BATCH_SIZE", &cfg.BatchSize) },
		func() error { return applyInt(lookup, "DATAAGENT_DEMO_USER_CARDINALITY", &cfg.UserCardinality) },
		func() error { return applyInt64(lookup, "DATAAGENT_DEMO_SEED", &cfg.Seed) },
		func() error { return applyBool(lookup, "DATAAGENT_DEMO_CREATE_TABLE", &cfg.CreateTable) },
		func() error { return applyBool(lookup, "DATAAGENT_DEMO_TRUNCATE", &cfg.Truncate) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !identifierPattern.MatchString(c.Schema) {
		return fmt.Errorf("DATAAGENT_DEMO_SCHEMA must be a lowercase identifier, got %q", c.Schema)
	}
	if !identifierPattern.MatchString(c.Table) {
		return fmt.Errorf("DATAAGENT_DEMO_TABLE must be a lowercase identifier, got %q", c.Table)
	}
	if c.Days <= 0 {
		return fmt.Errorf("DATAAGENT_DEMO_DAYS must be > 0")
	}
	if c.EventsPerDay <= 0 {
		return fmt.Errorf("DATAAGENT_DEMO_EVENTS_PER_DAY must be > 0")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("DATAAGENT_DEMO_BATCH_SIZE must be > 0")
	}
	if c.UserCardinality <= 0 {
		return fmt.Errorf("DATAAGENT_DEMO_USER_CARDINALITY must be > 0")
	}
	return nil
}

func (c Config) qualifiedTable() string {
	return c.Schema + "." + c.Table
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
