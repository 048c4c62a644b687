package schedoscope

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// TypeConfig holds the per-transformation-type configuration surface:
// how many Workers to run for the type, how its backoff controller is
// parameterized, and deploy settings (Libs, Unpack, Location). The
// Dispatcher does not read the deploy settings: a broadcast DeployAll
// stages the Libs, Unpack and Location carried by the DeployCommand.
type TypeConfig struct {
	// Concurrency is the number of Workers in the type's Pool.
	Concurrency int
	// BackoffSlotTime is the base unit multiplied into the exponential
	// wait computed by backoff.State.Next.
	BackoffSlotTime time.Duration
	// BackoffMinimumDelay is the floor added to every computed wait.
	BackoffMinimumDelay time.Duration
	// Libs is a list of library URIs for this type. It is loaded from
	// configuration but not passed to DeployAll.
	Libs []string
	// Unpack indicates whether staged archives should be unpacked.
	Unpack bool
	// Location is the destination URI within the driver's working area.
	Location string
}

// Config configures the Dispatcher's bootstrap: which transformation
// types it knows about and how each is sized and paced.
type Config struct {
	// Types maps a transformation type name to its configuration. Every
	// key must have a matching driver.Factory registered on the
	// Dispatcher's driver.Registry (via WithDriverRegistry) — an
	// unregistered type is a fatal configuration error at New.
	Types map[string]TypeConfig
	// MailboxCapacity bounds every Worker's pending-command queue depth.
	MailboxCapacity int
	// ShutdownTimeout bounds how long Stop waits for in-flight
	// broadcasts and pool shutdown to complete.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with the filesystem transformation
// type enabled at concurrency 1 — the type that is always available
// per the Driver contract.
func DefaultConfig() Config {
	return Config{
		Types: map[string]TypeConfig{
			"filesystem": {
				Concurrency:         1,
				BackoffSlotTime:     100 * time.Millisecond,
				BackoffMinimumDelay: 0,
			},
		},
		MailboxCapacity: 64,
		ShutdownTimeout: 30 * time.Second,
	}
}

// yamlConfig mirrors Config but with string durations, since
// gopkg.in/yaml.v3 has no built-in time.Duration codec.
type yamlConfig struct {
	Types           map[string]yamlTypeConfig `yaml:"types"`
	MailboxCapacity int                        `yaml:"mailbox_capacity"`
	ShutdownTimeout string                     `yaml:"shutdown_timeout"`
}

type yamlTypeConfig struct {
	Concurrency         int      `yaml:"concurrency"`
	BackoffSlotTime     string   `yaml:"backoff_slot_time"`
	BackoffMinimumDelay string   `yaml:"backoff_minimum_delay"`
	Libs                []string `yaml:"libs"`
	Unpack              bool     `yaml:"unpack"`
	Location            string   `yaml:"location"`
}

// LoadConfig reads a YAML configuration document from r. Duration
// fields are parsed with time.ParseDuration (e.g. "500ms", "2s").
func LoadConfig(r io.Reader) (Config, error) {
	var raw yamlConfig
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return Config{}, fmt.Errorf("schedoscope: decode config: %w", err)
	}

	cfg := Config{
		Types:           make(map[string]TypeConfig, len(raw.Types)),
		MailboxCapacity: raw.MailboxCapacity,
	}
	if cfg.MailboxCapacity == 0 {
		cfg.MailboxCapacity = 64
	}

	if raw.ShutdownTimeout != "" {
		d, err := time.ParseDuration(raw.ShutdownTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("schedoscope: parse shutdown_timeout: %w", err)
		}
		cfg.ShutdownTimeout = d
	} else {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	for typeName, rawType := range raw.Types {
		tc := TypeConfig{
			Concurrency: rawType.Concurrency,
			Libs:        rawType.Libs,
			Unpack:      rawType.Unpack,
			Location:    rawType.Location,
		}
		// A concurrency of 0 means the field was omitted from the YAML
		// document; default it to 1. A negative value is left as-is and
		// rejected as a fatal configuration fault at Dispatcher bootstrap
		// (see ErrInvalidConcurrency), not silently clamped here.
		if tc.Concurrency == 0 {
			tc.Concurrency = 1
		}
		if rawType.BackoffSlotTime != "" {
			d, err := time.ParseDuration(rawType.BackoffSlotTime)
			if err != nil {
				return Config{}, fmt.Errorf("schedoscope: parse backoff_slot_time for %q: %w", typeName, err)
			}
			tc.BackoffSlotTime = d
		}
		if rawType.BackoffMinimumDelay != "" {
			d, err := time.ParseDuration(rawType.BackoffMinimumDelay)
			if err != nil {
				return Config{}, fmt.Errorf("schedoscope: parse backoff_minimum_delay for %q: %w", typeName, err)
			}
			tc.BackoffMinimumDelay = d
		}
		cfg.Types[typeName] = tc
	}
	return cfg, nil
}
