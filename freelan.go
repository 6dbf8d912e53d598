package freelan

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/freelan-binding/ectx"
	"github.com/wippyai/freelan-binding/errors"
	"github.com/wippyai/freelan-binding/iosvc"
	"github.com/wippyai/freelan-binding/memtrace"
	"github.com/wippyai/freelan-binding/native"
	"github.com/wippyai/freelan-binding/value"
)

// Binding ties together the native library and the Go-side wrappers over it.
type Binding struct {
	lib      *native.Library
	ledger   *memtrace.Ledger
	contexts *ectx.Registry
	values   *value.Registry
	cfg      Config
}

// Open loads the native library described by cfg. A nil cfg uses
// DefaultConfig.
//
// When memory tracking is enabled the ledger is installed before anything
// is allocated, so every native block is accounted for.
func Open(ctx context.Context, cfg *Config) (*Binding, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "invalid config")
	}

	lib, err := native.Open(ctx, cfg.nativeConfig())
	if err != nil {
		return nil, fmt.Errorf("open native library: %w", err)
	}

	b := &Binding{lib: lib, cfg: *cfg}

	if cfg.Memory.Track {
		var opts []memtrace.Option
		if cfg.Memory.Stacks {
			opts = append(opts, memtrace.WithStacks(cfg.Memory.StackDepth))
		}
		b.ledger = memtrace.New(opts...)
		if err := b.ledger.Install(lib); err != nil {
			return nil, multierr.Append(err, lib.Close(ctx))
		}
	}

	if cfg.Log.Bridge {
		lib.SetLogFunction(newLogBridge(Logger().Named("native")), lib.LogLevel())
	}

	b.contexts = ectx.NewRegistry(lib)
	b.values, err = value.NewRegistry(lib, b.contexts)
	if err != nil {
		return nil, multierr.Append(err, b.Close(ctx))
	}

	Logger().Debug("binding opened",
		zap.Bool("track", b.ledger != nil),
		zap.Stringer("log_level", lib.LogLevel()),
		zap.Int("types", len(b.values.TypeNames())))
	return b, nil
}

// Close releases the per-thread error contexts, removes the ledger and
// closes the native library.
func (b *Binding) Close(ctx context.Context) error {
	var err error
	if b.contexts != nil {
		b.contexts.ClearAll()
	}
	if b.ledger != nil && b.ledger.Installed() {
		err = multierr.Append(err, b.ledger.Uninstall())
	}
	b.lib.SetLogFunction(nil, b.lib.LogLevel())
	return multierr.Append(err, b.lib.Close(ctx))
}

// Config returns the configuration the binding was opened with.
func (b *Binding) Config() Config {
	return b.cfg
}

// Library returns the native library.
func (b *Binding) Library() *native.Library {
	return b.lib
}

// Contexts returns the per-thread error context registry.
func (b *Binding) Contexts() *ectx.Registry {
	return b.contexts
}

// Values returns the value type registry.
func (b *Binding) Values() *value.Registry {
	return b.values
}

// Ledger returns the memory ledger, or nil when tracking is disabled.
func (b *Binding) Ledger() *memtrace.Ledger {
	return b.ledger
}

// NewIOService creates a task poster on a fresh native I/O service.
func (b *Binding) NewIOService() (*iosvc.Service, error) {
	return iosvc.New(b.lib, b.contexts)
}

// Quiesce releases every cached per-thread error context so that a ledger
// snapshot only shows blocks owned by the caller.
func (b *Binding) Quiesce() {
	b.contexts.ClearAll()
}
