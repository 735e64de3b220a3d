package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/systmms/credkeeper/internal/audit"
	"github.com/systmms/credkeeper/internal/breach"
	"github.com/systmms/credkeeper/internal/config"
	"github.com/systmms/credkeeper/internal/logging"
	"github.com/systmms/credkeeper/internal/monitor"
	"github.com/systmms/credkeeper/internal/policy"
	"github.com/systmms/credkeeper/internal/rotation"
	"github.com/systmms/credkeeper/internal/secondfactor"
	"github.com/systmms/credkeeper/internal/store"
)

// runtime bundles the wired components commands work against.
type runtime struct {
	cfg      *config.Config
	policies *policy.Store
	monitor  *monitor.Monitor
	audit    *audit.Logger
	engine   *rotation.Engine
}

// newRuntime loads the configuration and wires the engine. Commands that
// only read state still go through here so every invocation sees the same
// defaults and validation.
func newRuntime(cfg *config.Config) (*runtime, error) {
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	def := cfg.Definition

	policies, err := policy.NewStore(def.DataDir, def.Policies)
	if err != nil {
		return nil, err
	}

	auditLog, err := audit.New(def.AuditDir(), cfg.Logger)
	if err != nil {
		return nil, err
	}

	backend, err := newBackend(def, cfg.Logger)
	if err != nil {
		return nil, err
	}

	var checker rotation.BreachChecker
	if def.Breach.Disabled {
		checker = disabledBreach{}
	} else {
		endpoint := def.Breach.Endpoint
		if endpoint == "" {
			endpoint = breach.DefaultEndpoint
		}
		checker = breach.New(endpoint, def.Breach.Timeout(), cfg.Logger)
	}

	engine := rotation.New(rotation.Config{
		Policies: policies,
		Backend:  backend,
		Breach:   checker,
		Second: secondfactor.Prompt{
			In:             os.Stdin,
			Out:            os.Stderr,
			NonInteractive: cfg.NonInteractive,
		},
		Audit:  auditLog,
		Logger: cfg.Logger,
	})

	return &runtime{
		cfg:      cfg,
		policies: policies,
		monitor:  monitor.New(policies),
		audit:    auditLog,
		engine:   engine,
	}, nil
}

func newBackend(def *config.Definition, logger *logging.Logger) (store.Store, error) {
	switch def.Store.Backend {
	case "envfile":
		return store.NewEnvFile(def.Store.Path, logger), nil
	case "keyring":
		return store.NewKeyring(def.Store.Service), nil
	case "redis":
		return store.NewRedis(def.Store.URL, def.Store.Prefix)
	}
	return nil, fmt.Errorf("unknown storage backend '%s'", def.Store.Backend)
}

// disabledBreach satisfies the breach checker when lookups are turned off
// in the configuration. Every candidate reads as unchecked.
type disabledBreach struct{}

func (disabledBreach) Check(context.Context, string) breach.Result {
	return breach.Result{}
}
