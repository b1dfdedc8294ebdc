package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/fergusinlondon/actorstage/rtconfig"
	"github.com/fergusinlondon/actorstage/stage"
	"github.com/fergusinlondon/actorstage/supervision"
)

// overdraftSupervisorName is registered on every Stage this CLI builds: an
// overdraft restarts the account, but a fourth overdraft inside a minute
// escalates instead, since a retail account that keeps overdrawing is a
// problem for a human, not a reason to keep restarting silently.
const overdraftSupervisorName = "bank.overdraft"

func buildStage() (*stage.Stage, error) {
	loader := rtconfig.NewLoader()

	var cfg *rtconfig.Config
	var err error
	if configPath != "" {
		cfg, err = loader.LoadFromFile(configPath)
	} else {
		cfg, err = loader.AutoLoad()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	s, err := stage.New(stage.WithConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("build stage: %w", err)
	}

	s.RegisterSupervisor(overdraftSupervisorName, supervision.NewStrategy(
		3, time.Minute, supervision.One,
		func(cause error) supervision.Directive {
			if errors.Is(cause, ErrInsufficientFunds) {
				return supervision.Restart
			}
			return supervision.Stop
		},
	))

	return s, nil
}
