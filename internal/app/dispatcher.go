package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/bft-labs/devlink/internal/domain"
	"github.com/bft-labs/devlink/pkg/log"
)

// Dispatcher repeatedly runs the state machine. It owns no state itself.
type Dispatcher struct {
	machine *StateMachine
	fatal   *FatalHandler
	logger  log.Logger
}

// NewDispatcher creates a dispatcher for machine.
func NewDispatcher(machine *StateMachine, fatal *FatalHandler, logger log.Logger) *Dispatcher {
	return &Dispatcher{
		machine: machine,
		fatal:   fatal,
		logger:  log.With(logger, log.String("component", "dispatcher")),
	}
}

// Run drives the state machine until ctx is cancelled or a fatal error has
// been handled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started", log.Stringer("state", d.machine.State()))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := d.step(ctx)
		if err == nil {
			continue
		}

		var fe *FatalError
		if errors.As(err, &fe) {
			return d.fatal.Handle(ctx, err)
		}
		return err
	}
}

func (d *Dispatcher) step(ctx context.Context) (next domain.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &FatalError{State: d.machine.State(), Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	return d.machine.Step(ctx)
}
