package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/bft-labs/devlink/internal/ports"
	"github.com/bft-labs/devlink/pkg/log"
)

// DefaultResetDelay is the delay between a fatal error and the reset.
const DefaultResetDelay = 5 * time.Second

// ErrHalted is returned by the dispatcher after a fatal error when halting
// is configured instead of resetting.
var ErrHalted = errors.New("devlink: halted after fatal error")

// FatalHandler routes fatal errors to a controlled reset.
type FatalHandler struct {
	resetter ports.Resetter
	delay    time.Duration
	halt     bool
	handling atomic.Bool
	logger   log.Logger
}

// NewFatalHandler creates a handler that resets through resetter after delay,
// or halts when halt is set.
func NewFatalHandler(resetter ports.Resetter, delay time.Duration, halt bool, logger log.Logger) *FatalHandler {
	return &FatalHandler{
		resetter: resetter,
		delay:    delay,
		halt:     halt,
		logger:   log.With(logger, log.String("component", "fatal")),
	}
}

// Handle logs err once and resets. A fatal error raised while another is
// being handled is returned without logging again.
func (f *FatalHandler) Handle(ctx context.Context, err error) error {
	if !f.handling.CompareAndSwap(false, true) {
		return err
	}
	defer f.handling.Store(false)

	if f.halt {
		f.logger.Error("fatal error, halting", log.Err(err))
		<-ctx.Done()
		return errors.Join(ErrHalted, err)
	}

	f.logger.Error("fatal error, resetting", log.Err(err), log.Duration("delay", f.delay))
	t := time.NewTimer(f.delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return err
	}
	f.resetter.Reset(ports.ResetNormal)
	return err
}
