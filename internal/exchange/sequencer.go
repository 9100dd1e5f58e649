package exchange

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"
)

var ErrStopped = errors.New("sequencer stopped")

type command struct {
	fn   func(x *Exchange) error
	done chan error
}

// Sequencer is the single writer of an Exchange: calls submitted from any
// goroutine run one at a time, in submission order, on its own goroutine.
type Sequencer struct {
	exchange *Exchange
	commands chan command
	t        tomb.Tomb
	log      zerolog.Logger
}

func NewSequencer(x *Exchange, log zerolog.Logger) *Sequencer {
	return &Sequencer{
		exchange: x,
		commands: make(chan command),
		log:      log.With().Str("component", "sequencer").Logger(),
	}
}

// Start runs the sequencer until ctx is done or Stop is called.
func (s *Sequencer) Start(ctx context.Context) {
	s.t.Go(func() error {
		s.log.Info().Msg("sequencer running")
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-s.t.Dying():
				return nil
			case cmd := <-s.commands:
				cmd.done <- s.run(cmd.fn)
			}
		}
	})
}

// run executes one call. A panic inside it is contained to the call: the
// ledger has already unwound it by the time it reaches here.
func (s *Sequencer) run(fn func(x *Exchange) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("call panicked")
			err = errors.Errorf("call panicked: %v", r)
		}
	}()
	return fn(s.exchange)
}

// Do submits fn and waits for its result. ctx only bounds the wait for the
// sequencer to take the call; once taken, the call's own result is
// returned.
func (s *Sequencer) Do(ctx context.Context, fn func(x *Exchange) error) error {
	cmd := command{fn: fn, done: make(chan error, 1)}
	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.t.Dead():
		return ErrStopped
	}
	return <-cmd.done
}

// Stop kills a started sequencer and waits for its goroutine to return.
func (s *Sequencer) Stop() error {
	s.t.Kill(nil)
	err := s.t.Wait()
	s.log.Info().Msg("sequencer stopped")
	return err
}
