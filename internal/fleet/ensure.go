package fleet

import (
	"context"
	"fmt"
	"time"
)

// Ensure defaults applied when EnsureOptions fields are unset.
const (
	defaultEnsureRetries   = 1
	defaultEnsureTransient = 5
)

// EnsureOptions tunes EnsureRunning. Zero values select defaults derived
// from the orchestrator config.
type EnsureOptions struct {
	MaxRetries                    int
	StartTimeout                  time.Duration
	PollInterval                  time.Duration
	MaxConsecutiveTransientErrors int
}

func (o *Orchestrator) ensureDefaults(opts EnsureOptions) EnsureOptions {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultEnsureRetries
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = o.cfg.StartTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = o.cfg.PollInterval
	}
	if opts.MaxConsecutiveTransientErrors <= 0 {
		opts.MaxConsecutiveTransientErrors = defaultEnsureTransient
	}
	return opts
}

// EnsureRunning is the composite start-and-wait operation. Already-running
// services return immediately. Fatal errors (unknown id, 401/403, other
// 4xx, error state) abort at once; transient errors are retried until the
// consecutive budget is exhausted, then fail with an aggregated message
// carrying elapsed time and the last status observed. A concurrent Stop
// for the same id aborts the wait.
func (o *Orchestrator) EnsureRunning(ctx context.Context, id string, opts EnsureOptions) error {
	svc, err := o.getService(id)
	if err != nil {
		return err
	}
	opts = o.ensureDefaults(opts)

	if o.statusOf(svc) == StatusRunning {
		return nil
	}

	began := time.Now()
	transient := 0
	lastStatus := o.statusOf(svc)

	for attempt := 0; ; attempt++ {
		started := false
		if _, err := o.Start(ctx, id); err != nil {
			err = classifyErr("start "+id, err)
			if isFatal(err) || IsServiceBusy(err) {
				return err
			}
			transient++
			if transient > opts.MaxConsecutiveTransientErrors {
				return ErrTransient("ensure "+id, fmt.Errorf(
					"%d consecutive transient errors after %s (last status %s): %w",
					transient, elapsed(began), lastStatus, err))
			}
		} else {
			transient = 0
			started = true
		}

		deadline := time.Now().Add(opts.StartTimeout)
		for started && time.Now().Before(deadline) {
			st := o.statusOf(svc)
			lastStatus = st
			switch st {
			case StatusRunning:
				return nil
			case StatusError:
				return errorStateError{id: id, msg: o.errorMessageOf(svc)}
			case StatusStopping, StatusStopped:
				// An explicit stop arrived mid-wait: observe it and
				// abort rather than fighting the caller.
				return ErrTransient("ensure "+id, fmt.Errorf(
					"aborted after %s: stop observed while waiting (last status %s)",
					elapsed(began), st))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.PollInterval):
			}
		}

		if attempt >= opts.MaxRetries {
			return ErrTransient("ensure "+id, fmt.Errorf(
				"deadline exceeded after %s (attempts %d, last status %s)",
				elapsed(began), attempt+1, lastStatus))
		}
		// Failed attempt: back off one poll interval before retrying.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.PollInterval):
		}
	}
}

// WaitForStatus polls at a fixed interval until the expected status (or
// error) is observed, or the hard deadline passes. It never busy-loops.
func (o *Orchestrator) WaitForStatus(ctx context.Context, id string, expected Status, timeout, poll time.Duration) error {
	svc, err := o.getService(id)
	if err != nil {
		return err
	}
	if poll <= 0 {
		poll = o.cfg.PollInterval
	}
	deadline := time.Now().Add(timeout)
	for {
		st := o.statusOf(svc)
		if st == expected {
			return nil
		}
		if st == StatusError && expected != StatusError {
			return errorStateError{id: id, msg: o.errorMessageOf(svc)}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for %s to reach %s after %s (last status %s)",
				id, expected, timeout, st)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

func (o *Orchestrator) statusOf(svc *service) Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return svc.status
}

func elapsed(since time.Time) time.Duration {
	return time.Since(since).Round(time.Millisecond)
}
