// Package service stops, starts, and observes the systemd units that run
// managed components. It is the only package that talks to the init layer.
package service

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrStopTimeout means a unit stayed active through the graceful stop
	// budget and the forced kill that followed it.
	ErrStopTimeout = errors.New("service did not stop within budget")

	// ErrStartExhausted means a unit never reached the active state within
	// the retry budget.
	ErrStartExhausted = errors.New("service did not start within retry budget")
)

// runFunc executes systemctl with the given arguments and returns its
// combined output. Injected in tests so no test ever execs systemctl.
type runFunc func(args ...string) (string, error)

// Controller manages systemd units with bounded waits. Stop and start are
// privileged operations; the zero budgets below are tuned for a small
// single-board host where unit state settles in seconds.
type Controller struct {
	run runFunc

	// PollInterval is the wait between is-active checks.
	PollInterval time.Duration
	// StopTimeout bounds the graceful stop wait before escalation.
	StopTimeout time.Duration
	// KillWait bounds the wait after a forced kill.
	KillWait time.Duration
	// StartAttempts is the total number of start attempts.
	StartAttempts uint64
	// StartInterval is the base of the exponential backoff between
	// start attempts.
	StartInterval time.Duration
}

// New creates a Controller that shells out to systemctl.
func New() *Controller {
	c := newController()
	c.run = func(args ...string) (string, error) {
		out, err := exec.Command("systemctl", args...).CombinedOutput()
		return string(out), err
	}
	return c
}

func newController() *Controller {
	return &Controller{
		PollInterval:  500 * time.Millisecond,
		StopTimeout:   30 * time.Second,
		KillWait:      5 * time.Second,
		StartAttempts: 5,
		StartInterval: time.Second,
	}
}

// IsRunning reports whether the unit is active. systemctl exits non-zero
// for inactive units, so the exit code alone does not distinguish "stopped"
// from "systemctl broke"; the printed state does.
func (c *Controller) IsRunning(unit string) (bool, error) {
	out, err := c.run("is-active", unit)
	state := strings.TrimSpace(out)
	if state != "" {
		return state == "active", nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query unit %s: %w", unit, err)
	}
	return false, nil
}

// Stop blocks until the unit is verifiably not running. A graceful stop is
// given StopTimeout to complete, then the unit is killed and given KillWait.
// A unit that survives both is a hard failure; replacing files under a
// still-running process is not allowed.
func (c *Controller) Stop(unit string) error {
	running, err := c.IsRunning(unit)
	if err != nil {
		return err
	}
	if !running {
		return nil
	}

	if out, err := c.run("stop", unit); err != nil {
		return fmt.Errorf("failed to stop unit %s: %w (output: %s)", unit, err, strings.TrimSpace(out))
	}
	if c.waitStopped(unit, c.StopTimeout) {
		return nil
	}

	// Escalate. The kill itself may fail on an already-dead unit; the
	// final poll decides.
	c.run("kill", "-s", "SIGKILL", unit)
	if c.waitStopped(unit, c.KillWait) {
		return nil
	}
	return fmt.Errorf("%w: unit %s", ErrStopTimeout, unit)
}

func (c *Controller) waitStopped(unit string, budget time.Duration) bool {
	deadline := time.Now().Add(budget)
	for {
		running, err := c.IsRunning(unit)
		if err == nil && !running {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(c.PollInterval)
	}
}

// Start starts the unit and confirms it is active, retrying with
// exponential backoff up to StartAttempts total attempts. Exhausting the
// budget returns ErrStartExhausted.
func (c *Controller) Start(unit string) error {
	attempt := func() error {
		if out, err := c.run("start", unit); err != nil {
			return fmt.Errorf("failed to start unit %s: %w (output: %s)", unit, err, strings.TrimSpace(out))
		}
		time.Sleep(c.PollInterval)
		running, err := c.IsRunning(unit)
		if err != nil {
			return err
		}
		if !running {
			return fmt.Errorf("unit %s not active after start", unit)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.StartInterval
	policy.MaxElapsedTime = 0

	err := backoff.Retry(attempt, backoff.WithMaxRetries(policy, c.StartAttempts-1))
	if err != nil {
		return fmt.Errorf("%w: unit %s after %d attempts: %v", ErrStartExhausted, unit, c.StartAttempts, err)
	}
	return nil
}
