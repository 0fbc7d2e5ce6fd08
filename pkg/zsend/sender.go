package zsend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"zcommit/pkg/zcommit"
)

// DefaultTimeout bounds a single zsend invocation.
const DefaultTimeout = 30 * time.Second

// Config describes how to reach the delivery executable.
type Config struct {
	Path    string
	Timeout time.Duration
}

// Sender delivers notifications by running zsend once per notification.
type Sender struct {
	path    string
	timeout time.Duration
	logger  zerolog.Logger
	// observe is called with the duration of every invocation.
	observe func(time.Duration, error)
}

// Option configures a Sender.
type Option func(*Sender)

// WithObserver registers a callback run after each invocation.
func WithObserver(fn func(time.Duration, error)) Option {
	return func(s *Sender) {
		s.observe = fn
	}
}

// New returns a Sender for cfg. A zero timeout means DefaultTimeout.
func New(cfg Config, logger zerolog.Logger, opts ...Option) *Sender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	s := &Sender{
		path:    cfg.Path,
		timeout: timeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Args is the zsend command line for n, excluding the executable. The flag
// layout is consumed by the zsend tool and must not change.
func Args(n zcommit.Notification) []string {
	return []string{
		"-S", n.Sender,
		"-c", n.Class,
		"-i", n.Instance,
		"-s", n.Signature,
		"-d",
		"-m", n.Body,
	}
}

// Send runs zsend and waits for it. A non-zero exit, a failure to start or a
// timeout yields a *DispatchError. Send never retries.
func (s *Sender) Send(ctx context.Context, n zcommit.Notification) error {
	s.logger.Info().
		Str("sender", n.Sender).
		Str("class", n.Class).
		Str("instance", n.Instance).
		Str("zsig", n.Signature).
		Str("msg", n.Body).
		Msg("about to send zephyr")

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.path, Args(n)...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	if err != nil {
		err = newDispatchError(ctx, s.path, err, stderr.String())
	}
	if s.observe != nil {
		s.observe(elapsed, err)
	}
	if err != nil {
		return err
	}
	s.logger.Debug().Dur("elapsed", elapsed).Str("instance", n.Instance).Msg("zephyr sent")
	return nil
}

// DispatchError describes a zsend invocation that did not succeed.
type DispatchError struct {
	Path     string
	ExitCode int
	Stderr   string
	Err      error
}

func newDispatchError(ctx context.Context, path string, err error, stderr string) *DispatchError {
	out := &DispatchError{Path: path, ExitCode: -1, Stderr: strings.TrimSpace(stderr), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(err, ctxErr) {
			out.Err = ctxErr
		} else {
			out.Err = fmt.Errorf("%w: %w", ctxErr, err)
		}
	}
	return out
}

func (e *DispatchError) Error() string {
	msg := fmt.Sprintf("%s: %s", zcommit.ErrDispatchFailure, e.Path)
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(" exited with status %d", e.ExitCode)
	} else {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *DispatchError) Unwrap() []error {
	return []error{zcommit.ErrDispatchFailure, e.Err}
}

// LogSender logs notifications instead of delivering them.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) Send(ctx context.Context, n zcommit.Notification) error {
	s.Logger.Info().
		Str("sender", n.Sender).
		Str("class", n.Class).
		Str("instance", n.Instance).
		Str("zsig", n.Signature).
		Str("msg", n.Body).
		Msg("dry run, zephyr not sent")
	return nil
}
