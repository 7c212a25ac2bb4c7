package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/setcode/internal/engine"
	"github.com/roach88/setcode/internal/ir"
)

// RunRequest is one line of input to the run command.
type RunRequest struct {
	Instance    string    `json:"instance"`
	Message     string    `json:"message"`
	Args        ir.Object `json:"args"`
	As          string    `json:"as"`
	Permissions []string  `json:"permissions"`
}

// RunResponse is one line of output from the run command. Exactly one of
// Call and Error is set.
type RunResponse struct {
	Call  *CallView `json:"call,omitempty"`
	Error *CLIError `json:"error,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve calls read from stdin",
		Long: `Start the engine and serve calls read from stdin as JSON lines.

Each input line is a request:
  {"instance":"inst-1","message":"increment","as":"alice"}
  {"instance":"inst-1","message":"upgrade","args":{"code_hash":"0x..."},"as":"alice"}

Calls run one at a time in arrival order. For each request one JSON line
is written to stdout, in the same order, holding either the call's receipt
or a host error. Output is JSON regardless of --format.

The engine stops at end of input or on SIGINT/SIGTERM. Requests still
queued when it stops are answered with ENGINE_STOPPED.

Example:
  setcode run --db ./setcode.db < calls.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}
	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	logger := opts.logger()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sess, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- sess.engine.Run(ctx) }()

	// Requests are submitted as soon as they are read; replies are written
	// in submission order.
	pending := make(chan (<-chan engine.Outcome), 64)
	readErr := make(chan error, 1)
	go func() {
		defer close(pending)
		readErr <- readRequests(ctx, cmd.InOrStdin(), sess.engine, pending)
	}()

	enc := json.NewEncoder(cmd.OutOrStdout())
	served := 0
	var inputErr error
serve:
	for {
		select {
		case reply, ok := <-pending:
			if !ok {
				inputErr = <-readErr
				break serve
			}
			if err := enc.Encode(newRunResponse(<-reply)); err != nil {
				cancel()
				return WrapExitError(ExitCommandError, "failed to write response", err)
			}
			served++
		case <-ctx.Done():
			// The reader may be blocked on stdin; leave it behind.
			break serve
		}
	}

	sess.engine.Stop()
	err = <-runErr
	logger.Info("engine stopped", "served", served)

	if inputErr != nil {
		return WrapExitError(ExitCommandError, "invalid request", inputErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	return nil
}

// readRequests decodes requests from r until EOF, submitting each to eng.
func readRequests(ctx context.Context, r io.Reader, eng *engine.Engine, pending chan<- (<-chan engine.Outcome)) error {
	dec := json.NewDecoder(r)
	for line := 1; ; line++ {
		var req RunRequest
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("request %d: %w", line, err)
		}
		if req.Instance == "" || req.Message == "" || req.As == "" {
			return fmt.Errorf("request %d: instance, message, and as are required", line)
		}

		reply := eng.Submit(ctx, engine.Request{
			InstanceID: req.Instance,
			Message:    req.Message,
			Args:       req.Args,
			Caller:     ir.Caller{Identity: req.As, Permissions: req.Permissions},
		})
		select {
		case pending <- reply:
		case <-ctx.Done():
			return nil
		}
	}
}

func newRunResponse(out engine.Outcome) RunResponse {
	if out.Result.Call.ID == "" {
		code, ok := engine.ErrorCodeOf(out.Err)
		if !ok {
			code = "E_INTERNAL"
		}
		msg := "unknown error"
		if out.Err != nil {
			msg = out.Err.Error()
		}
		return RunResponse{Error: &CLIError{Code: string(code), Message: msg}}
	}
	view := newCallView(out.Result)
	return RunResponse{Call: &view}
}
