package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/setcode/internal/engine"
	"github.com/roach88/setcode/internal/ir"
	"github.com/roach88/setcode/internal/upgrade"
)

// CallOptions holds flags for the call and upgrade commands.
type CallOptions struct {
	*RootOptions
	As          string
	Permissions []string
	Args        string
}

func (o *CallOptions) bindCallerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.As, "as", "", "caller identity (required)")
	_ = cmd.MarkFlagRequired("as")
	cmd.Flags().StringSliceVar(&o.Permissions, "perm", nil, "caller permissions (repeatable)")
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call <instance> <message>",
		Short: "Send a message to an instance",
		Long: `Send a message to an instance and print its receipt.

The call runs atomically: on success its state changes and any code
replacement commit together; on failure nothing changes and the receipt
records why. Either way the call is journaled.

Exit codes:
  0 - The call succeeded
  1 - The call reverted (see the receipt's outcome)
  2 - Command error (unknown instance, bad arguments, etc.)

Examples:
  setcode call --db ./setcode.db inst-1 increment --as alice
  setcode call --db ./setcode.db inst-1 add --as alice --args '{"by":3}'
  setcode call --db ./setcode.db inst-1 reset --as alice --perm admin`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			callArgs, err := ir.ParseObject([]byte(opts.Args))
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --args JSON", err)
			}
			return runCall(opts, args[0], args[1], callArgs, cmd)
		},
	}

	opts.bindCallerFlags(cmd)
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "message arguments as JSON")

	return cmd
}

// NewUpgradeCommand creates the upgrade command.
func NewUpgradeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "upgrade <instance> <image>",
		Short: "Replace the code an instance runs",
		Long: `Ask an instance to replace its code with another registered image.

This sends the instance's upgrade message with the target hash. The image
may be named by hash (hex or CID) or by name@version. Whether the caller
may upgrade is decided by the configured authorizer; whether the target
is acceptable is decided by the registry. Any refusal leaves the instance
unchanged. The new code takes effect from the next call.

Examples:
  setcode upgrade --db ./setcode.db inst-1 counter@2 --as alice
  setcode upgrade --db ./setcode.db inst-1 0x5f3c... --as ops --perm upgrade`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpgrade(opts, args[0], args[1], cmd)
		},
	}

	opts.bindCallerFlags(cmd)

	return cmd
}

func runUpgrade(opts *CallOptions, instanceID, ref string, cmd *cobra.Command) error {
	ctx := cmd.Context()

	sess, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer sess.Close()

	// A hash is passed through untouched so unknown hashes reach the
	// registry and fail there. Only name@version needs resolving.
	target := ref
	if _, err := ir.ParseCodeHash(ref); err != nil {
		img, err := sess.resolveImage(ctx, ref)
		if err != nil {
			return err
		}
		target = img.Hash.String()
	}
	return sendCall(opts, sess, instanceID, upgrade.Message, ir.Object{upgrade.Arg: ir.String(target)}, cmd)
}

func runCall(opts *CallOptions, instanceID, message string, args ir.Object, cmd *cobra.Command) error {
	sess, err := openSession(cmd.Context(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer sess.Close()

	return sendCall(opts, sess, instanceID, message, args, cmd)
}

func sendCall(opts *CallOptions, sess *session, instanceID, message string, args ir.Object, cmd *cobra.Command) error {
	res, err := sess.engine.Call(cmd.Context(), engine.Request{
		InstanceID: instanceID,
		Message:    message,
		Args:       args,
		Caller:     ir.Caller{Identity: opts.As, Permissions: opts.Permissions},
	})
	return reportCall(opts.formatter(cmd), res, err)
}

// reportCall prints a call's receipt. A reverted call exits with
// ExitFailure; a call that never reached a program exits with
// ExitCommandError.
func reportCall(f *OutputFormatter, res engine.Result, err error) error {
	if res.Call.ID == "" {
		return hostError(f, err)
	}

	view := newCallView(res)
	if res.Receipt.Succeeded() {
		return f.Success(view, func(w io.Writer) { printCall(w, view) })
	}

	if outErr := f.Failure(view, view.Outcome, view.Error, func(w io.Writer) { printCall(w, view) }); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitFailure, fmt.Sprintf("%s.%s reverted with %s", view.InstanceID, view.Message, view.Outcome), err)
}
