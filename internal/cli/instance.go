package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/setcode/internal/ir"
)

// InstantiateOptions holds flags for the instantiate command.
type InstantiateOptions struct {
	*RootOptions
	As   string
	Args string
}

// NewInstantiateCommand creates the instantiate command.
func NewInstantiateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InstantiateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "instantiate <image>",
		Short: "Create an instance running a code image",
		Long: `Create an instance running a registered code image.

The image is named by hash (hex or CID) or by name@version. The caller
given with --as owns the instance. --args is passed to the program's
initializer.

Examples:
  setcode instantiate --db ./setcode.db counter@1 --as alice
  setcode instantiate --db ./setcode.db counter@1 --as alice --args '{"count":5}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstantiate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "owner identity (required)")
	_ = cmd.MarkFlagRequired("as")
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "initializer arguments as JSON")

	return cmd
}

func runInstantiate(opts *InstantiateOptions, ref string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	args, err := ir.ParseObject([]byte(opts.Args))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --args JSON", err)
	}

	sess, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer sess.Close()

	img, err := sess.resolveImage(ctx, ref)
	if err != nil {
		return err
	}

	inst, err := sess.engine.Instantiate(ctx, img.Hash, ir.Caller{Identity: opts.As}, args)
	if err != nil {
		if outErr := f.Error("E_INSTANTIATE", err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "instantiate failed", err)
	}

	view := newInstanceView(inst, img)
	return f.Success(view, func(w io.Writer) {
		fmt.Fprintf(w, "✓ instance %s\n", view.ID)
		printInstance(w, view)
	})
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <instance>",
		Short: "Show an instance's code pointer and state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args[0], cmd)
		},
	}
}

func runInspect(opts *RootOptions, instanceID string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	sess, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer sess.Close()

	snap, err := sess.engine.Inspect(ctx, instanceID)
	if err != nil {
		return hostError(f, err)
	}

	view := newInstanceView(snap.Instance, snap.Image)
	return f.Success(view, func(w io.Writer) {
		fmt.Fprintf(w, "instance %s\n", view.ID)
		printInstance(w, view)
	})
}

func printInstance(w io.Writer, v InstanceView) {
	fmt.Fprintf(w, "  owner: %s\n", v.Owner)
	fmt.Fprintf(w, "  image: %s %s\n", v.Image, v.CodeHash)
	fmt.Fprintf(w, "  upgradeable: %t\n", v.Upgradeable)
	state, _ := v.State.MarshalJSON()
	fmt.Fprintf(w, "  state: %s\n", state)
	fmt.Fprintf(w, "  seq: %d\n", v.Seq)
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <instance>",
		Short: "List every call made on an instance",
		Long: `List every call journaled for an instance, in order, with its outcome.

Reverted calls are listed too: they changed nothing but were recorded.
Calls that replaced the instance's code show the old and new hash.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, args[0], cmd)
		},
	}
}

func runHistory(opts *RootOptions, instanceID string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	sess, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer sess.Close()

	history, err := sess.engine.History(ctx, instanceID)
	if err != nil {
		return hostError(f, err)
	}
	views := make([]CallView, len(history))
	for i, res := range history {
		views[i] = newCallView(res)
	}

	return f.Success(views, func(w io.Writer) {
		if len(views) == 0 {
			fmt.Fprintf(w, "No calls on %s.\n", instanceID)
			return
		}
		for _, v := range views {
			printCall(w, v)
		}
	})
}

func printCall(w io.Writer, v CallView) {
	args, _ := v.Args.MarshalJSON()
	fmt.Fprintf(w, "[%d] %s %s by %s -> %s\n", v.Seq, v.Message, args, v.Caller, v.Outcome)
	if len(v.Result) > 0 {
		result, _ := v.Result.MarshalJSON()
		fmt.Fprintf(w, "     result: %s\n", result)
	}
	if v.Error != "" {
		fmt.Fprintf(w, "     error: %s\n", v.Error)
	}
	if v.Upgraded() {
		fmt.Fprintf(w, "     code: %s -> %s\n", v.CodeBefore.Short(), v.CodeAfter.Short())
	}
}
