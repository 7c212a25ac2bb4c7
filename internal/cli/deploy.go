package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy <image.cue>...",
		Short: "Register code images",
		Long: `Compile and register one or more code images.

Each image is named by the SHA2-256 hash of its bytes. Deploying the same
bytes twice returns the image registered the first time. An image is only
accepted if a bundled program implements its name and version.

Examples:
  setcode deploy --db ./setcode.db counter/v1.cue counter/v2.cue
  setcode deploy --db ./setcode.db counter/v2.cue --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runDeploy(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	sess, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer sess.Close()

	views := make([]ImageView, 0, len(paths))
	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read image", err)
		}
		f.VerboseLog("deploying %s (%d bytes)", path, len(src))

		img, err := sess.engine.Deploy(ctx, filepath.Base(path), src)
		if err != nil {
			if outErr := f.Error("E_DEPLOY", err.Error(), map[string]string{"path": path}); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitFailure, fmt.Sprintf("deploy %s", path), err)
		}
		views = append(views, newImageView(img))
	}

	return f.Success(views, func(w io.Writer) {
		for _, v := range views {
			fmt.Fprintf(w, "✓ %s@%d %s\n", v.Name, v.Version, v.Hash)
			fmt.Fprintf(w, "  cid: %s\n", v.CID)
		}
	})
}

// NewImagesCommand creates the images command.
func NewImagesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "images",
		Short: "List registered code images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImages(rootOpts, cmd)
		},
	}
}

func runImages(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	sess, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer sess.Close()

	images, err := sess.registry.Images(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list images", err)
	}
	views := make([]ImageView, len(images))
	for i, img := range images {
		views[i] = newImageView(img)
	}

	return f.Success(views, func(w io.Writer) {
		if len(views) == 0 {
			fmt.Fprintln(w, "No images registered.")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "IMAGE\tHASH\tUPGRADEABLE\tMESSAGES")
		for _, v := range views {
			fmt.Fprintf(tw, "%s@%d\t%s\t%t\t%s\n", v.Name, v.Version, v.Hash, v.Upgradeable, strings.Join(v.Messages, ","))
		}
		tw.Flush()
	})
}
