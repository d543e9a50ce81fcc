package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/puzzlepool"
	"github.com/arloliu/puzzlepool/types"
)

// blockView is the JSON shape printed for a block.
type blockView struct {
	ID         string    `json:"id"`
	Owner      string    `json:"owner"`
	WorkerID   string    `json:"workerId,omitempty"`
	Start      string    `json:"start"`
	End        string    `json:"end"`
	Size       string    `json:"size"`
	Status     string    `json:"status"`
	Provenance string    `json:"provenance,omitempty"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Checkwork  []string  `json:"checkwork,omitempty"`
	Existing   bool      `json:"existing,omitempty"`

	Solution *puzzlepool.Solution `json:"solution,omitempty"`
}

func viewOf(a *puzzlepool.Assignment) blockView {
	return blockView{
		ID:         a.ID,
		Owner:      a.Owner,
		WorkerID:   a.WorkerID,
		Start:      types.TrimHex(a.Interval.Start),
		End:        types.TrimHex(a.Interval.End),
		Size:       a.Interval.Len().String(),
		Status:     a.Status.String(),
		Provenance: string(a.Provenance),
		ExpiresAt:  a.ExpiresAt,
		Checkwork:  a.SampleIdentifiers,
		Solution:   a.Solution,
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

type ownerFlags struct {
	owner    string
	workerID string
}

func (f *ownerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.owner, "owner", "", "owner token (required)")
	cmd.Flags().StringVar(&f.workerID, "worker", "", "worker id within the owner")
	_ = cmd.MarkFlagRequired("owner")
}

func newAllocateCommand(a *app) *cobra.Command {
	var (
		owner       ownerFlags
		size        string
		start, end  string
		forceRandom bool
		always      bool
	)

	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Assign a block to an owner",
		Long: `Assign a block to an owner.

By default the owner's current block is returned when it has one; --new
always allocates. --start/--end request an exact interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := a.openPool(cmd.Context())
			if err != nil {
				return err
			}

			req := puzzlepool.AllocateRequest{
				Owner:       owner.owner,
				WorkerID:    owner.workerID,
				Size:        size,
				ForceRandom: forceRandom,
			}
			if start != "" || end != "" {
				iv, err := parseInterval(start, end)
				if err != nil {
					return err
				}
				req.Custom = &iv
			}

			var block *puzzlepool.Block
			if always || req.Custom != nil {
				block, err = pool.Allocate(cmd.Context(), req)
			} else {
				block, err = pool.Acquire(cmd.Context(), req)
			}
			if err != nil {
				if puzzlepool.IsRetryable(err) {
					return fmt.Errorf("%w (retryable)", err)
				}

				return err
			}

			view := viewOf(block.Assignment)
			view.Size = block.AssignedSize.String()
			view.Existing = block.Existing

			return printJSON(cmd.OutOrStdout(), view)
		},
	}

	owner.register(cmd)
	cmd.Flags().StringVar(&size, "size", "", "block size with optional K/M/B/T suffix (default: random within config bounds)")
	cmd.Flags().StringVar(&start, "start", "", "custom interval start (hex)")
	cmd.Flags().StringVar(&end, "end", "", "custom interval end, exclusive (hex)")
	cmd.Flags().BoolVar(&forceRandom, "force-random", false, "never reuse expired intervals")
	cmd.Flags().BoolVar(&always, "new", false, "allocate even if the owner holds an active block")
	cmd.MarkFlagsRequiredTogether("start", "end")

	return cmd
}

func parseInterval(start, end string) (puzzlepool.Interval, error) {
	s, err := types.ParseHex(start)
	if err != nil {
		return puzzlepool.Interval{}, fmt.Errorf("--start: %w", err)
	}
	e, err := types.ParseHex(end)
	if err != nil {
		return puzzlepool.Interval{}, fmt.Errorf("--end: %w", err)
	}

	return puzzlepool.Interval{Start: s, End: e}, nil
}

func newCurrentCommand(a *app) *cobra.Command {
	var owner ownerFlags

	cmd := &cobra.Command{
		Use:   "current",
		Short: "Show the owner's active block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := a.openPool(cmd.Context())
			if err != nil {
				return err
			}

			block, err := pool.Current(cmd.Context(), owner.owner, owner.workerID)
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), viewOf(block))
		},
	}
	owner.register(cmd)

	return cmd
}

func newReleaseCommand(a *app) *cobra.Command {
	var owner ownerFlags

	cmd := &cobra.Command{
		Use:   "release",
		Short: "Give up the owner's active block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := a.openPool(cmd.Context())
			if err != nil {
				return err
			}

			block, err := pool.Release(cmd.Context(), owner.owner, owner.workerID)
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), viewOf(block))
		},
	}
	owner.register(cmd)

	return cmd
}

func newSubmitCommand(a *app) *cobra.Command {
	var (
		owner   ownerFlags
		blockID string
	)

	cmd := &cobra.Command{
		Use:   "submit SCALAR...",
		Short: "Submit checkwork scalars for a block",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := a.openPool(cmd.Context())
			if err != nil {
				return err
			}

			res, err := pool.Submit(cmd.Context(), puzzlepool.SubmitRequest{
				Owner:    owner.owner,
				WorkerID: owner.workerID,
				BlockID:  blockID,
				Scalars:  args,
			})
			if res != nil {
				out := struct {
					Block       blockView `json:"block"`
					Missing     []string  `json:"missing,omitempty"`
					Credits     float64   `json:"credits"`
					KeyspaceHit bool      `json:"keyspaceHit,omitempty"`
					HitScalar   string    `json:"hitScalar,omitempty"`
				}{viewOf(res.Assignment), res.Missing, res.Credits, res.KeyspaceHit, res.HitScalar}
				if printErr := printJSON(cmd.OutOrStdout(), out); printErr != nil {
					return errors.Join(err, printErr)
				}
			}

			return err
		},
	}
	owner.register(cmd)
	cmd.Flags().StringVar(&blockID, "block", "", "block id (default: the owner's active block)")

	return cmd
}

func newSampleCommand(a *app) *cobra.Command {
	var (
		start, end string
		count      int
	)

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Draw checkwork points inside an interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := a.openPool(cmd.Context())
			if err != nil {
				return err
			}

			iv, err := parseInterval(start, end)
			if err != nil {
				return err
			}
			points, err := pool.Sample(iv, count)
			if err != nil {
				return err
			}

			type pointView struct {
				Scalar     string `json:"scalar"`
				Identifier string `json:"identifier"`
			}
			out := make([]pointView, 0, len(points))
			for _, p := range points {
				out = append(out, pointView{Scalar: types.FormatHex64(p.Scalar), Identifier: p.Identifier})
			}

			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "interval start (hex)")
	cmd.Flags().StringVar(&end, "end", "", "interval end, exclusive (hex)")
	cmd.Flags().IntVar(&count, "count", 0, "number of points (default: checkworkCount)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

func newSweepCommand(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue blocks",
		Long: `Expire every ACTIVE block past its deadline.

With --watch the sweep repeats every sweepInterval until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			pool, err := a.openPool(ctx)
			if err != nil {
				return err
			}

			if !watch {
				swept, err := pool.SweepExpired(ctx)
				if err != nil {
					return err
				}
				views := make([]blockView, 0, len(swept))
				for _, s := range swept {
					views = append(views, viewOf(s))
				}

				return printJSON(cmd.OutOrStdout(), views)
			}

			a.serveMetrics(ctx)
			if err := pool.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()

			return pool.Stop()
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep sweeping until interrupted")

	return cmd
}

func newPublishCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Publish the configured puzzle to the keyspace KV bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			puzzle, err := a.cfg.PuzzleConfig()
			if err != nil {
				return err
			}
			js, err := a.jetStream()
			if err != nil {
				return err
			}
			src, err := puzzlepool.KVSource(ctx, js, &a.cfg)
			if err != nil {
				return err
			}
			if err := src.Publish(ctx, puzzle); err != nil {
				return err
			}

			a.logger.Info("puzzle published", "name", puzzle.Name, "keyspace", puzzle.Keyspace.Interval().String())

			return nil
		},
	}
}
