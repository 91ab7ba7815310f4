// Package cli implements the docalign command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"docalign/internal/analysis"
	"docalign/internal/config"
	"docalign/internal/debug"
	"docalign/internal/match"
	"docalign/internal/ocr"
	"docalign/internal/storage"
	"docalign/internal/supervision"
	"docalign/internal/tasks"
	"docalign/internal/version"
)

// InterpreterFactory creates the OCR interpreter for a language.
type InterpreterFactory func(language string) (analysis.Interpreter, io.Closer, error)

func newOCR(language string) (analysis.Interpreter, io.Closer, error) {
	e, err := ocr.NewEngine(language, "")
	if err != nil {
		return nil, nil, err
	}
	return e, e, nil
}

// Root holds what every command shares.
type Root struct {
	cfg  *config.Config
	log  *zap.Logger
	pool *tasks.Pool
	ocr  InterpreterFactory
}

// NewRoot creates the shared command state. A nil factory uses tesseract.
func NewRoot(cfg *config.Config, log *zap.Logger, pool *tasks.Pool, factory InterpreterFactory) *Root {
	if log == nil {
		log = zap.NewNop()
	}
	if factory == nil {
		factory = newOCR
	}
	return &Root{cfg: cfg, log: log, pool: pool, ocr: factory}
}

// NewRootCmd creates the root cobra command.
func NewRootCmd(root *Root) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "docalign",
		Short: "docalign locates template features in document images",
		Long: `docalign fits an affine transformation from template keypoint matches to a
target image, flags untrustworthy matches and extracts the template features.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newSuperviseCmd(root))
	rootCmd.AddCommand(newEnginesCmd())
	rootCmd.AddCommand(newRunsCmd(root))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Run executes the command line args.
func (r *Root) Run(ctx context.Context, args []string) error {
	cmd := NewRootCmd(r)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func (r *Root) openStore(path string) (*storage.Store, error) {
	if path == "" {
		path = r.cfg.Storage.Path
	}
	if path == "" {
		return nil, nil
	}
	return storage.New(path)
}

func newSuperviseCmd(root *Root) *cobra.Command {
	var (
		templatePath string
		matchesPath  string
		engine       string
		seed         int64
		options      map[string]string
		targetPath   string
		outDir       string
		useOCR       bool
		dbPath       string
	)

	cmd := &cobra.Command{
		Use:   "supervise",
		Short: "Fit a template to a set of keypoint matches",
		Long: `Load a template and a match file, run the supervision engine and print the
report as JSON. With --target the template features are cut out of the image,
and with --out the debug drawings are written as PNG files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			var interps []analysis.Interpreter
			if useOCR {
				in, closer, err := root.ocr(root.cfg.OCR.Language)
				if err != nil {
					return errors.Wrap(err, "start OCR")
				}
				defer closer.Close()
				interps = append(interps, in)
			}

			store, err := root.openStore(dbPath)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			an := analysis.New(root.pool, store, root.log, interps...)
			tpl, err := an.Load(ctx, templatePath)
			if err != nil {
				return err
			}
			kmr, err := match.LoadFile(matchesPath)
			if err != nil {
				return supervision.NewError(supervision.ErrInvalidPath, "while loading matches", matchesPath, err)
			}

			req := analysis.Request{
				Template:   tpl,
				Matches:    kmr,
				TargetPath: targetPath,
				Engine:     engine,
				Options:    make(map[string]any, len(options)+1),
			}
			for k, v := range options {
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return errors.Errorf("option %s: %q is not a number", k, v)
				}
				req.Options[k] = f
			}
			if cmd.Flags().Changed("seed") {
				req.Options["seed"] = seed
			}

			if targetPath != "" {
				target := gocv.IMRead(targetPath, gocv.IMReadColor)
				defer target.Close()
				if target.Empty() {
					return supervision.NewError(supervision.ErrInvalidPath, "while reading the target image", targetPath, nil)
				}
				req.Target = &target
			}
			if outDir != "" {
				req.Debug = debug.New()
				defer req.Debug.Close()
			}

			f, err := an.AnalyzeAsync(req)
			if err != nil {
				return err
			}
			v, err := f.Wait(ctx)
			if err != nil {
				return err
			}
			report := v.(*analysis.Report)

			if outDir != "" {
				paths, err := req.Debug.Export(outDir)
				if err != nil {
					return err
				}
				root.log.Info("debug images written", zap.String("dir", outDir), zap.Int("count", len(paths)))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().StringVarP(&templatePath, "template", "t", "", "template file (yaml)")
	cmd.Flags().StringVarP(&matchesPath, "matches", "m", "", "keypoint match file (yaml)")
	cmd.Flags().StringVarP(&engine, "engine", "e", "", "supervision engine, overrides the template")
	cmd.Flags().Int64Var(&seed, "seed", 0, "seed for anchor selection")
	cmd.Flags().StringToStringVarP(&options, "set", "s", nil, "engine option as name=value, repeatable")
	cmd.Flags().StringVar(&targetPath, "target", "", "target image to extract features from")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory for debug images")
	cmd.Flags().BoolVar(&useOCR, "ocr", false, "enable the ocr interpretation method")
	cmd.Flags().StringVar(&dbPath, "db", "", "run log database, overrides the config")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("matches")
	return cmd
}

func newEnginesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List supervision engines and their options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, id := range supervision.Engines() {
				specs, _ := supervision.EngineOptions(id)
				fmt.Fprintln(w, id)
				for _, s := range specs {
					fmt.Fprintf(w, "  %s\tdefault %g\trange [%g, %g]\n", s.Name, s.Default, s.Min, s.Max)
				}
			}
			return w.Flush()
		},
	}
}

func newRunsCmd(root *Root) *cobra.Command {
	var (
		templateID string
		limit      int
		dbPath     string
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent supervision runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := root.openStore(dbPath)
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("no run log configured, set storage.path or --db")
			}
			defer store.Close()

			recs, err := store.RecentRuns(templateID, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTEMPLATE\tENGINE\tSTATUS\tSCORE\tCREATED")
			for _, r := range recs {
				score := "-"
				if r.Score != nil {
					score = strconv.FormatFloat(*r.Score, 'g', 6, 64)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.TemplateID, r.Engine, r.Status, score, r.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&templateID, "template", "", "only show runs of this template")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")
	cmd.Flags().StringVar(&dbPath, "db", "", "run log database, overrides the config")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
