// Package analysis runs the template pipeline: load a template, supervise the
// keypoint matches of a target image, then cut out and interpret each feature.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"docalign/internal/config"
	"docalign/internal/debug"
	"docalign/internal/match"
	"docalign/internal/storage"
	"docalign/internal/supervision"
	"docalign/internal/tasks"
	"docalign/pkg/geometry"
)

// Interpreter turns a warped feature image into a value, e.g. its text.
type Interpreter interface {
	Method() string
	Interpret(ctx context.Context, img gocv.Mat) (any, error)
}

// Request describes one analysis.
type Request struct {
	Template *config.Template
	Matches  *match.Result
	// Target is the analyzed image. Features are only extracted when it is set.
	Target     *gocv.Mat
	TargetPath string
	// Engine overrides the template's supervision engine when set.
	Engine string
	// Options are merged over the template's options for the selected engine.
	Options map[string]any
	// Debug receives diagnostic images when non-nil.
	Debug *debug.Container
}

// FeatureResult is the outcome for one template feature.
type FeatureResult struct {
	ID     string              `json:"id"`
	Quad   [4]geometry.Point2D `json:"quad"`
	Method string              `json:"method,omitempty"`
	Value  any                 `json:"value,omitempty"`
}

// Report is the outcome of an analysis.
type Report struct {
	RunID       string              `json:"run_id"`
	TemplateID  string              `json:"template_id"`
	Engine      string              `json:"engine"`
	Summary     supervision.Summary `json:"supervision"`
	WeightedMSE *float64            `json:"weighted_mse,omitempty"`
	Features    []FeatureResult     `json:"features,omitempty"`
	Result      *supervision.Result `json:"-"`
}

// Analyzer runs loads and analyses on a task pool and logs runs to a store.
// The store may be nil.
type Analyzer struct {
	pool         *tasks.Pool
	store        *storage.Store
	log          *zap.Logger
	interpreters map[string]Interpreter
}

// New creates an analyzer. Interpreters are registered under their Method.
func New(pool *tasks.Pool, store *storage.Store, log *zap.Logger, interpreters ...Interpreter) *Analyzer {
	if log == nil {
		log = zap.NewNop()
	}
	a := &Analyzer{pool: pool, store: store, log: log, interpreters: make(map[string]Interpreter)}
	for _, in := range interpreters {
		a.interpreters[in.Method()] = in
	}
	return a
}

// LoadAsync loads and checks a template on the pool. The future yields a *config.Template.
func (a *Analyzer) LoadAsync(path string) (*tasks.Future, error) {
	return a.pool.Submit("load template "+path, func(_ context.Context, args ...any) (any, error) {
		return a.load(args[0].(string))
	}, path)
}

// Load is the blocking form of LoadAsync.
func (a *Analyzer) Load(ctx context.Context, path string) (*config.Template, error) {
	f, err := a.LoadAsync(path)
	if err != nil {
		return nil, err
	}
	v, err := f.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return v.(*config.Template), nil
}

func (a *Analyzer) load(path string) (*config.Template, error) {
	t, err := config.LoadTemplate(path)
	if err != nil {
		return nil, err
	}
	if err := a.Check(t); err != nil {
		return nil, err
	}
	a.log.Info("template loaded",
		zap.String("template", t.ID),
		zap.Int("keypoints", len(t.Keypoints)),
		zap.Int("features", len(t.Features)))
	return t, nil
}

// Check verifies that every mutator and interpretation method the template
// names is available.
func (a *Analyzer) Check(t *config.Template) error {
	while := fmt.Sprintf("while checking features of template %q", t.ID)
	for _, f := range t.Features {
		for _, m := range f.Mutators {
			if _, ok := mutators[m]; !ok {
				return supervision.NewError(supervision.ErrTemplateInvalidFeature, while,
					fmt.Sprintf("feature %q uses unknown mutator %q", f.ID, m), nil)
			}
		}
		if f.Interpretation == "" {
			continue
		}
		if _, ok := a.interpreters[f.Interpretation]; !ok {
			return supervision.NewError(supervision.ErrTemplateInvalidFeature, while,
				fmt.Sprintf("feature %q uses unavailable interpretation method %q", f.ID, f.Interpretation), nil)
		}
	}
	return nil
}

// AnalyzeAsync runs Analyze on the pool. The future yields a *Report.
func (a *Analyzer) AnalyzeAsync(req Request) (*tasks.Future, error) {
	return a.pool.Submit("analyze "+req.Template.ID, func(ctx context.Context, args ...any) (any, error) {
		return a.Analyze(ctx, args[0].(Request))
	}, req)
}

// Analyze supervises the matches of req and extracts the template features.
// It fails with a correspondence-not-found error when no transformation fits.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Report, error) {
	tpl := req.Template
	engine := tpl.Supervision.Engine
	if req.Engine != "" {
		engine = req.Engine
	}
	runID := uuid.NewString()
	log := a.log.With(zap.String("run", runID), zap.String("template", tpl.ID), zap.String("engine", engine))

	if err := a.store.RecordRunQueued(storage.RunRecord{ID: runID, TemplateID: tpl.ID, Engine: engine, TargetPath: req.TargetPath}); err != nil {
		log.Warn("run log unavailable", zap.Error(err))
	}
	if err := a.store.RecordRunStart(runID); err != nil {
		log.Warn("failed to record run start", zap.Error(err))
	}

	report, err := a.analyze(ctx, log, runID, engine, req)
	a.record(log, runID, report, err)
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (a *Analyzer) analyze(ctx context.Context, log *zap.Logger, runID, engine string, req Request) (*Report, error) {
	tpl := req.Template
	opts := make(map[string]any)
	if engine == tpl.Supervision.Engine {
		for k, v := range tpl.Supervision.EngineOptions() {
			opts[k] = v
		}
	} else {
		for k, v := range tpl.Supervision.Config[engine] {
			opts[k] = v
		}
	}
	for k, v := range req.Options {
		opts[k] = v
	}

	sup, err := supervision.New(engine, tpl.ID, req.Matches, opts, log)
	if err != nil {
		return nil, err
	}
	res, err := sup.Run(ctx)
	if err != nil {
		return nil, err
	}
	if res == nil {
		e := supervision.NewError(supervision.ErrCorrespondenceNotFound,
			fmt.Sprintf("while supervising template %q", tpl.ID),
			fmt.Sprintf("no transformation fits the %d matches", req.Matches.TotalMatchCount()), nil)
		e.Regular = true
		return nil, e
	}

	summary, err := res.Summary()
	if err != nil {
		return nil, err
	}
	report := &Report{RunID: runID, TemplateID: tpl.ID, Engine: engine, Summary: summary, Result: res}
	if mse, err := res.WeightedMSE(); err == nil {
		report.WeightedMSE = &mse
	} else {
		log.Warn("weighted error undefined", zap.Error(err))
	}
	log.Info("supervision finished",
		zap.Float64("score", summary.Score),
		zap.Any("matrix", summary.Matrix))

	if req.Target == nil || req.Target.Empty() {
		return report, nil
	}

	if req.Debug != nil {
		if err := a.drawDebug(req, res); err != nil {
			log.Warn("debug drawing failed", zap.Error(err))
		}
	}

	for _, f := range tpl.Features {
		fr, err := a.feature(ctx, req, res, f)
		if err != nil {
			return nil, errors.Wrapf(err, "feature %s", f.ID)
		}
		report.Features = append(report.Features, fr)
	}
	return report, nil
}

func (a *Analyzer) feature(ctx context.Context, req Request, res *supervision.Result, f config.Feature) (FeatureResult, error) {
	fr := FeatureResult{ID: f.ID, Method: f.Interpretation}
	quad, err := res.FeatureQuad(f.Rect())
	if err != nil {
		return fr, err
	}
	fr.Quad = quad

	warped, err := res.WarpFeature(f.Rect(), *req.Target)
	if err != nil {
		return fr, err
	}
	defer warped.Close()

	img := applyMutators(warped, f.Mutators)
	defer img.Close()
	req.Debug.Add("feature_"+f.ID, img)

	if f.Interpretation == "" {
		return fr, nil
	}
	in, ok := a.interpreters[f.Interpretation]
	if !ok {
		return fr, errors.Errorf("interpretation method %q is not available", f.Interpretation)
	}
	v, err := in.Interpret(ctx, img)
	if err != nil {
		return fr, errors.Wrap(err, "interpret")
	}
	fr.Value = v
	return fr, nil
}

func (a *Analyzer) drawDebug(req Request, res *supervision.Result) error {
	matches, err := debug.DrawMatches(*req.Target, res)
	if err != nil {
		return err
	}
	req.Debug.Add("matches", matches)
	matches.Close()

	regions := make(map[string]geometry.Rect, len(req.Template.Keypoints)+len(req.Template.Features))
	for _, k := range req.Template.Keypoints {
		regions[k.ID] = k.Rect()
	}
	for _, f := range req.Template.Features {
		regions[f.ID] = f.Rect()
	}
	quads, err := debug.DrawQuads(*req.Target, res, regions)
	if err != nil {
		return err
	}
	req.Debug.Add("regions", quads)
	quads.Close()
	return nil
}

func (a *Analyzer) record(log *zap.Logger, runID string, report *Report, runErr error) {
	if a.store == nil {
		return
	}
	out := storage.RunOutcome{Status: storage.StatusSucceeded}
	switch {
	case errors.Is(runErr, supervision.ErrCorrespondenceNotFound):
		out.Status = storage.StatusNoFit
		out.Error = runErr.Error()
	case runErr != nil:
		out.Status = storage.StatusFailed
		out.Error = runErr.Error()
	default:
		score := report.Summary.Score
		out.Score = &score
		out.MSE = report.WeightedMSE
		if data, err := json.Marshal(report); err == nil {
			out.SummaryJSON = string(data)
		}
	}
	if err := a.store.RecordRunResult(runID, out); err != nil {
		log.Warn("failed to record run", zap.Error(err))
	}
}
