// Package engine orchestrates a resolution run: discover files, parse
// and collect definitions, scan configuration, build the service-method
// index, then detect and resolve every call site into a report. The
// collect passes fully precede resolution; the whole-program indexes are
// immutable once resolution starts.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/apirecon/apirecon/ast"
	"github.com/apirecon/apirecon/callgraph"
	"github.com/apirecon/apirecon/catalog"
	"github.com/apirecon/apirecon/classes"
	"github.com/apirecon/apirecon/configs"
	"github.com/apirecon/apirecon/detect"
	"github.com/apirecon/apirecon/eval"
	"github.com/apirecon/apirecon/finding"
	"github.com/apirecon/apirecon/repository"
	"github.com/apirecon/apirecon/resolve"
	"github.com/apirecon/apirecon/scope"
)

// Options configures a run.
type Options struct {
	// Parallelism bounds concurrent file work. Zero means GOMAXPROCS.
	Parallelism int
	// MinConfidence filters findings below the tier. Empty keeps all.
	MinConfidence finding.Confidence
	// CatalogPath overrides the embedded idiom catalog.
	CatalogPath string
	// Logger receives run diagnostics. Nil uses slog.Default.
	Logger *slog.Logger
}

// Option mutates engine Options.
type Option func(*Options)

// WithParallelism bounds concurrent file work.
func WithParallelism(n int) Option {
	return func(o *Options) { o.Parallelism = n }
}

// WithMinConfidence drops findings below the tier.
func WithMinConfidence(minimum finding.Confidence) Option {
	return func(o *Options) { o.MinConfidence = minimum }
}

// WithCatalogPath overrides the embedded idiom catalog.
func WithCatalogPath(path string) Option {
	return func(o *Options) { o.CatalogPath = path }
}

// WithLogger sets the run logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// Engine runs the static resolution passes.
type Engine struct {
	opts     Options
	logger   *slog.Logger
	catalog  *catalog.Catalog
	parser   *ast.Parser
	detector *detect.Detector
}

// New creates an engine.
func New(opts ...Option) (*Engine, error) {
	options := Options{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Parallelism <= 0 {
		options.Parallelism = runtime.GOMAXPROCS(0)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var cat *catalog.Catalog
	var err error
	if options.CatalogPath != "" {
		cat, err = catalog.LoadFile(options.CatalogPath)
	} else {
		cat, err = catalog.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	return &Engine{
		opts:     options,
		logger:   logger,
		catalog:  cat,
		parser:   ast.NewParser(),
		detector: detect.NewDetector(cat),
	}, nil
}

// stores holds the run-scoped whole-program state built by the collect
// passes and read-only afterwards.
type stores struct {
	units      []*ast.SourceUnit
	trees      map[*ast.SourceUnit]*scope.Tree
	classStore *classes.Store
	configs    *configs.Table
	tracker    *configs.Tracker
	index      *callgraph.Index
	evaluators map[*ast.SourceUnit]*eval.Evaluator
	resolvers  map[*ast.SourceUnit]*resolve.Resolver
}

// Run discovers files under root and resolves every call site.
func (e *Engine) Run(ctx context.Context, root string) (*finding.Report, error) {
	project := repository.DetectProject(root)
	e.logger.Info("run started", "root", root, "project", project.Name, "type", project.Type)

	files, err := repository.NewDiscovery(nil, repository.DefaultOptions()).Files(ctx, root)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no analyzable sources under %s", root)
	}

	table, err := configs.NewScanner(nil, e.scannerOptions()).Scan(ctx, root)
	if err != nil {
		e.logger.Warn("config scan failed", "error", err)
		table = configs.NewTable()
	}
	return e.RunFiles(ctx, root, files, table)
}

func (e *Engine) scannerOptions() configs.ScannerOptions {
	opts := configs.DefaultScannerOptions()
	heuristics := e.catalog.ConfigHeuristics
	if len(heuristics.FilenameKeywords) > 0 {
		opts.FilenameKeywords = heuristics.FilenameKeywords
	}
	if len(heuristics.URLKeyKeywords) > 0 {
		opts.URLKeyKeywords = heuristics.URLKeyKeywords
	}
	if len(heuristics.SchemePrefixes) > 0 {
		opts.SchemePrefixes = heuristics.SchemePrefixes
	}
	return opts
}

// RunFiles resolves the given file set against an already scanned
// configuration table.
func (e *Engine) RunFiles(ctx context.Context, root string, files []*repository.File, table *configs.Table) (*finding.Report, error) {
	if table == nil {
		table = configs.NewTable()
	}
	st := &stores{
		trees:      map[*ast.SourceUnit]*scope.Tree{},
		classStore: classes.NewStore(),
		configs:    table,
		evaluators: map[*ast.SourceUnit]*eval.Evaluator{},
		resolvers:  map[*ast.SourceUnit]*resolve.Resolver{},
	}
	st.tracker = configs.NewTracker(st.classStore)

	failed := e.collect(ctx, files, st)
	if len(st.units) == 0 {
		return nil, fmt.Errorf("all %d sources failed to parse", len(files))
	}

	// resolution depends on a completed whole-program index
	e.buildIndexes(st)

	aggregator, candidates, err := e.resolveAll(ctx, st)
	if err != nil {
		return nil, err
	}

	report := finding.NewReport(root, len(st.units), failed, candidates, aggregator)
	e.logger.Info("run finished",
		"files", report.Summary.FilesScanned,
		"failed", report.Summary.FilesFailed,
		"candidates", report.Summary.Candidates,
		"calls", report.Summary.UniqueCalls)
	return report, nil
}

// collect parses all files in parallel, then builds scope trees, class
// records and configuration holders sequentially.
func (e *Engine) collect(ctx context.Context, files []*repository.File, st *stores) int {
	type parsed struct {
		order int
		unit  *ast.SourceUnit
	}
	var mu sync.Mutex
	var results []parsed
	failed := 0

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.opts.Parallelism)
	for i, file := range files {
		group.Go(func() error {
			unit, err := e.parser.Parse(groupCtx, file.Content, file.Path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				e.logger.Debug("parse failed", "file", file.Path, "error", err)
				return nil
			}
			results = append(results, parsed{order: i, unit: unit})
			return nil
		})
	}
	// parse errors are per-file and never abort the run
	_ = group.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].order < results[j].order })
	for _, p := range results {
		st.units = append(st.units, p.unit)
		st.trees[p.unit] = scope.Build(p.unit)
		st.classStore.Collect(p.unit)
	}
	for _, unit := range st.units {
		st.tracker.Trace(unit, st.trees[unit])
	}
	return failed
}

// buildIndexes creates the per-unit evaluators and the service-method
// index. This is the barrier between collection and resolution.
func (e *Engine) buildIndexes(st *stores) {
	st.index = callgraph.NewIndex(e.catalog)
	for _, unit := range st.units {
		evaluator := eval.New(unit, st.trees[unit], st.classStore, st.configs, st.tracker)
		st.evaluators[unit] = evaluator
		st.resolvers[unit] = resolve.NewResolver(e.catalog, evaluator)
	}
	for _, unit := range st.units {
		st.index.AddUnit(unit, st.trees[unit], st.classStore, e.detector, st.resolvers[unit])
	}
	e.logger.Debug("service index built", "methods", st.index.Len())
}

// resolveAll detects and resolves candidates file by file. The shared
// stores are read-only here, so files proceed in parallel with only the
// aggregator guarded.
func (e *Engine) resolveAll(ctx context.Context, st *stores) (*finding.Aggregator, int, error) {
	aggregator := finding.NewAggregator()
	var mu sync.Mutex
	candidates := 0

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.opts.Parallelism)
	for _, unit := range st.units {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			found := e.detector.Scan(unit)
			calls := make([]*finding.ResolvedCall, 0, len(found))
			for _, candidate := range found {
				calls = append(calls, e.resolveCandidate(st, unit, candidate))
			}
			mu.Lock()
			defer mu.Unlock()
			candidates += len(found)
			for _, call := range calls {
				if e.opts.MinConfidence != "" && !call.Confidence.AtLeast(e.opts.MinConfidence) {
					continue
				}
				aggregator.Add(call)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, 0, err
	}
	return aggregator, candidates, nil
}

func (e *Engine) resolveCandidate(st *stores, unit *ast.SourceUnit, candidate *detect.Candidate) *finding.ResolvedCall {
	if candidate.Subscribe {
		if call, ok := st.index.Resolve(candidate, st.evaluators[unit]); ok {
			return call
		}
		// no matching service target, fall through to the generic resolver
	}
	return st.resolvers[unit].Extract(candidate)
}
