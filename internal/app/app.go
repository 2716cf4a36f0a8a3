package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/GriffinCanCode/scriptkit/internal/config"
	"github.com/GriffinCanCode/scriptkit/internal/dom"
	"github.com/GriffinCanCode/scriptkit/internal/fetchinput"
	"github.com/GriffinCanCode/scriptkit/internal/formdata"
	"github.com/GriffinCanCode/scriptkit/internal/iterate"
	"github.com/GriffinCanCode/scriptkit/internal/lifecycle"
	"github.com/GriffinCanCode/scriptkit/internal/logging"
	"github.com/GriffinCanCode/scriptkit/internal/monitoring"
	"github.com/GriffinCanCode/scriptkit/internal/sandbox"
	"github.com/GriffinCanCode/scriptkit/internal/shared/jsvalue"
	"github.com/GriffinCanCode/scriptkit/internal/wbi"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var ErrNoScripts = errors.New("no scripts to run")

// App wires configuration, logging and metrics into the commands
type App struct {
	cfg     *config.Config
	logger  *logging.Logger
	log     *zap.Logger
	metrics *monitoring.Metrics
	signer  wbi.Signer
	client  *resty.Client
}

// Option configures an App
type Option func(*App)

// WithMetrics records runs into metrics
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(a *App) { a.metrics = metrics }
}

// WithSigner replaces the signer used by Sign and by scripts
func WithSigner(signer wbi.Signer) Option {
	return func(a *App) { a.signer = signer }
}

// New creates an App. A nil logger discards output.
func New(cfg *config.Config, logger *logging.Logger, opts ...Option) *App {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		log:    logger.Component("app"),
		client: resty.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Script is a named script source
type Script struct {
	Name   string
	Source string
}

// RunOptions describes one run
type RunOptions struct {
	Scripts []Script
	Page    io.Reader // nil runs against a blank, loaded page
	RunAt   string    // empty uses the configured moment
}

// ScriptResult is the outcome of one script
type ScriptResult struct {
	Name   string          `json:"name"`
	Result *sandbox.Result `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Run executes every script concurrently against one document. When a
// page is given it is replayed into the document while the scripts wait
// for their run-at moment, the way a browser injects userscripts.
func (a *App) Run(ctx context.Context, opts RunOptions) ([]ScriptResult, error) {
	if len(opts.Scripts) == 0 {
		return nil, ErrNoScripts
	}

	runAt := opts.RunAt
	if runAt == "" {
		runAt = a.cfg.Sandbox.RunAt
	}
	moment, err := lifecycle.ParseMoment(runAt)
	if err != nil {
		return nil, fmt.Errorf("invalid run-at %q: %w", runAt, err)
	}

	pool, err := sandbox.NewPool(a.sandboxConfig(), len(opts.Scripts),
		sandbox.WithLogger(a.logger.Component("sandbox")),
		sandbox.WithMetrics(a.metrics),
		sandbox.WithSigner(a.signer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox pool: %w", err)
	}
	defer pool.Close()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var doc *dom.Document
	var loadErr error
	loaded := make(chan struct{})

	if opts.Page != nil {
		doc = dom.NewDocument(a.logger.Component("dom"))
		loader := dom.NewLoader(doc, dom.LoaderConfig{StepDelay: a.cfg.Loader.StepDelay.Std()}, a.logger.Component("loader"))

		go func() {
			defer close(loaded)
			if err := loader.Load(runCtx, opts.Page); err != nil {
				loadErr = fmt.Errorf("failed to load page: %w", err)
				cancel(loadErr)
				return
			}
			if a.metrics != nil {
				a.metrics.IncPagesLoaded()
			}
		}()
	} else {
		close(loaded)
	}

	a.log.Info("Running scripts",
		zap.Int("scripts", len(opts.Scripts)),
		zap.String("run_at", string(moment)),
		zap.Bool("page", opts.Page != nil))

	results := make([]ScriptResult, len(opts.Scripts))
	var wg sync.WaitGroup
	for i, script := range opts.Scripts {
		wg.Add(1)
		go func(i int, script Script) {
			defer wg.Done()
			results[i] = a.runScript(runCtx, pool, script, doc, moment)
		}(i, script)
	}
	wg.Wait()
	<-loaded

	if loadErr != nil {
		return results, loadErr
	}
	return results, nil
}

func (a *App) runScript(ctx context.Context, pool *sandbox.Pool, script Script, doc *dom.Document, moment lifecycle.Moment) ScriptResult {
	out := ScriptResult{Name: script.Name}

	if doc != nil {
		if err := lifecycle.Wait(ctx, doc, moment); err != nil {
			out.Error = context.Cause(ctx).Error()
			return out
		}
	}

	result, err := pool.Execute(ctx, script.Source, doc)
	out.Result = result
	if err != nil {
		out.Error = err.Error()
		a.logger.Script(script.Name).Warn("Script failed", zap.Error(err))
	}
	return out
}

func (a *App) sandboxConfig() sandbox.Config {
	cfg := sandbox.DefaultConfig()
	cfg.Timeout = a.cfg.Sandbox.Timeout.Std()
	cfg.EnableConsole = a.cfg.Sandbox.EnableConsole
	cfg.ConsoleRate = a.cfg.Sandbox.ConsoleRate
	cfg.ConsoleBurst = a.cfg.Sandbox.ConsoleBurst
	return cfg
}

// SignRequest holds the parameters to sign. Keys may be given bare or as
// wbi_img URLs; empty keys fall back to the configuration.
type SignRequest struct {
	Params jsvalue.Object
	ImgKey string
	SubKey string
}

// SignResult is a signed query and the parameters it was built from
type SignResult struct {
	Query  string         `json:"query"`
	Params jsvalue.Object `json:"params"`
}

// Sign signs a copy of the request parameters
func (a *App) Sign(req SignRequest) (*SignResult, error) {
	cfg := *a.cfg
	if req.ImgKey != "" {
		cfg.WBI.ImgKey = req.ImgKey
	}
	if req.SubKey != "" {
		cfg.WBI.SubKey = req.SubKey
	}
	if err := cfg.RequireWBIKeys(); err != nil {
		return nil, err
	}

	params := append(jsvalue.Object(nil), req.Params...)
	query := a.signer.SignObject(&params, wbi.KeyFromURL(cfg.WBI.ImgKey), wbi.KeyFromURL(cfg.WBI.SubKey))
	if a.metrics != nil {
		a.metrics.IncSignatures()
	}

	a.log.Debug("Signed parameters", zap.Int("params", len(params)))
	return &SignResult{Query: query, Params: params}, nil
}

// Leaf is one value reported by Leaves
type Leaf struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// Leaves decodes a JSON or YAML document and lists its deepest leaves
func (a *App) Leaves(data []byte) ([]Leaf, error) {
	root, err := jsvalue.Decode(data)
	if err != nil {
		return nil, err
	}

	leaves := []Leaf{}
	iterate.Deepest(root, func(value any, path string) {
		leaves = append(leaves, Leaf{Path: path, Value: value})
	})
	return leaves, nil
}

// PackResult describes a prepared multipart request
type PackResult struct {
	URL         string           `json:"url"`
	Method      string           `json:"method"`
	ContentType string           `json:"content_type"`
	Entries     []formdata.Entry `json:"entries"`
	Body        string           `json:"body"`
}

// FilePart is a file to attach after the packed fields
type FilePart struct {
	Key  string
	Name string
	Data []byte
}

// Pack builds, but never sends, a multipart POST to target carrying
// fields followed by files
func (a *App) Pack(fields jsvalue.Object, files []FilePart, target string) (*PackResult, error) {
	fd := formdata.Pack(fields)
	for _, f := range files {
		fd.AppendFile(f.Key, f.Name, f.Data)
	}

	req := a.client.R()
	req.Method = resty.MethodPost
	req.URL = target

	req, err := fd.ApplyTo(req)
	if err != nil {
		return nil, fmt.Errorf("failed to pack form data: %w", err)
	}

	body, _ := req.Body.([]byte)
	return &PackResult{
		URL:         fetchinput.FromAny(req),
		Method:      req.Method,
		ContentType: req.Header.Get("Content-Type"),
		Entries:     fd.Entries(),
		Body:        string(body),
	}, nil
}
