package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/scriptkit/internal/dom"
	"github.com/GriffinCanCode/scriptkit/internal/monitoring"
	"github.com/GriffinCanCode/scriptkit/internal/shared/id"
	"github.com/GriffinCanCode/scriptkit/internal/wbi"
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Runtime wraps goja VM with security controls
type Runtime struct {
	vm      *goja.Runtime
	config  Config
	logger  *zap.Logger
	metrics *monitoring.Metrics
	uuids   *id.UUIDGenerator
	signer  wbi.Signer
	mu      sync.Mutex

	// Console output
	console   []LogEntry
	consoleMu sync.Mutex
	limiter   *rate.Limiter // nil when unlimited
	dropped   int

	// flush runs queued promise reactions when called from the loop
	flush goja.Callable

	// exec is only set while Execute runs
	exec *execution
}

// execution is the per-run state the bindings reach through r.exec
type execution struct {
	loop     *eventLoop
	doc      *dom.Document
	urls     map[*goja.Object]*url.URL
	requests map[*goja.Object]*jsRequest

	timers    map[int64]chan struct{}
	nextTimer int64
}

// Option configures a Runtime
type Option func(*Runtime)

// WithLogger sets the logger used for console mirroring and run summaries
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records script runs and helper calls
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(r *Runtime) { r.metrics = metrics }
}

// WithSigner replaces the signer behind encWbi
func WithSigner(signer wbi.Signer) Option {
	return func(r *Runtime) { r.signer = signer }
}

// WithUUIDGenerator replaces the generator behind uuid
func WithUUIDGenerator(gen *id.UUIDGenerator) Option {
	return func(r *Runtime) {
		if gen != nil {
			r.uuids = gen
		}
	}
}

// New creates a new sandboxed runtime
func New(config Config, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		config:  config,
		logger:  zap.NewNop(),
		uuids:   id.NewUUIDGenerator(),
		console: []LogEntry{},
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.init(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runtime) init() error {
	r.vm = goja.New()

	if r.config.MaxCallStackSize > 0 {
		r.vm.SetMaxCallStackSize(r.config.MaxCallStackSize)
	}

	return r.setupGlobals()
}

// Execute runs a script against doc and drives its event loop until no
// timer or lifecycle wait is outstanding. When the script evaluates to a
// promise, the settled value becomes the result. A nil doc is replaced by
// a blank, fully loaded page.
func (r *Runtime) Execute(ctx context.Context, script string, doc *dom.Document) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return nil, ErrClosed
	}

	timer := monitoring.NewTimer(r.metrics)
	result := &Result{
		ID:      id.NewExecutionID(),
		Console: []LogEntry{},
	}

	if doc == nil {
		blank, err := dom.Parse(strings.NewReader(""), r.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create blank document: %w", err)
		}
		doc = blank
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.config.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
	}
	defer cancel()

	stopWatch := r.watchInterrupt(runCtx)

	// Clear console
	r.consoleMu.Lock()
	r.console = []LogEntry{}
	r.dropped = 0
	r.limiter = nil
	if r.config.ConsoleRate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(r.config.ConsoleRate), max(r.config.ConsoleBurst, 1))
	}
	r.consoleMu.Unlock()

	r.exec = &execution{
		loop:     newEventLoop(runCtx),
		doc:      doc,
		urls:     make(map[*goja.Object]*url.URL),
		requests: make(map[*goja.Object]*jsRequest),
		timers:   make(map[int64]chan struct{}),
	}

	val, err := r.vm.RunString(script)
	if err == nil {
		err = r.exec.loop.run(r.drain)
	}

	var value any
	if err == nil {
		value, err = r.settle(val)
	}

	stopWatch()
	r.exec = nil

	// Collect console output
	r.consoleMu.Lock()
	result.Console = append([]LogEntry{}, r.console...)
	result.Dropped = r.dropped
	r.consoleMu.Unlock()

	if err != nil {
		err = failure(ctx, runCtx, err)
		status := monitoring.StatusError
		if errors.Is(err, ErrTimeout) {
			status = monitoring.StatusTimeout
		}
		result.Duration = timer.Stop(status)
		result.Error = err

		r.logger.Warn("Script failed",
			zap.String("id", result.ID.String()),
			zap.Duration("duration", result.Duration),
			zap.Error(err))
		return result, err
	}

	result.Value = value
	result.Duration = timer.Stop(monitoring.StatusSuccess)

	r.logger.Debug("Script executed",
		zap.String("id", result.ID.String()),
		zap.Duration("duration", result.Duration),
		zap.Int("console_entries", len(result.Console)))
	return result, nil
}

// watchInterrupt interrupts the VM when ctx ends. The returned func stops
// the watcher and clears any interrupt it raised, so the next run starts
// clean.
func (r *Runtime) watchInterrupt(ctx context.Context) func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			r.vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()

	return func() {
		close(stop)
		wg.Wait()
		r.vm.ClearInterrupt()
	}
}

// drain runs promise reactions queued by a loop job
func (r *Runtime) drain() error {
	_, err := r.flush(goja.Undefined())
	return err
}

// settle unwraps a promise result
func (r *Runtime) settle(val goja.Value) (any, error) {
	if val == nil {
		return nil, nil
	}

	p, ok := val.Export().(*goja.Promise)
	if !ok {
		return r.exportValue(val), nil
	}

	switch p.State() {
	case goja.PromiseStateFulfilled:
		return r.exportValue(p.Result()), nil
	case goja.PromiseStateRejected:
		return nil, fmt.Errorf("%w: %s", ErrRejected, p.Result().String())
	default:
		return nil, ErrNeverSettle
	}
}

// failure maps interrupts and loop cancellation onto ErrTimeout or the
// caller's context error
func failure(parent, run context.Context, err error) error {
	var interrupted *goja.InterruptedError
	if !errors.As(err, &interrupted) && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	if run.Err() != nil {
		return ErrTimeout
	}
	return err
}

// setupGlobals configures global objects and security
func (r *Runtime) setupGlobals() error {
	// Remove dangerous globals
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := r.vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	// Setup console if enabled
	if r.config.EnableConsole {
		console := r.vm.NewObject()
		for _, level := range []string{"log", "warn", "error", "info", "debug"} {
			if err := console.Set(level, r.makeConsoleFunc(level)); err != nil {
				return err
			}
		}
		if err := r.vm.Set("console", console); err != nil {
			return err
		}
	}

	noop, err := r.vm.RunString("(function () {})")
	if err != nil {
		return err
	}
	flush, ok := goja.AssertFunction(noop)
	if !ok {
		return errors.New("failed to create flush function")
	}
	r.flush = flush

	if err := r.installTimers(); err != nil {
		return err
	}
	if err := r.installHelpers(); err != nil {
		return err
	}
	return r.installWeb()
}

// makeConsoleFunc creates a console function
func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		r.appendConsole(level, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func (r *Runtime) appendConsole(level, msg string) {
	r.consoleMu.Lock()
	if r.limiter != nil && !r.limiter.Allow() {
		r.dropped++
		r.consoleMu.Unlock()
		return
	}
	r.console = append(r.console, LogEntry{
		Level:   level,
		Message: msg,
		Time:    time.Now(),
	})
	r.consoleMu.Unlock()

	r.logger.Debug("console", zap.String("level", level), zap.String("message", msg))
}

// exportValue converts goja value to Go value
func (r *Runtime) exportValue(val goja.Value) any {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

func (r *Runtime) record(helper string) {
	if r.metrics != nil {
		r.metrics.RecordHelperCall(helper)
	}
}

// Reset clears the runtime state
func (r *Runtime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.console = []LogEntry{}
	return r.init()
}

// Close releases resources
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vm = nil
	r.console = nil
	return nil
}
