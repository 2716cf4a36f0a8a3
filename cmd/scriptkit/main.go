package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/GriffinCanCode/scriptkit/internal/app"
	"github.com/GriffinCanCode/scriptkit/internal/config"
	"github.com/GriffinCanCode/scriptkit/internal/logging"
	"github.com/GriffinCanCode/scriptkit/internal/monitoring"
	"github.com/GriffinCanCode/scriptkit/internal/shared/jsvalue"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

const usage = `usage: scriptkit [-config file] [-dev] [-log-level level] [-metrics-file path] <command> [flags]

commands:
  run     run userscripts against a page
  sign    sign request parameters
  leaves  list the deepest leaves of a document
  pack    prepare a multipart request
`

var errUsage = errors.New("invalid usage")

// jsonAPI sorts map keys and leaves query strings unescaped
var jsonAPI = sonic.Config{SortMapKeys: true}.Froze()

// multiFlag collects a repeated string flag
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("scriptkit", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }

	configFile := global.String("config", "", "TOML configuration file")
	dev := global.Bool("dev", false, "Development logging")
	logLevel := global.String("log-level", "", "Override the configured log level")
	metricsFile := global.String("metrics-file", "", "Write Prometheus metrics to this file on exit")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(stderr, "scriptkit: %v\n", err)
		return 1
	}
	if *dev {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}

	logger, err := logging.New(cfg.LoggerConfig())
	if err != nil {
		fmt.Fprintf(stderr, "scriptkit: failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()
	if *logLevel != "" {
		if err := logger.SetLevel(*logLevel); err != nil {
			fmt.Fprintf(stderr, "scriptkit: invalid -log-level %q\n", *logLevel)
			return 2
		}
	}

	metrics := monitoring.NewMetrics()
	a := app.New(cfg, logger, app.WithMetrics(metrics))

	command, rest := global.Arg(0), global.Args()[1:]
	out, err := dispatch(ctx, a, command, rest, stderr)

	if *metricsFile != "" {
		if werr := metrics.WriteTextfile(*metricsFile); werr != nil {
			logger.Error("Failed to write metrics", zap.String("path", *metricsFile), zap.Error(werr))
		}
	}

	if out != nil {
		if werr := writeJSON(stdout, out); werr != nil {
			logger.Error("Failed to write output", zap.Error(werr))
			return 1
		}
	}

	switch {
	case errors.Is(err, errUsage):
		return 2
	case err != nil:
		logger.Error("Command failed", zap.String("command", command), zap.Error(err))
		return 1
	}
	return 0
}

func dispatch(ctx context.Context, a *app.App, command string, args []string, stderr io.Writer) (any, error) {
	switch command {
	case "run":
		return runCommand(ctx, a, args, stderr)
	case "sign":
		return signCommand(a, args, stderr)
	case "leaves":
		return leavesCommand(a, args, stderr)
	case "pack":
		return packCommand(a, args, stderr)
	default:
		fmt.Fprintf(stderr, "scriptkit: unknown command %q\n\n%s", command, usage)
		return nil, errUsage
	}
}

func runCommand(ctx context.Context, a *app.App, args []string, stderr io.Writer) (any, error) {
	fs := newFlagSet("run", stderr)
	var scripts multiFlag
	fs.Var(&scripts, "script", "Script file (repeatable)")
	page := fs.String("page", "", "HTML page to replay")
	runAt := fs.String("run-at", "", "Moment to wait for before running")
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	scripts, err := expandScripts(append(scripts, fs.Args()...))
	if err != nil {
		return nil, err
	}
	if len(scripts) == 0 {
		fmt.Fprintln(stderr, "scriptkit run: at least one -script is required")
		return nil, errUsage
	}

	opts := app.RunOptions{RunAt: *runAt}
	for _, path := range scripts {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read script: %w", err)
		}
		opts.Scripts = append(opts.Scripts, app.Script{Name: filepath.Base(path), Source: string(src)})
	}

	if *page != "" {
		f, err := os.Open(*page)
		if err != nil {
			return nil, fmt.Errorf("failed to open page: %w", err)
		}
		defer f.Close()
		opts.Page = f
	}

	results, err := a.Run(ctx, opts)
	if results == nil {
		return nil, err
	}

	failed := err
	for _, r := range results {
		if r.Error != "" && failed == nil {
			failed = fmt.Errorf("script %s failed: %s", r.Name, r.Error)
		}
	}
	return results, failed
}

func signCommand(a *app.App, args []string, stderr io.Writer) (any, error) {
	fs := newFlagSet("sign", stderr)
	paramsFile := fs.String("params", "", "JSON or YAML file with the parameters")
	imgKey := fs.String("img-key", "", "img key or wbi_img URL")
	subKey := fs.String("sub-key", "", "sub key or wbi_sub URL")
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}

	params := jsvalue.Object{}
	if *paramsFile != "" {
		data, err := os.ReadFile(*paramsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read params: %w", err)
		}
		if params, err = jsvalue.DecodeObject(data); err != nil {
			return nil, err
		}
	}

	res, err := a.Sign(app.SignRequest{Params: params, ImgKey: *imgKey, SubKey: *subKey})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func leavesCommand(a *app.App, args []string, stderr io.Writer) (any, error) {
	fs := newFlagSet("leaves", stderr)
	input := fs.String("input", "", "JSON or YAML file; - reads stdin")
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	if *input == "" {
		fmt.Fprintln(stderr, "scriptkit leaves: -input is required")
		return nil, errUsage
	}

	data, err := readInput(*input)
	if err != nil {
		return nil, err
	}
	leaves, err := a.Leaves(data)
	if err != nil {
		return nil, err
	}
	return leaves, nil
}

func packCommand(a *app.App, args []string, stderr io.Writer) (any, error) {
	fs := newFlagSet("pack", stderr)
	fieldsFile := fs.String("fields", "", "JSON or YAML file with the fields")
	target := fs.String("url", "", "Request URL")
	var fileFlags multiFlag
	fs.Var(&fileFlags, "file", "File part as key=path (repeatable)")
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	if *fieldsFile == "" || *target == "" {
		fmt.Fprintln(stderr, "scriptkit pack: -fields and -url are required")
		return nil, errUsage
	}
	parts := make([][2]string, 0, len(fileFlags))
	for _, arg := range fileFlags {
		key, path, ok := strings.Cut(arg, "=")
		if !ok || key == "" || path == "" {
			fmt.Fprintf(stderr, "scriptkit pack: -file wants key=path, got %q\n", arg)
			return nil, errUsage
		}
		parts = append(parts, [2]string{key, path})
	}

	data, err := readInput(*fieldsFile)
	if err != nil {
		return nil, err
	}
	fields, err := jsvalue.DecodeObject(data)
	if err != nil {
		return nil, err
	}
	files := make([]app.FilePart, 0, len(parts))
	for _, p := range parts {
		data, err := os.ReadFile(p[1])
		if err != nil {
			return nil, fmt.Errorf("failed to read file part: %w", err)
		}
		files = append(files, app.FilePart{Key: p[0], Name: filepath.Base(p[1]), Data: data})
	}

	res, err := a.Pack(fields, files, *target)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// expandScripts expands glob patterns such as scripts/**/*.user.js.
// Plain paths pass through unchanged, so missing files surface as read
// errors.
func expandScripts(patterns []string) ([]string, error) {
	var paths []string
	for _, p := range patterns {
		if !strings.ContainsAny(p, "*?[{") {
			paths = append(paths, p)
			continue
		}
		matches, err := doublestar.FilepathGlob(p)
		if err != nil {
			return nil, fmt.Errorf("invalid script pattern %q: %w", p, err)
		}
		sort.Strings(matches)
		paths = append(paths, matches...)
	}
	return paths, nil
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := jsonAPI.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
