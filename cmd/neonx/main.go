// neonx runs, assembles, disassembles and serves neon bytecode modules.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/neon/asm"
	"github.com/chazu/neon/manifest"
	"github.com/chazu/neon/server"
	"github.com/chazu/neon/vm"
	"github.com/chazu/neon/vm/dist"
)

// Exit statuses.
const (
	exitOK        = 0
	exitUncaught  = 1
	exitBytecode  = 2
	exitInternal  = 3
	exitUsage     = 4
	listingSuffix = ".neona"
)

var log = commonlog.GetLogger("neon.cli")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	asmIn      string
	out        string
	disasm     string
	serve      bool
	addr       string
	remote     string
	configDir  string
	verbose    bool
	trace      bool
	reportPath string
	offline    bool
}

func run(args []string, stdout, stderr io.Writer) int {
	var o options
	fs := flag.NewFlagSet("neonx", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.asmIn, "asm", "", "Assemble a listing into a module")
	fs.StringVar(&o.out, "o", "", "Output file for -asm (default: input with "+vm.ModuleExt+")")
	fs.StringVar(&o.disasm, "disasm", "", "Print the listing of a module")
	fs.BoolVar(&o.serve, "serve", false, "Start the executor server (gRPC + Connect)")
	fs.StringVar(&o.addr, "addr", "", "Server address (default: [server] address in neon.toml, or "+manifest.DefaultServerAddress+")")
	fs.StringVar(&o.remote, "remote", "", "Run the module on the server at this URL")
	fs.StringVar(&o.configDir, "config", "", "Directory containing neon.toml (default: search upward from .)")
	fs.BoolVar(&o.verbose, "v", false, "Verbose output and execution statistics")
	fs.BoolVar(&o.trace, "trace", false, "Log every executed instruction")
	fs.StringVar(&o.reportPath, "report", "", "Write the fatal outcome of a run as CBOR to this file")
	fs.BoolVar(&o.offline, "offline", false, "Do not clone or fetch git dependencies")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: neonx [options] [module%s [args...]]\n\n", vm.ModuleExt)
		fmt.Fprintf(stderr, "Runs a module. Without a module argument the entry of neon.toml is run.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  neonx hello.neonx                  # run a module\n")
		fmt.Fprintf(stderr, "  neonx -asm hello.neona             # assemble to hello.neonx\n")
		fmt.Fprintf(stderr, "  neonx -disasm hello.neonx          # print its listing\n")
		fmt.Fprintf(stderr, "  neonx -serve -addr :4650           # serve neon.v1.Executor\n")
		fmt.Fprintf(stderr, "  neonx -remote http://host:4650 hello.neonx\n")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	m, err := loadManifest(o.configDir)
	if err != nil {
		fmt.Fprintf(stderr, "neonx: %v\n", err)
		return exitUsage
	}
	configureLogging(m, o.verbose)

	switch {
	case o.asmIn != "":
		return assemble(o, stderr)
	case o.disasm != "":
		return disassemble(o.disasm, stdout, stderr)
	}

	cfg, err := executorConfig(m, o)
	if err != nil {
		fmt.Fprintf(stderr, "neonx: %v\n", err)
		return exitUsage
	}

	if o.serve {
		return serve(m, o, cfg, stderr)
	}

	rest := fs.Args()
	var path string
	switch {
	case len(rest) > 0:
		path, rest = rest[0], rest[1:]
	case m != nil && m.EntryPath() != "":
		path = m.EntryPath()
	default:
		fs.Usage()
		return exitUsage
	}

	if o.remote != "" {
		return runRemote(o, path, stdout, stderr)
	}
	return runModule(o, cfg, path, rest, stdout, stderr)
}

func loadManifest(dir string) (*manifest.Manifest, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	return manifest.FindAndLoad(".")
}

func configureLogging(m *manifest.Manifest, verbose bool) {
	verbosity := 0
	var path *string
	if m != nil {
		verbosity = m.Log.Verbosity
		if m.Log.File != "" {
			p := m.Log.File
			if !filepath.IsAbs(p) {
				p = filepath.Join(m.Dir, p)
			}
			path = &p
		}
	}
	if verbose {
		verbosity++
	}
	commonlog.Configure(verbosity, path)
}

func executorConfig(m *manifest.Manifest, o options) (vm.Config, error) {
	cfg := vm.DefaultConfig()
	if m != nil {
		deps, err := manifest.NewResolver(m, o.offline).Resolve()
		if err != nil {
			return cfg, err
		}
		cfg = m.ExecutorConfig(deps...)
		log.Infof("project %s in %s, %d dependencies", m.Project.Name, m.Dir, len(deps))
	}
	if o.trace {
		cfg.Trace = true
	}
	return cfg, nil
}

// ---------------------------------------------------------------------------
// Assembler and disassembler
// ---------------------------------------------------------------------------

func assemble(o options, stderr io.Writer) int {
	src, err := os.ReadFile(o.asmIn)
	if err != nil {
		fmt.Fprintf(stderr, "neonx: %v\n", err)
		return exitUsage
	}
	m, err := asm.Assemble(string(src), dist.Builtins())
	if err != nil {
		// one line per error, prefixed with the file name
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Fprintf(stderr, "%s:%s\n", o.asmIn, line)
		}
		return exitBytecode
	}

	out := o.out
	if out == "" {
		out = strings.TrimSuffix(o.asmIn, listingSuffix) + vm.ModuleExt
	}
	if err := m.WriteFile(out); err != nil {
		fmt.Fprintf(stderr, "neonx: %v\n", err)
		return exitBytecode
	}
	if o.verbose {
		fmt.Fprintf(stderr, "wrote %s: %s of code, %d strings, %d exception ranges\n",
			out, humanize.Bytes(uint64(len(m.Code))), len(m.Strings), len(m.Exceptions))
	}
	return exitOK
}

func disassemble(path string, stdout, stderr io.Writer) int {
	m, err := vm.ReadModuleFile(path)
	if err != nil {
		return reportLoadError(err, stderr)
	}
	if err := vm.Disassemble(m, stdout, dist.Builtins()); err != nil {
		fmt.Fprintf(stderr, "neonx: bytecode error: %v\n", err)
		return exitBytecode
	}
	return exitOK
}

func reportLoadError(err error, stderr io.Writer) int {
	var be *vm.BytecodeError
	if errors.As(err, &be) {
		fmt.Fprintf(stderr, "neonx: bytecode error: %v\n", err)
		return exitBytecode
	}
	fmt.Fprintf(stderr, "neonx: %v\n", err)
	return exitUsage
}

// ---------------------------------------------------------------------------
// Running
// ---------------------------------------------------------------------------

func runModule(o options, cfg vm.Config, path string, args []string, stdout, stderr io.Writer) int {
	m, err := vm.ReadModuleFile(path)
	if err != nil {
		return reportLoadError(err, stderr)
	}
	// modules next to the main module are found first
	cfg.ModulePaths = append([]string{filepath.Dir(path)}, cfg.ModulePaths...)

	ex := vm.NewExecutor(cfg,
		vm.WithBuiltins(dist.Builtins()),
		vm.WithOutput(stdout),
		vm.WithArgs(args),
	)
	defer ex.Close()

	v, err := ex.Run(m)
	if o.verbose {
		printStats(ex.Stats(), stderr)
	}
	if err == nil {
		v.Release()
		return exitOK
	}

	if o.reportPath != "" {
		if werr := writeReport(o.reportPath, err); werr != nil {
			fmt.Fprintf(stderr, "neonx: writing report: %v\n", werr)
		}
	}
	return exitStatus(err, stderr)
}

// exitStatus prints err the way the runner reports fatal outcomes and
// returns the process status for it.
func exitStatus(err error, stderr io.Writer) int {
	var ue *vm.UncaughtException
	var ee *vm.ExitError
	var be *vm.BytecodeError
	switch {
	case errors.As(err, &ue):
		fmt.Fprint(stderr, ue.Report())
		return exitUncaught
	case errors.As(err, &ee):
		return ee.Code
	case errors.As(err, &be):
		fmt.Fprintf(stderr, "neonx: bytecode error: %v\n", err)
		return exitBytecode
	default:
		fmt.Fprintf(stderr, "neonx: internal error: %v\n", err)
		return exitInternal
	}
}

func writeReport(path string, err error) error {
	data, merr := dist.MarshalReport(dist.NewReport(err))
	if merr != nil {
		return merr
	}
	return os.WriteFile(path, data, 0o644)
}

func printStats(s vm.Stats, w io.Writer) {
	fmt.Fprintf(w, "%s instructions, %s calls, %s builtin calls, %s raises, max depth %d\n",
		humanize.Comma(int64(s.Instructions)),
		humanize.Comma(int64(s.Calls)),
		humanize.Comma(int64(s.Builtins)),
		humanize.Comma(int64(s.Raises)),
		s.MaxDepth)
}

func runRemote(o options, path string, stdout, stderr io.Writer) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "neonx: %v\n", err)
		return exitUsage
	}
	c := server.NewClient(http.DefaultClient, strings.TrimSuffix(o.remote, "/"))
	outcome, err := c.Run(context.Background(), data)
	if err != nil {
		fmt.Fprintf(stderr, "neonx: remote: %v\n", err)
		return exitInternal
	}
	io.WriteString(stdout, outcome.Output)
	switch {
	case outcome.Exception != nil:
		fmt.Fprint(stderr, outcome.Exception.String())
		return exitUncaught
	case outcome.Exited:
		return outcome.ExitCode
	}
	if o.verbose {
		fmt.Fprintf(stderr, "result: %s\n", outcome.Result)
	}
	return exitOK
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

func serve(m *manifest.Manifest, o options, cfg vm.Config, stderr io.Writer) int {
	addr := o.addr
	concurrency := runtime.NumCPU()
	opts := []server.ServiceOption{server.WithConfig(cfg)}
	if m != nil {
		if addr == "" {
			addr = m.Server.Address
		}
		if m.Server.MaxConcurrent > 0 {
			concurrency = m.Server.MaxConcurrent
		}
		opts = append(opts, server.WithPolicy(m.CapabilityPolicy()))
	}
	if addr == "" {
		addr = manifest.DefaultServerAddress
	}

	srv := server.New(concurrency, opts...)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(addr) }()

	select {
	case err := <-errc:
		if err != nil {
			fmt.Fprintf(stderr, "neonx: %v\n", err)
			return exitUsage
		}
	case <-ctx.Done():
		log.Notice("shutting down")
		if err := srv.Shutdown(context.Background()); err != nil {
			fmt.Fprintf(stderr, "neonx: %v\n", err)
			return exitInternal
		}
	}
	return exitOK
}
