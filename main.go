package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"lilac/internal/lilac"
)

func main() {
	args := os.Args[1:]

	var pkgs []string
	annotateMode := false
	for _, arg := range args {
		switch arg {
		case "-h", "--help":
			printHelp()
			return
		case "-v", "--version":
			fmt.Println(lilac.Version())
			return
		case "-d", "--debug":
			lilac.Debug = true
		case "annotate":
			annotateMode = true
		default:
			pkgs = append(pkgs, arg)
		}
	}

	cfg, err := lilac.FindConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "lilac: %v\n", err)
		os.Exit(1)
	}

	if annotateMode {
		if err := runAnnotate(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "lilac: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, pkgs); err != nil {
		fmt.Fprintf(os.Stderr, "lilac: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("Usage: lilac [options] [pkgbase...]")
	fmt.Println()
	fmt.Println("With no arguments, runs a full detection-and-build cycle.")
	fmt.Println("With pkgbase arguments, rebuilds exactly those packages and their dependencies.")
	fmt.Println()
	fmt.Println("Subcommands:")
	fmt.Println("  annotate    filter stdin, tagging lines whose first word is a known pkgbase")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -d, --debug      verbose debug output")
	fmt.Println("  -v, --version    version information")
}

// runAnnotate is the maintainer annotator filter: stdin to stdout, known
// packages tagged with their maintainers' handles.
func runAnnotate(cfg *lilac.Config) error {
	recipes, _, err := lilac.LoadRecipes(cfg.RepoDir())
	if err != nil {
		return err
	}
	return lilac.Annotate(os.Stdin, os.Stdout, lilac.MaintainerHandles(recipes))
}

// run performs one locked orchestrator invocation. Build failures are
// per-package business and never bubble up here; a non-nil return means
// setup failed or the store could not be saved.
func run(cfg *lilac.Config, pkgs []string) error {
	// serialize against other instances of ourselves
	lockPath := filepath.Join(cfg.RepoDir(), ".lilac.lock")
	lock, err := lilac.AcquireLock(lockPath)
	if err != nil {
		return err
	}
	defer lock.Release()

	cfg.ExportEnv()
	prefixOwnPath()
	lilac.SetPkgSuffixes(cfg.List("repository.pkg_suffixes"))

	if err := lilac.SetupSubreaper(); err != nil {
		fmt.Fprintf(os.Stderr, "lilac: cannot become subreaper: %v\n", err)
	}

	// log/<ISO-timestamp>/ holds this run's main log and per-build logs
	logRoot := filepath.Join(cfg.RepoDir(), "log")
	logDir := filepath.Join(logRoot, time.Now().Format("2006-01-02T15:04:05"))
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("cannot create log dir: %w", err)
	}
	if err := redirectMainLog(filepath.Join(logDir, "lilac-main.log")); err != nil {
		return err
	}

	// bind-mount sources must exist before any build touches them
	for _, m := range cfg.List("lilac.bindmounts") {
		src := m
		if i := strings.IndexByte(m, ':'); i > 0 {
			src = m[:i]
		}
		if err := os.MkdirAll(src, 0o755); err != nil {
			return fmt.Errorf("cannot create bindmount source %s: %w", src, err)
		}
	}

	store, err := lilac.LoadStore(filepath.Join(cfg.RepoDir(), ".lilac-store.json"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "lilac: interrupt received, finishing up")
		for lilac.InCriticalSection() {
			time.Sleep(100 * time.Millisecond)
		}
		cancel()
	}()

	execCtx := lilac.NewExecutor(ctx)

	mirror, err := lilac.NewMirrorClient(cfg)
	if err != nil {
		return err
	}

	blog, err := lilac.OpenBuildLogger(cfg.RepoDir())
	if err != nil {
		return err
	}
	defer blog.Close()

	destDir := cfg.Get("repository.destdir")
	deps := lilac.CycleDeps{
		VCS:     &lilac.GitDriver{RepoDir: cfg.RepoDir(), Exec: execCtx},
		Checker: &lilac.NvChecker{RepoDir: cfg.RepoDir(), Proxy: cfg.Get("nvchecker.proxy"), Exec: execCtx},
		Builder: &lilac.CmdBuilder{
			Command:        buildCommand(cfg),
			Exec:           execCtx,
			RepoDB:         &lilac.DirRepoDB{Dir: destDir},
			OfficialGroups: officialGroups(cfg),
		},
		Publisher: &lilac.Publisher{
			DestDir: destDir,
			GPGKey:  cfg.Get("repository.gpg_key"),
			Exec:    execCtx,
			Mirror:  mirror,
		},
		Mail:     &lilac.SendmailSender{From: mailFrom(cfg), Exec: execCtx},
		BuildLog: blog,
		LogDir:   logDir,
	}

	cycle := lilac.NewCycle(ctx, cfg, store, deps)
	cycleErr := cycle.Run(pkgs)
	if cycleErr != nil {
		// already reported inside; the store still gets saved below
		fmt.Fprintf(os.Stderr, "lilac: cycle error: %v\n", cycleErr)
	}

	if err := store.Save(); err != nil {
		return fmt.Errorf("cannot save store: %w", err)
	}
	return nil
}

func buildCommand(cfg *lilac.Config) []string {
	if cmd := cfg.List("lilac.build_command"); len(cmd) > 0 {
		return cmd
	}
	return []string{"extra-x86_64-build", "--"}
}

func officialGroups(cfg *lilac.Config) map[string]struct{} {
	out := make(map[string]struct{})
	for _, g := range cfg.List("repository.official_groups") {
		out[g] = struct{}{}
	}
	return out
}

func mailFrom(cfg *lilac.Config) string {
	if from := cfg.Get("lilac.email"); from != "" {
		return fmt.Sprintf("%s <%s>", cfg.Get("lilac.name"), from)
	}
	return cfg.Get("lilac.name")
}

// prefixOwnPath puts the directory holding this binary first on PATH so
// builds find our helper tools before anything else.
func prefixOwnPath() {
	self, err := os.Executable()
	if err != nil {
		return
	}
	dir := filepath.Dir(self)
	os.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

// redirectMainLog sends our own stdout/stderr into lilac-main.log when not
// attached to a terminal, so cron runs leave a full trace.
func redirectMainLog(path string) error {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("cannot open main log: %w", err)
	}
	if err := unix.Dup2(int(f.Fd()), 1); err != nil {
		return err
	}
	return unix.Dup2(int(f.Fd()), 2)
}
