// Command jverify statically verifies JVM class files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/logrusorgru/aurora"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/daimatz/jverify/pkg/classfile"
	"github.com/daimatz/jverify/pkg/config"
	"github.com/daimatz/jverify/pkg/repository"
	"github.com/daimatz/jverify/pkg/verifier"
	"github.com/daimatz/jverify/pkg/watch"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Load settings from a jverify.toml `FILE`",
	}
	classPathFlag = &cli.StringSliceFlag{
		Name:    "classpath",
		Aliases: []string{"cp"},
		Usage:   "Class path directory, may be repeated",
	}
	jarFlag = &cli.StringSliceFlag{
		Name:  "jar",
		Usage: "Jar archive to load classes from, may be repeated",
	}
	jmodFlag = &cli.StringFlag{
		Name:  "jmod",
		Usage: "Path of java.base.jmod, or \"none\" (default: auto-detect)",
	}
	warningsFlag = &cli.BoolFlag{
		Name:    "warnings",
		Aliases: []string{"w"},
		Usage:   "Report local variable table mismatches as warnings",
	}
	parallelFlag = &cli.IntFlag{
		Name:    "parallel",
		Aliases: []string{"j"},
		Usage:   "Number of classes verified at once (default: number of CPUs)",
	}
	watchFlag = &cli.BoolFlag{
		Name:  "watch",
		Usage: "Keep running and re-verify classes when their files change",
	}
	verboseFlag = &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Log at debug level",
	}
	noColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}
)

func main() {
	app := &cli.App{
		Name:      "jverify",
		Usage:     "statically verify JVM class files",
		ArgsUsage: "<class name or .class file>...",
		Flags: []cli.Flag{
			configFlag,
			classPathFlag,
			jarFlag,
			jmodFlag,
			warningsFlag,
			parallelFlag,
			watchFlag,
			verboseFlag,
			noColorFlag,
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := ctx.String(configFlag.Name); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if ctx.IsSet(classPathFlag.Name) {
		cfg.Repository.ClassPath = ctx.StringSlice(classPathFlag.Name)
	}
	if ctx.IsSet(jarFlag.Name) {
		cfg.Repository.Jars = ctx.StringSlice(jarFlag.Name)
	}
	if ctx.IsSet(jmodFlag.Name) {
		cfg.Repository.Jmod = ctx.String(jmodFlag.Name)
	}
	if ctx.IsSet(warningsFlag.Name) {
		cfg.Verifier.CollectWarnings = ctx.Bool(warningsFlag.Name)
	}
	if ctx.IsSet(parallelFlag.Name) {
		cfg.Verifier.Parallelism = ctx.Int(parallelFlag.Name)
	}
	if ctx.Bool(verboseFlag.Name) {
		cfg.Log.Level = "debug"
	}
	return cfg, cfg.Validate()
}

// target resolves a command line argument to a class name. A .class file
// also contributes the class path root it lives under.
func target(arg string) (name, root string, err error) {
	if !strings.HasSuffix(arg, ".class") {
		return repository.InternalName(arg), "", nil
	}
	cf, err := classfile.ParseFile(arg)
	if err != nil {
		return "", "", errors.Wrapf(err, "cannot read %s", arg)
	}
	if name, err = cf.ClassName(); err != nil {
		return "", "", errors.Wrapf(err, "%s", arg)
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", "", err
	}
	root = filepath.Dir(abs)
	if pkg := filepath.Dir(filepath.FromSlash(name)); pkg != "." {
		if trimmed, ok := strings.CutSuffix(root, string(filepath.Separator)+pkg); ok {
			root = trimmed
		}
	}
	return name, root, nil
}

func run(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return cli.Exit("no classes given", 2)
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	var names []string
	for _, arg := range ctx.Args().Slice() {
		name, root, err := target(arg)
		if err != nil {
			return err
		}
		names = append(names, name)
		if root != "" {
			cfg.Repository.ClassPath = append([]string{root}, cfg.Repository.ClassPath...)
		}
	}

	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	repo, err := cfg.OpenRepository()
	if err != nil {
		return err
	}
	factory := verifier.NewFactory(repo, cfg.FactoryOptions(logger)...)
	logger.Debug("verifying", zap.String("run", factory.RunID()), zap.Strings("classes", names))

	au := aurora.NewAurora(!ctx.Bool(noColorFlag.Name))
	sigctx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reports, err := factory.VerifyAll(sigctx, names)
	if err != nil {
		return err
	}
	render(os.Stdout, au, reports)

	if ctx.Bool(watchFlag.Name) {
		return watchLoop(sigctx, cfg, factory, names, logger, au)
	}
	for _, rep := range reports {
		if rep.Rejected() {
			return cli.Exit("", 1)
		}
	}
	return nil
}

// watchLoop re-verifies names whenever a class file under the class path
// changes.
func watchLoop(ctx context.Context, cfg *config.Config, factory *verifier.Factory, names []string, logger *zap.Logger, au aurora.Aurora) error {
	var dirs []string
	for _, dir := range cfg.Repository.ClassPath {
		if !filepath.IsAbs(dir) && cfg.Dir != "" {
			dir = filepath.Join(cfg.Dir, dir)
		}
		dirs = append(dirs, dir)
	}
	w, err := watch.New(factory, logger, dirs...)
	if err != nil {
		return err
	}
	defer w.Close()

	changed := make(chan string, 64)
	w.OnEvict = func(name string) {
		select {
		case changed <- name:
		default:
		}
	}
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	fmt.Fprintf(os.Stdout, "watching %s\n", strings.Join(dirs, ", "))
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case name := <-changed:
			fmt.Fprintf(os.Stdout, "\n%s changed\n", au.Bold(name))
			// Results of dependents survive an eviction, so drop the targets too.
			for _, n := range names {
				if n != name {
					factory.Evict(n)
				}
			}
			reports, err := factory.VerifyAll(ctx, names)
			if err != nil {
				logger.Warn("re-verification failed", zap.Error(err))
				continue
			}
			render(os.Stdout, au, reports)
		}
	}
}
