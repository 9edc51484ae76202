// Command upd builds the outputs described by a project's
// updfile.json, running only the commands whose inputs changed since
// the last run.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jeanlauliac/upd/internal/dircache"
	"github.com/jeanlauliac/upd/internal/executor"
	"github.com/jeanlauliac/upd/internal/hashcache"
	"github.com/jeanlauliac/upd/internal/manifest"
	"github.com/jeanlauliac/upd/internal/pathglob"
	"github.com/jeanlauliac/upd/internal/rootfind"
	"github.com/jeanlauliac/upd/internal/upath"
	"github.com/jeanlauliac/upd/internal/updatelog"
	"github.com/jeanlauliac/upd/internal/updatemap"
	"github.com/jeanlauliac/upd/internal/updateplan"
	"golang.org/x/sys/unix"
)

const logFileName = ".upd/log"

func usage(fset *flag.FlagSet, helpText string) func() {
	return func() {
		fmt.Fprintln(os.Stderr, helpText)
		fmt.Fprintf(os.Stderr, "Flags for upd %s:\n", fset.Name())
		fset.PrintDefaults()
	}
}

// bumpRlimitNOFILE raises the process's open-file limit to the
// kernel's ceiling, since a build can legitimately hold one pty pair
// open per worker plus one fifo per in-flight update.
func bumpRlimitNOFILE() error {
	fileMax, err := readProcUint("/proc/sys/fs/file-max")
	if err != nil {
		return err
	}
	nrOpen, err := readProcUint("/proc/sys/fs/nr_open")
	if err != nil {
		return err
	}
	max := fileMax
	if nrOpen < max {
		max = nrOpen
	}
	set := unix.Rlimit{Cur: max, Max: max}
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &set)
}

func readProcUint(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 0, 64)
}

const buildHelp = `upd build [-flags] [target ...]

Build the given targets, or every target in the manifest if none are
given.

Example:
  % upd build -j 4 a.o b.o
`

func cmdbuild(workingPath string, args []string) error {
	fset := flag.NewFlagSet("build", flag.ExitOnError)
	var (
		concurrencyFlag = fset.String("concurrency", "auto", "number of subprocesses to run in parallel, or \"auto\"")
		jFlag           = fset.String("j", "auto", "shorthand for -concurrency")
		verbose         = fset.Bool("v", false, "print each command line before running it")
	)
	fset.Usage = usage(fset, buildHelp)
	fset.Parse(args)

	concurrencyStr := *concurrencyFlag
	if *jFlag != "auto" {
		concurrencyStr = *jFlag
	}
	concurrency, err := manifest.ParseConcurrency(concurrencyStr)
	if err != nil {
		return err
	}

	rootPath, err := rootfind.Find(workingPath)
	if err != nil {
		return err
	}

	m, err := manifest.ReadFromFile(rootPath)
	if err != nil {
		return err
	}

	om, err := updatemap.Generate(rootPath, m, pathglob.OSDirReader{})
	if err != nil {
		return err
	}

	plan := updateplan.New()
	targets, err := resolveTargets(fset.Args(), om, rootPath, workingPath)
	if err != nil {
		return err
	}
	for _, localTargetPath := range targets {
		updateplan.AddTarget(plan, om.OutputFilesByPath, localTargetPath)
	}

	if err := bumpRlimitNOFILE(); err != nil {
		log.Printf("warning: bumping RLIMIT_NOFILE failed: %v", err)
	}

	dirCache := &dircache.Cache{RootPath: rootPath}
	hashCache := &hashcache.Cache{}
	logPath := filepath.Join(rootPath, logFileName)
	logCache, err := updatelog.Open(logPath)
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, "", 0)
	opts := executor.Options{
		RootPath:    rootPath,
		WorkingPath: workingPath,
		Concurrency: concurrency,
		Verbose:     *verbose,
	}
	runErr := executor.Run(logger, opts, m, om, plan, dirCache, hashCache, logCache)
	if err := logCache.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if err := updatelog.Rewrite(logPath, logCache.Records()); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// resolveTargets converts args (paths as given on the command line,
// relative to workingPath) to local output paths. With no args, every
// output in the update map is a target, in sorted order for
// deterministic scheduling.
func resolveTargets(args []string, om *updatemap.Map, rootPath, workingPath string) ([]string, error) {
	if len(args) == 0 {
		all := make([]string, 0, len(om.OutputFilesByPath))
		for localPath := range om.OutputFilesByPath {
			all = append(all, localPath)
		}
		sort.Strings(all)
		return all, nil
	}
	targets := make([]string, 0, len(args))
	for _, arg := range args {
		localPath, err := upath.GetLocal(rootPath, arg, workingPath)
		if err != nil {
			return nil, err
		}
		targets = append(targets, localPath)
	}
	return targets, nil
}

func funcmain() error {
	flag.Parse()
	args := flag.Args()
	verb := "build"
	if len(args) > 0 {
		verb, args = args[0], args[1:]
	}

	workingPath, err := os.Getwd()
	if err != nil {
		return err
	}

	switch verb {
	case "build":
		return cmdbuild(workingPath, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintf(os.Stderr, "syntax: upd <command> [options]\n")
		os.Exit(2)
	}
	return nil
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
