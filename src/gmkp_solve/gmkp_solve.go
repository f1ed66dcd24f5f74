package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"time"

	log "github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"gmkp_lp_based/src/gmkp_solve/gmkp"
	"gmkp_lp_based/src/gmkp_solve/golpengine"
	"gmkp_lp_based/src/gmkp_solve/highsengine"
)

var engines = map[string]func() gmkp.Engine{
	"simplex": func() gmkp.Engine { return gmkp.NewSimplexEngine() },
	"highs":   func() gmkp.Engine { return highsengine.New() },
	"golp":    func() gmkp.Engine { return golpengine.New() },
}

func newEngine(name string) (gmkp.Engine, error) {
	newFn, ok := engines[name]
	if !ok {
		names := lo.Keys(engines)
		slices.Sort(names)
		return nil, errors.Wrapf(gmkp.ErrUnknownEngine, "%q (available: %s)", name, strings.Join(names, ", "))
	}
	return newFn(), nil
}

func loadInstance(path string) (*gmkp.Instance, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return gmkp.LoadInstanceJSON(path)
	}
	return gmkp.LoadInstance(path)
}

func writeModel(dir, path string, inst *gmkp.Instance) error {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".lp"
	file, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer file.Close()
	return inst.BuildModel().WriteLP(file, nil)
}

func printDiving(path string, res *gmkp.Result, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "An error occured while diving on instance \"%v\": %v\n", path, err)
		if res == nil || res.Status != gmkp.BudgetExceeded {
			return
		}
	}
	fmt.Printf("Instance %v:\n%v\n", path, res)
}

func main() {
	var solveDiving, solveExact, solveGreedy bool
	var configPath string
	var paths []string
	cfg := defaultConfig()
	flags := cfg

	flag.Func("inst", "a list of instance file paths, separated by a whitespace", func(s string) error {
		paths = strings.Fields(s)
		return nil
	})
	flag.StringVar(&configPath, "config", "", "A JSON file with the run settings")
	flag.BoolVar(&solveDiving, "diving", false, "Solve with the LP based diving heuristic")
	flag.BoolVar(&solveExact, "exact", false, "Solve the integer program with the HiGHS solver")
	flag.BoolVar(&solveGreedy, "greedy", false, "Solve with the greedy heuristic")
	flag.StringVar(&flags.Engine, "engine", cfg.Engine, "The LP engine used by diving: simplex, highs or golp")
	flag.DurationVar(&flags.TimeLimit, "time", cfg.TimeLimit, "Time budget of every dive, 0 for no limit")
	flag.StringVar(&flags.StopRule, "stop", cfg.StopRule, "When the dive stops: vector (all variables integral) or objective")
	flag.Float64Var(&flags.Tolerance, "tol", cfg.Tolerance, "Integrality tolerance")
	flag.IntVar(&flags.Parallel, "parallel", cfg.Parallel, "Number of instances dived on concurrently")
	flag.StringVar(&flags.ModelDir, "model", "", "Write the relaxation of every instance in LP format to this directory")

	flag.Parse()
	defer log.Flush()

	if configPath != "" {
		if err := loadConfig(configPath, &cfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "engine":
			cfg.Engine = flags.Engine
		case "time":
			cfg.TimeLimit = flags.TimeLimit
		case "stop":
			cfg.StopRule = flags.StopRule
		case "tol":
			cfg.Tolerance = flags.Tolerance
		case "parallel":
			cfg.Parallel = flags.Parallel
		case "model":
			cfg.ModelDir = flags.ModelDir
		}
	})

	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "Must specify at least a path")
		os.Exit(1)
	}
	if !solveDiving && !solveExact && !solveGreedy {
		fmt.Fprintln(os.Stderr, "Must specify a solving algorithm")
		os.Exit(1)
	}
	opts, err := cfg.divingOptions()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	engine, err := newEngine(cfg.Engine)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var loaded []string
	var instances []*gmkp.Instance
	for _, p := range paths {
		inst, err := loadInstance(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error for instance \"%v\": %v. Skipping...\n", p, err)
			continue
		}
		if cfg.ModelDir != "" {
			if err := writeModel(cfg.ModelDir, p, inst); err != nil {
				fmt.Fprintf(os.Stderr, "Cannot write the model of instance \"%v\": %v\n", p, err)
			}
		}
		loaded = append(loaded, p)
		instances = append(instances, inst)
	}

	if solveDiving && cfg.Parallel > 1 {
		fmt.Printf("Diving on %d instances, %d at a time...\n", len(instances), cfg.Parallel)
		for _, br := range gmkp.SolveBatch(ctx, engine, instances, opts, cfg.Parallel) {
			printDiving(loaded[br.Index], br.Result, br.Err)
		}
		fmt.Println()
	}

	for idx, inst := range instances {
		p := loaded[idx]
		if solveDiving && cfg.Parallel <= 1 {
			fmt.Printf("Diving on %v...\n", p)
			res, err := inst.SolveDiving(ctx, engine, opts)
			printDiving(p, res, err)
		}
		if solveExact {
			fmt.Printf("Solving %v...\n", p)
			start := time.Now()
			sol, check, err := highsengine.SolveExact(inst)
			if err != nil {
				fmt.Fprintf(os.Stderr, "An error occured while solving with HiGHS instance \"%v\": %v\n", p, err)
			} else {
				fmt.Printf("Instance %v (%v, %v):\n%v\n", p, check.Describe(), time.Since(start), sol)
			}
		}
		if solveGreedy {
			sol := inst.Greedy()
			fmt.Printf("Instance %v (greedy, %v):\n%v\n", p, inst.CheckSolution(sol.Vars(), sol.TotalProfit).Describe(), sol)
		}
		fmt.Println()
	}
}
