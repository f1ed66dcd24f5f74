package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"gmkp_lp_based/src/gmkp_solve/gmkp"
)

// Config holds the run settings that can be kept in a JSON file. Command
// line flags win over the file.
type Config struct {
	Engine    string        `mapstructure:"engine"`
	TimeLimit time.Duration `mapstructure:"timeLimit"`
	StopRule  string        `mapstructure:"stopRule"`
	Tolerance float64       `mapstructure:"tolerance"`
	Parallel  int           `mapstructure:"parallel"`
	ModelDir  string        `mapstructure:"modelDir"`
}

func defaultConfig() Config {
	opts := gmkp.DefaultDivingOptions()
	return Config{
		Engine:    "simplex",
		StopRule:  opts.StopRule.String(),
		Tolerance: opts.Tolerance,
		Parallel:  1,
	}
}

func loadConfig(filename string, cfg *Config) error {
	bytes, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	var inputJson map[string]any
	if err := json.Unmarshal(bytes, &inputJson); err != nil {
		return errors.Wrapf(err, "cannot parse config %s", filename)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused: true,
		Result:      cfg,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(inputJson); err != nil {
		return errors.Wrapf(err, "cannot decode config %s", filename)
	}
	return nil
}

// divingOptions converts the settings into the options of a dive.
func (cfg *Config) divingOptions() (gmkp.DivingOptions, error) {
	opts := gmkp.DefaultDivingOptions()
	rule, err := gmkp.ParseStopRule(cfg.StopRule)
	if err != nil {
		return opts, err
	}
	if cfg.TimeLimit < 0 {
		return opts, errors.Errorf("negative time limit %v", cfg.TimeLimit)
	}
	opts.StopRule = rule
	opts.TimeBudget = cfg.TimeLimit
	if cfg.Tolerance > 0 {
		opts.Tolerance = cfg.Tolerance
	}
	return opts, nil
}
