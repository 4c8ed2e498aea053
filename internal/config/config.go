// Package config loads the report configuration from built-in defaults, an
// optional YAML file and DISEASEMAP_ environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"diagonal.works/ksa-disease-mapping/internal/adjacency"
	"diagonal.works/ksa-disease-mapping/internal/casedata"
	"diagonal.works/ksa-disease-mapping/internal/expected"
	"diagonal.works/ksa-disease-mapping/internal/inference/inla"
	"diagonal.works/ksa-disease-mapping/internal/inference/localeb"
)

const (
	EnvPrefix = "DISEASEMAP_"
	// PathEnvVar names a config file when --config is not given.
	PathEnvVar = EnvPrefix + "CONFIG"

	EngineINLA    = "inla"
	EngineLocalEB = localeb.Name
)

// DefaultPaths are searched in order when no path is given.
var DefaultPaths = []string{"diseasemap.yaml", "diseasemap.yml", "config.yaml"}

type Config struct {
	// Disease names the condition mapped, and the default observed column.
	Disease    string           `koanf:"disease" validate:"required"`
	Input      InputConfig      `koanf:"input"`
	Boundaries BoundariesConfig `koanf:"boundaries"`
	Model      ModelConfig      `koanf:"model"`
	Output     OutputConfig     `koanf:"output"`
	Logging    LoggingConfig    `koanf:"logging"`
}

type InputConfig struct {
	Path             string          `koanf:"path" validate:"required"`
	RegionColumn     string          `koanf:"region_column" validate:"required"`
	ObservedColumn   string          `koanf:"observed_column"`
	PopulationColumn string          `koanf:"population_column" validate:"required"`
	Strata           []StratumConfig `koanf:"strata" validate:"dive"`
	// AgeBands and BySex generate strata named <column>_<sex>_<ages>, eg
	// Cancer_f_45-64. Ignored when Strata is set.
	AgeBands []int `koanf:"age_bands" validate:"dive,gt=0"`
	BySex    bool  `koanf:"by_sex"`
}

type StratumConfig struct {
	Name       string `koanf:"name" validate:"required"`
	Observed   string `koanf:"observed" validate:"required"`
	Population string `koanf:"population" validate:"required"`
}

type BoundariesConfig struct {
	Path         string `koanf:"path" validate:"required"`
	NameField    string `koanf:"name_field" validate:"required"`
	CodeField    string `koanf:"code_field"`
	CountryField string `koanf:"country_field"`
	Country      string `koanf:"country"`
}

type ModelConfig struct {
	Engine string `koanf:"engine" validate:"oneof=inla local-eb"`
	// Threshold is the relative risk the exceedance probability is computed
	// against. Required, with no default.
	Threshold  float64 `koanf:"threshold" validate:"required,gt=0"`
	SnapMeters float64 `koanf:"snap_meters" validate:"gte=0"`
	Rscript    string  `koanf:"rscript"`
}

type OutputConfig struct {
	Dir             string `koanf:"dir" validate:"required"`
	MetricsTextfile string `koanf:"metrics_textfile"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

func defaultConfig() *Config {
	return &Config{
		Input: InputConfig{
			RegionColumn:     casedata.DefaultRegionColumn,
			PopulationColumn: casedata.DefaultPopulationColumn,
		},
		Boundaries: BoundariesConfig{
			NameField: "NAME_1",
			CodeField: "ISO_1",
		},
		Model: ModelConfig{
			Engine:     EngineINLA,
			SnapMeters: adjacency.DefaultSnapMeters,
			Rscript:    inla.DefaultRscript,
		},
		Output: OutputConfig{
			Dir: "out",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads and validates the configuration. path may be empty, in which case
// DISEASEMAP_CONFIG and then DefaultPaths are tried, and a missing file is
// not an error. A .env file in the working directory is loaded into the
// environment first, without overriding variables already set.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for callers that override fields before
// validating.
func Read(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.Input.ObservedColumn == "" {
		cfg.Input.ObservedColumn = cfg.Disease
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sections = []string{"input", "boundaries", "model", "output", "logging"}

// envTransform maps DISEASEMAP_MODEL_SNAP_METERS to model.snap_meters. Only
// the first underscore after a section name separates levels.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	for _, s := range sections {
		if strings.HasPrefix(key, s+"_") {
			return s + "." + strings.TrimPrefix(key, s+"_")
		}
	}
	return key
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every failure at once.
func (c *Config) Validate() error {
	return c.validate(validate.Struct(c))
}

// ValidateInputs is Validate without the model threshold, which only the
// report reads.
func (c *Config) ValidateInputs() error {
	return c.validate(validate.StructExcept(c, "Model.Threshold"))
}

func (c *Config) validate(err error) error {
	var messages []string
	if err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			return fmt.Errorf("config: %w", err)
		}
		for _, fe := range errs {
			messages = append(messages, describe(fe))
		}
	}
	if _, err := expected.AgeRanges(c.Input.AgeBands); err != nil {
		messages = append(messages, "Input.AgeBands must be increasing")
	}
	if len(messages) > 0 {
		return fmt.Errorf("config: %s", strings.Join(messages, "; "))
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	}
	return fmt.Sprintf("%s fails %s", field, fe.Tag())
}

// CaseColumns returns the case data columns to read.
func (c *Config) CaseColumns() casedata.Columns {
	columns := casedata.Columns{
		Region:     c.Input.RegionColumn,
		Observed:   c.Input.ObservedColumn,
		Population: c.Input.PopulationColumn,
	}
	switch {
	case len(c.Input.Strata) > 0:
		for _, s := range c.Input.Strata {
			columns.Strata = append(columns.Strata, casedata.StratumColumns(s))
		}
	case len(c.Input.AgeBands) > 0 || c.Input.BySex:
		// Validate has checked the bands.
		ranges, _ := expected.AgeRanges(c.Input.AgeBands)
		columns.Strata = expected.Columns(c.Input.ObservedColumn, c.Input.PopulationColumn, expected.AgeSexStrata(ranges, c.Input.BySex))
	}
	return columns
}
