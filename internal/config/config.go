// Package config handles loading and validation of the modelpack pipeline
// configuration.
//
// Configuration is assembled from three layers, lowest precedence first:
//
//  1. Built-in defaults — the fixed constants of the packaging pipeline
//     (base image, model URL, model path, env var name, port, launch command).
//  2. modelpack.json — an optional JSONC file in the build context directory.
//     JSONC (JSON with Comments) is parsed via github.com/tidwall/jsonc so
//     config files can carry inline documentation.
//  3. Environment variables — MODELPACK_* keys, optionally loaded from a
//     .env file in the build context via github.com/joho/godotenv.
//
// A missing modelpack.json is not an error: the defaults describe a complete
// pipeline. An unreadable or syntactically invalid file is fatal.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"

	"github.com/mmr-tortoise/modelpack/internal/model"
)

// Built-in pipeline defaults. These are the fixed values of the packaging
// recipe: a Python runtime serving a GPT4All model over port 8000.
const (
	// DefaultConfigFile is the config file name looked up in the build
	// context directory.
	DefaultConfigFile = "modelpack.json"

	// DefaultName is the logical name of the packaged server, used to
	// derive the default image tag.
	DefaultName = "gpt4all-groovy"

	// DefaultBaseImage is the base runtime image. It must provide a
	// Python interpreter matching the application's requirements.
	DefaultBaseImage = "python:3.11-slim"

	// DefaultWorkdir is the working directory established inside the image.
	DefaultWorkdir = "/app"

	// DefaultManifest is the dependency manifest file name, relative to
	// the build context directory.
	DefaultManifest = "requirements.txt"

	// DefaultPort is the single network port declared reachable.
	DefaultPort = 8000

	// DefaultModelURL is the fixed download location of the model binary.
	DefaultModelURL = "https://gpt4all.io/models/ggml-gpt4all-j-v1.3-groovy.bin"

	// DefaultModelPath is the in-image path the model binary is
	// materialized at.
	DefaultModelPath = "/models/ggml-gpt4all-j-v1.3-groovy.bin"

	// DefaultModelEnvVar is the environment variable published in the
	// image, consumed by the application to locate the model file.
	DefaultModelEnvVar = "GPT4ALL_MODEL_PATH"

	// DefaultEntrypoint is the ASGI application reference passed to the
	// server process, in "module:attribute" form.
	DefaultEntrypoint = "app:app"
)

// Environment variable keys recognized as config overrides. These take
// precedence over both defaults and modelpack.json values.
const (
	EnvBaseImage = "MODELPACK_BASE_IMAGE"
	EnvModelURL  = "MODELPACK_MODEL_URL"
	EnvModelPath = "MODELPACK_MODEL_PATH"
	EnvPort      = "MODELPACK_PORT"
	EnvTag       = "MODELPACK_TAG"
)

// Config is the fully resolved pipeline configuration. Every field is
// populated after Load returns — callers never need to re-apply defaults.
type Config struct {
	// Name is the logical name of the packaged server.
	Name string `json:"name"`

	// Tag is the image reference the build is tagged with.
	// Defaults to "modelpack/<name>:latest".
	Tag string `json:"tag,omitempty"`

	// BaseImage is the base runtime image for the build.
	BaseImage string `json:"baseImage"`

	// Workdir is the working directory established inside the image.
	Workdir string `json:"workdir"`

	// Manifest is the dependency manifest path, relative to the build
	// context directory.
	Manifest string `json:"manifest"`

	// Model describes the pretrained model binary: where it is fetched
	// from, where it lands in the image, and the env var pointing at it.
	Model model.ModelArtifact `json:"model"`

	// Port is the single network port declared reachable.
	Port int `json:"port"`

	// Entrypoint is the ASGI application reference ("module:attribute")
	// the server process is started with.
	Entrypoint string `json:"entrypoint,omitempty"`

	// Command is the full launch command registered in the image. When
	// empty, it is derived from Entrypoint and Port as a uvicorn
	// invocation bound to all interfaces.
	Command []string `json:"command,omitempty"`
}

// base returns the built-in defaults with derived fields (Tag, Command)
// left empty. Load starts from this so derivation happens exactly once,
// after every override layer is applied — deriving earlier would bake in
// the default name and port and mask file or env overrides.
func base() *Config {
	return &Config{
		Name:      DefaultName,
		BaseImage: DefaultBaseImage,
		Workdir:   DefaultWorkdir,
		Manifest:  DefaultManifest,
		Model: model.ModelArtifact{
			URL:    DefaultModelURL,
			Path:   DefaultModelPath,
			EnvVar: DefaultModelEnvVar,
		},
		Port:       DefaultPort,
		Entrypoint: DefaultEntrypoint,
	}
}

// Default returns a Config populated entirely from the built-in defaults.
func Default() *Config {
	cfg := base()
	cfg.applyDerived()
	return cfg
}

// Load assembles the pipeline configuration for the given build context
// directory. configPath overrides the default modelpack.json lookup when
// non-empty; a missing file at the default location falls back to the
// built-in defaults, but a missing file at an explicit --config path is
// an error.
//
// Returns a CLIError with ExitConfigError on unreadable or invalid files.
func Load(contextDir, configPath string) (*Config, error) {
	cfg := base()

	explicit := configPath != ""
	if !explicit {
		configPath = filepath.Join(contextDir, DefaultConfigFile)
	}

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Strip JSONC comments (// and /* */) and trailing commas before
		// parsing with the standard encoding/json.
		if jsonErr := json.Unmarshal(jsonc.ToJSON(data), cfg); jsonErr != nil {
			return nil, model.WrapCLIError(
				model.ExitConfigError,
				fmt.Sprintf("invalid config file %s", configPath),
				jsonErr,
			)
		}
	case os.IsNotExist(err) && !explicit:
		// No modelpack.json in the context — the defaults are complete.
	default:
		return nil, model.WrapCLIError(
			model.ExitConfigError,
			fmt.Sprintf("failed to read config file %s", configPath),
			err,
		)
	}

	// Layer 3: environment overrides. A .env file in the build context is
	// loaded first (without clobbering variables already set in the
	// process environment — godotenv.Load never overrides existing keys).
	envFile := filepath.Join(contextDir, ".env")
	if _, statErr := os.Stat(envFile); statErr == nil {
		if loadErr := godotenv.Load(envFile); loadErr != nil {
			return nil, model.WrapCLIError(
				model.ExitConfigError,
				fmt.Sprintf("failed to load env file %s", envFile),
				loadErr,
			)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError, "invalid pipeline configuration", err)
	}
	return cfg, nil
}

// applyEnv overlays MODELPACK_* environment variables onto the config.
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvBaseImage); v != "" {
		c.BaseImage = v
	}
	if v := os.Getenv(EnvModelURL); v != "" {
		c.Model.URL = v
	}
	if v := os.Getenv(EnvModelPath); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv(EnvTag); v != "" {
		c.Tag = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return model.WrapCLIError(
				model.ExitConfigError,
				fmt.Sprintf("invalid %s value %q", EnvPort, v),
				err,
			)
		}
		c.Port = port
	}
	return nil
}

// applyDerived fills fields whose defaults depend on other fields.
// Called after all layers are applied so the derivation sees final values.
func (c *Config) applyDerived() {
	if c.Tag == "" {
		c.Tag = "modelpack/" + c.Name + ":latest"
	}
	if c.Entrypoint == "" {
		c.Entrypoint = DefaultEntrypoint
	}
	if len(c.Command) == 0 {
		// uvicorn bound to all interfaces on the declared port — the
		// launch command registered in the image, not executed at build time.
		c.Command = []string{
			"uvicorn", c.Entrypoint,
			"--host", "0.0.0.0",
			"--port", strconv.Itoa(c.Port),
		}
	}
}

// Validate checks the resolved configuration for internal consistency.
func (c *Config) Validate() error {
	if err := model.ValidateName(c.Name); err != nil {
		return err
	}
	if c.BaseImage == "" {
		return fmt.Errorf("base image must not be empty")
	}
	if c.Workdir == "" {
		return fmt.Errorf("workdir must not be empty")
	}
	if c.Manifest == "" {
		return fmt.Errorf("manifest path must not be empty")
	}
	if filepath.IsAbs(c.Manifest) {
		return fmt.Errorf("manifest path %q must be relative to the build context", c.Manifest)
	}
	if err := model.ValidatePort(c.Port); err != nil {
		return err
	}
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if len(c.Command) == 0 {
		return fmt.Errorf("launch command must not be empty")
	}
	return nil
}
