package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"
	AppLogName        = "events.log"
	HistoryName       = "history"
)

const (
	ColorAlways = "always"
	ColorAuto   = "auto"
	ColorNever  = "never"
)

type Configuration struct {
	configFs afero.Fs
	// dir is the directory on disk backing configFs, empty if there is none.
	dir string

	Prompt             string            `json:"prompt" validate:"required"`
	Color              string            `json:"color" validate:"oneof=always auto never"`
	History            bool              `json:"history"`
	KillOrphanedStages bool              `json:"kill_orphaned_stages"`
	NotifyDone         bool              `json:"notify_done"`
	Aliases            map[string]string `json:"aliases" validate:"dive,keys,required,endkeys,required"`
	Env                []string          `json:"env" validate:"dive,contains=="`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

func (c *Configuration) fs() afero.Fs {
	return c.configFs
}

// OpenAppLog opens the application log in an append only state.
func (c *Configuration) OpenAppLog() (afero.File, error) {
	return c.fs().OpenFile(AppLogName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

func (c *Configuration) ReadAppLog() (afero.File, error) {
	return c.fs().OpenFile(AppLogName, os.O_RDONLY, 0600)
}

// HistoryPath returns the path of the command history file on disk, or ""
// when history is disabled or there's no configuration directory.
func (c *Configuration) HistoryPath() string {
	if !c.History || c.dir == "" {
		return ""
	}
	return filepath.Join(c.dir, HistoryName)
}

// Environ returns the configured environment variables split into keys and
// values.
func (c *Configuration) Environ() map[string]string {
	out := make(map[string]string)
	for _, kv := range c.Env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}

// Default returns the built-in configuration backed by fs.
func Default(fs afero.Fs) *Configuration {
	cfg := defaultConfig()
	cfg.configFs = fs
	return cfg
}
