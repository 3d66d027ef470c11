// Package config layers defaults, an optional config file, PARLERTTS_*
// environment variables, and command-line flags into one Config value.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths      PathsConfig      `mapstructure:"paths"`
	Server     ServerConfig     `mapstructure:"server"`
	Generation GenerationConfig `mapstructure:"generation"`
	LogLevel   string           `mapstructure:"log_level"`
	LogFormat  string           `mapstructure:"log_format"`
	LogFile    string           `mapstructure:"log_file"`
}

type PathsConfig struct {
	ModelDir  string `mapstructure:"model_dir"`
	PublicDir string `mapstructure:"public_dir"`
	AudioDir  string `mapstructure:"audio_dir"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
	PersistAudio    bool   `mapstructure:"persist_audio"`
}

type GenerationConfig struct {
	Repo               string  `mapstructure:"repo"`
	DefaultDescription string  `mapstructure:"default_description"`
	Temperature        float64 `mapstructure:"temperature"`
	Seed               uint64  `mapstructure:"seed"`
	TopP               float64 `mapstructure:"top_p"`
	MaxSteps           int     `mapstructure:"max_steps"`
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			ModelDir:  "models/parler-tts-large-v1",
			PublicDir: "public",
			AudioDir:  "public/audio",
		},
		Server: ServerConfig{
			ListenAddr:      ":8039",
			Workers:         2,
			RequestTimeout:  300,
			ShutdownTimeout: 30,
			MaxTextBytes:    4096,
			PersistAudio:    true,
		},
		Generation: GenerationConfig{
			Repo:               "parler-tts/parler-tts-large-v1",
			DefaultDescription: "A female speaker delivers a slightly expressive and animated speech with a moderate speed and pitch.",
			Temperature:        0.0,
			Seed:               0,
			TopP:               0.0,
			MaxSteps:           512,
		},
		LogLevel:  "info",
		LogFormat: "text",
		LogFile:   "",
	}
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-model-dir", defaults.Paths.ModelDir, "Directory holding model artifacts")
	fs.String("paths-public-dir", defaults.Paths.PublicDir, "Static asset directory")
	fs.String("paths-audio-dir", defaults.Paths.AudioDir, "Directory for persisted WAV output")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-workers", defaults.Server.Workers, "Max concurrent generation calls")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request generation deadline in seconds")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown drain period in seconds")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Maximum text field length in bytes")
	fs.Bool("server-persist-audio", defaults.Server.PersistAudio, "Persist generated WAV files to the audio directory")
	fs.String("generation-repo", defaults.Generation.Repo, "Model repository identifier")
	fs.String("generation-default-description", defaults.Generation.DefaultDescription, "Style description used when the request omits one")
	fs.Float64("generation-temperature", defaults.Generation.Temperature, "Default sampling temperature (0 = greedy)")
	fs.Uint64("generation-seed", defaults.Generation.Seed, "Default sampling seed")
	fs.Float64("generation-top-p", defaults.Generation.TopP, "Default nucleus threshold (0 = disabled)")
	fs.Int("generation-max-steps", defaults.Generation.MaxSteps, "Default maximum generation steps")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("log-format", defaults.LogFormat, "Log format (text|json)")
	fs.String("log-file", defaults.LogFile, "Optional rotating log file path")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)

	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	registerAliases(v)

	v.SetEnvPrefix("PARLERTTS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("parlertts")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_dir", c.Paths.ModelDir)
	v.SetDefault("paths.public_dir", c.Paths.PublicDir)
	v.SetDefault("paths.audio_dir", c.Paths.AudioDir)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.persist_audio", c.Server.PersistAudio)
	v.SetDefault("generation.repo", c.Generation.Repo)
	v.SetDefault("generation.default_description", c.Generation.DefaultDescription)
	v.SetDefault("generation.temperature", c.Generation.Temperature)
	v.SetDefault("generation.seed", c.Generation.Seed)
	v.SetDefault("generation.top_p", c.Generation.TopP)
	v.SetDefault("generation.max_steps", c.Generation.MaxSteps)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("log_format", c.LogFormat)
	v.SetDefault("log_file", c.LogFile)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("paths.model_dir", "paths-model-dir")
	v.RegisterAlias("paths.public_dir", "paths-public-dir")
	v.RegisterAlias("paths.audio_dir", "paths-audio-dir")
	v.RegisterAlias("server.listen_addr", "server-listen-addr")
	v.RegisterAlias("server.workers", "server-workers")
	v.RegisterAlias("server.request_timeout", "server-request-timeout")
	v.RegisterAlias("server.shutdown_timeout", "server-shutdown-timeout")
	v.RegisterAlias("server.max_text_bytes", "server-max-text-bytes")
	v.RegisterAlias("server.persist_audio", "server-persist-audio")
	v.RegisterAlias("generation.repo", "generation-repo")
	v.RegisterAlias("generation.default_description", "generation-default-description")
	v.RegisterAlias("generation.temperature", "generation-temperature")
	v.RegisterAlias("generation.seed", "generation-seed")
	v.RegisterAlias("generation.top_p", "generation-top-p")
	v.RegisterAlias("generation.max_steps", "generation-max-steps")
	v.RegisterAlias("log_level", "log-level")
	v.RegisterAlias("log_format", "log-format")
	v.RegisterAlias("log_file", "log-file")
}
