// Package config holds the settings shared by the sparqlgen commands. Values
// come from defaults, an optional YAML file and command line flags, in
// increasing order of precedence.
package config

import (
	"bytes"
	"io"
	"runtime"
	"strings"

	"github.com/aleksaelezovic/sparqlgen/internal/generator"
	"github.com/aleksaelezovic/sparqlgen/internal/sampling"
	"github.com/aleksaelezovic/sparqlgen/internal/serializer"
	"github.com/aleksaelezovic/sparqlgen/internal/storage"
	"github.com/aleksaelezovic/sparqlgen/internal/workload"
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config is the complete set of sparqlgen settings, one section per
// concern. The YAML keys match the section and field tags.
type Config struct {
	Log      Log      `yaml:"log"`
	Compress Compress `yaml:"compress"`
	Generate Generate `yaml:"generate"`
	Snapshot Snapshot `yaml:"snapshot"`
}

// Log selects the log level and the text or JSON formatter.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Compress configures the working state and the compression pipeline.
type Compress struct {
	// WorkDir holds the badger working state. Empty means a temporary
	// directory removed on exit.
	WorkDir        string `yaml:"work_dir"`
	Workers        int    `yaml:"workers"`
	BatchSize      int    `yaml:"batch_size"`
	ChunkSize      int    `yaml:"chunk_size"`
	KeepBlankNodes bool   `yaml:"keep_blank_nodes"`
	Recursive      bool   `yaml:"recursive"`
	SyncWrites     bool   `yaml:"sync_writes"`
}

// Generate configures query generation and the output streams.
type Generate struct {
	// Seed seeds the sampler. Zero picks a random seed, which is logged.
	Seed              uint64                 `yaml:"seed"`
	Order             workload.Order         `yaml:"order"`
	InsertSource      generator.InsertSource `yaml:"insert_source"`
	PrepareFormat     serializer.Format      `yaml:"prepare_format"`
	OutputFormat      serializer.Format      `yaml:"output_format"`
	MaxAbsentAttempts int                    `yaml:"max_absent_attempts"`
	Append            bool                   `yaml:"append"`
}

// Snapshot controls how compressor state files are opened.
type Snapshot struct {
	SkipVerify bool  `yaml:"skip_verify"`
	CacheSize  int64 `yaml:"cache_size"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Log: Log{Level: "info", Format: "text"},
		Compress: Compress{
			Workers:   runtime.GOMAXPROCS(0),
			BatchSize: storage.DefaultBatchSize,
			ChunkSize: 1024,
		},
		Generate: Generate{
			MaxAbsentAttempts: sampling.DefaultMaxAbsentAttempts,
		},
		Snapshot: Snapshot{CacheSize: 64 << 20},
	}
}

// BindLog registers the logging flags.
func (c *Config) BindLog(flags *pflag.FlagSet) {
	flags.StringVar(&c.Log.Level, "log-level", c.Log.Level, "log level (trace, debug, info, warn, error)")
	flags.StringVar(&c.Log.Format, "log-format", c.Log.Format, "log format (text, json)")
}

// BindCompress registers the flags of commands that build a working state.
func (c *Config) BindCompress(flags *pflag.FlagSet) {
	flags.StringVar(&c.Compress.WorkDir, "work-dir", c.Compress.WorkDir, "directory for the working state (default: a temporary directory)")
	flags.IntVarP(&c.Compress.Workers, "workers", "j", c.Compress.Workers, "number of parser goroutines")
	flags.IntVar(&c.Compress.BatchSize, "batch-size", c.Compress.BatchSize, "statements per storage transaction")
	flags.IntVar(&c.Compress.ChunkSize, "chunk-size", c.Compress.ChunkSize, "lines handed to a parser at once")
	flags.BoolVar(&c.Compress.KeepBlankNodes, "keep-blank-nodes", c.Compress.KeepBlankNodes, "keep statements with blank nodes")
	flags.BoolVarP(&c.Compress.Recursive, "recursive", "r", c.Compress.Recursive, "descend into directories")
	flags.BoolVar(&c.Compress.SyncWrites, "sync-writes", c.Compress.SyncWrites, "fsync every storage commit")
}

// BindGenerate registers the query generation flags.
func (c *Config) BindGenerate(flags *pflag.FlagSet) {
	flags.Uint64Var(&c.Generate.Seed, "seed", c.Generate.Seed, "random seed (0 picks one)")
	flags.Var(&c.Generate.Order, "order", "query order (as-specified, randomized, size-asc, size-desc, alternate)")
	flags.Var(&c.Generate.InsertSource, "insert-source", "where INSERT triples come from (absent, recycled)")
	flags.Var(&c.Generate.PrepareFormat, "prepare-format", "prepare output format (query, ntriples)")
	flags.IntVar(&c.Generate.MaxAbsentAttempts, "max-absent-attempts", c.Generate.MaxAbsentAttempts, "consecutive rejected candidates before absent sampling gives up")
	flags.BoolVarP(&c.Generate.Append, "append", "a", c.Generate.Append, "append to output files instead of truncating them")
}

// BindOutput registers the output flags of commands that write a single
// query stream.
func (c *Config) BindOutput(flags *pflag.FlagSet) {
	flags.Var(&c.Generate.OutputFormat, "output-format", "output format (query, ntriples)")
	flags.BoolVarP(&c.Generate.Append, "append", "a", c.Generate.Append, "append to the output file instead of truncating it")
}

// BindSnapshot registers the snapshot reading flags.
func (c *Config) BindSnapshot(flags *pflag.FlagSet) {
	flags.BoolVar(&c.Snapshot.SkipVerify, "skip-verify", c.Snapshot.SkipVerify, "skip the snapshot checksum pass")
	flags.Int64Var(&c.Snapshot.CacheSize, "cache-size", c.Snapshot.CacheSize, "term cache budget in bytes (negative disables)")
}

// Decode reads YAML settings from r on top of c. Unknown keys are errors.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// Load reads the YAML file at path on top of c, then re-applies every flag
// set on the command line so that flags take precedence over the file.
func (c *Config) Load(fs afero.Fs, path string, flags *pflag.FlagSet) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return errors.Wrapf(err, "failed to read config %s", path)
	}

	set := make(map[string]string)
	if flags != nil {
		flags.Visit(func(f *pflag.Flag) {
			// no setting is a list, and re-setting a list flag appends
			if t := f.Value.Type(); strings.HasSuffix(t, "Slice") || strings.HasSuffix(t, "Array") {
				return
			}
			set[f.Name] = f.Value.String()
		})
	}

	if err := c.Decode(bytes.NewReader(data)); err != nil {
		return errors.Wrapf(err, "%s", path)
	}

	for name, value := range set {
		if err := flags.Set(name, value); err != nil {
			return errors.Wrapf(err, "failed to re-apply --%s", name)
		}
	}
	return nil
}

// Validate checks the settings for values no command can work with.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.Newf("log.format: unknown format %q", c.Log.Format)
	}
	if c.Compress.Workers < 1 {
		return errors.Newf("compress.workers must be at least 1, got %d", c.Compress.Workers)
	}
	if c.Compress.BatchSize < 1 {
		return errors.Newf("compress.batch_size must be at least 1, got %d", c.Compress.BatchSize)
	}
	if c.Compress.ChunkSize < 1 {
		return errors.Newf("compress.chunk_size must be at least 1, got %d", c.Compress.ChunkSize)
	}
	if c.Generate.MaxAbsentAttempts < 1 {
		return errors.Newf("generate.max_absent_attempts must be at least 1, got %d", c.Generate.MaxAbsentAttempts)
	}
	return nil
}
