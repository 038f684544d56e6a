// Package config loads the pipeline options from pipeline.yml, the
// environment and built-in defaults.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	// FileName is the configuration file looked up in the work directory.
	FileName = "pipeline.yml"
	// EnvPrefix prefixes environment overrides, e.g. PEAKS_RUN_JOBS.
	EnvPrefix = "PEAKS"

	CompletionTimestamp = "timestamp"
	CompletionManifest  = "manifest"
)

// Config is the loaded, validated configuration. It is built once and not
// modified afterwards.
type Config struct {
	// File is the configuration file that was read, empty if none.
	File string

	Job     Job
	Tools   Tools
	Cluster Cluster
	Run     Run

	memory map[string]string
}

// Job holds the scientific options of the pipeline.
type Job struct {
	Annotations        string
	GTF2GTFMergeMethod string
	ExtensionUp        int
	ExtensionDown      int
	OutputAllProfiles  bool
	InputPerSample     bool
	IgGInput           bool
	MainSamplePrefix   string
	PeakcallingFormat  string
	GenomeSize         string
	// GenomeContigs is the contig sizes table for bedGraphToBigWig. Empty
	// means the table derived from the annotations.
	GenomeContigs string
	TmpDir        string
}

// Tools holds the executables the commands invoke.
type Tools struct {
	Samtools         string
	MarkDuplicates   string
	FeatureCounts    string
	Macs2            string
	Bedtools         string
	BedGraphToBigWig string
	Bgzip            string
	Cgat             string
}

type Cluster struct {
	// Wrapper is a template around every command with the tags {{command}},
	// {{quoted_command}}, {{memory}} and {{task}}.
	Wrapper string
}

type Run struct {
	Jobs        int
	Completion  string
	Retries     int
	KeepPartial bool
}

// Error reports a missing or invalid option.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

// Memory returns the job memory of task, empty when none is configured.
func (c *Config) Memory(task string) string {
	return c.memory[task]
}

// memoryDefaults are the job memory requests of the tasks.
var memoryDefaults = map[string]string{
	"filterreads":            "4G",
	"removeduplicates":       "6G",
	"mergeexons":             "15G",
	"getgenecounts":          "6G",
	"mergegenecounts":        "10G",
	"filter_geneset":         "10G",
	"geneprofiles":           "6G",
	"tssprofiles":            "6G",
	"mergegeneprofiles":      "10G",
	"mergetssprofiles":       "10G",
	"getprocessedreadcounts": "20G",
	"broadpeakcall":          "6G",
	"narrowpeakcall":         "6G",
	"foldchangebw":           "8G",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("job.annotations", "")
	v.SetDefault("job.gtf2gtf_merge_method", "merge-exons")
	v.SetDefault("job.extension_up", 500)
	v.SetDefault("job.extension_down", 500)
	v.SetDefault("job.output_all_profiles", false)
	v.SetDefault("job.input_per_sample", true)
	v.SetDefault("job.igg_input", false)
	v.SetDefault("job.main_sample_prefix", "")
	v.SetDefault("job.peakcalling_format", "BAM")
	v.SetDefault("job.genome_size", "hs")
	v.SetDefault("job.genome_contigs", "")
	v.SetDefault("job.tmpdir", "/tmp")

	v.SetDefault("tools.samtools", "samtools")
	v.SetDefault("tools.markduplicates", "MarkDuplicates")
	v.SetDefault("tools.featurecounts", "featureCounts")
	v.SetDefault("tools.macs2", "macs2")
	v.SetDefault("tools.bedtools", "bedtools")
	v.SetDefault("tools.bedgraphtobigwig", "bedGraphToBigWig")
	v.SetDefault("tools.bgzip", "bgzip")
	v.SetDefault("tools.cgat", "cgat")

	v.SetDefault("cluster.wrapper", "")

	v.SetDefault("run.jobs", 1)
	v.SetDefault("run.completion", CompletionTimestamp)
	v.SetDefault("run.retries", 0)
	v.SetDefault("run.keep_partial", false)

	for task, mem := range memoryDefaults {
		v.SetDefault("memory."+task, mem)
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the configuration. file, when set, names the configuration file
// explicitly and must exist; otherwise pipeline.yml is looked up in dir and
// may be absent. Environment variables override both.
func Load(dir, file string) (*Config, error) {
	v := newViper()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return nil, errors.Wrapf(err, "reading configuration")
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	c := &Config{
		File: v.ConfigFileUsed(),
		Job: Job{
			Annotations:        v.GetString("job.annotations"),
			GTF2GTFMergeMethod: v.GetString("job.gtf2gtf_merge_method"),
			ExtensionUp:        v.GetInt("job.extension_up"),
			ExtensionDown:      v.GetInt("job.extension_down"),
			OutputAllProfiles:  v.GetBool("job.output_all_profiles"),
			InputPerSample:     v.GetBool("job.input_per_sample"),
			IgGInput:           v.GetBool("job.igg_input"),
			MainSamplePrefix:   v.GetString("job.main_sample_prefix"),
			PeakcallingFormat:  v.GetString("job.peakcalling_format"),
			GenomeSize:         v.GetString("job.genome_size"),
			GenomeContigs:      v.GetString("job.genome_contigs"),
			TmpDir:             v.GetString("job.tmpdir"),
		},
		Tools: Tools{
			Samtools:         v.GetString("tools.samtools"),
			MarkDuplicates:   v.GetString("tools.markduplicates"),
			FeatureCounts:    v.GetString("tools.featurecounts"),
			Macs2:            v.GetString("tools.macs2"),
			Bedtools:         v.GetString("tools.bedtools"),
			BedGraphToBigWig: v.GetString("tools.bedgraphtobigwig"),
			Bgzip:            v.GetString("tools.bgzip"),
			Cgat:             v.GetString("tools.cgat"),
		},
		Cluster: Cluster{Wrapper: v.GetString("cluster.wrapper")},
		Run: Run{
			Jobs:        v.GetInt("run.jobs"),
			Completion:  v.GetString("run.completion"),
			Retries:     v.GetInt("run.retries"),
			KeepPartial: v.GetBool("run.keep_partial"),
		},
		memory: make(map[string]string, len(memoryDefaults)),
	}
	for task := range memoryDefaults {
		c.memory[task] = v.GetString("memory." + task)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	switch {
	case strings.TrimSpace(c.Job.Annotations) == "":
		return &Error{Key: "job.annotations", Reason: "a gene annotation (.gtf.gz) is required"}
	case !strings.HasSuffix(c.Job.Annotations, ".gtf.gz"):
		return &Error{Key: "job.annotations", Reason: fmt.Sprintf("%q is not a .gtf.gz file", c.Job.Annotations)}
	case c.Job.ExtensionUp < 0:
		return &Error{Key: "job.extension_up", Reason: "must be >= 0"}
	case c.Job.ExtensionDown < 0:
		return &Error{Key: "job.extension_down", Reason: "must be >= 0"}
	case c.Job.PeakcallingFormat == "":
		return &Error{Key: "job.peakcalling_format", Reason: "must not be empty"}
	case c.Run.Jobs < 1:
		return &Error{Key: "run.jobs", Reason: "must be >= 1"}
	case c.Run.Retries < 0:
		return &Error{Key: "run.retries", Reason: "must be >= 0"}
	}
	return ValidateCompletion(c.Run.Completion)
}

// ValidateCompletion checks a completion strategy name.
func ValidateCompletion(s string) error {
	switch s {
	case CompletionTimestamp, CompletionManifest:
		return nil
	default:
		return &Error{Key: "run.completion", Reason: fmt.Sprintf("unknown strategy %q (want %s or %s)", s, CompletionTimestamp, CompletionManifest)}
	}
}

// WriteDefaults writes a configuration file holding every option at its
// default value. An existing file is only replaced when force is set.
func WriteDefaults(path string, force bool) error {
	v := newViper()
	write := v.SafeWriteConfigAs
	if force {
		write = v.WriteConfigAs
	}
	if err := write(path); err != nil {
		if _, ok := err.(viper.ConfigFileAlreadyExistsError); ok {
			return errors.Errorf("%s already exists (use --force to overwrite)", path)
		}
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}
