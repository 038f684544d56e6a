// Package pipeline declares the peaks-and-profiles task graph: read
// filtering and deduplication, gene counts, gene and TSS profiles, read
// counts, and broad and narrow peak calling with fold-change tracks.
package pipeline

import (
	"strconv"

	"peaksandprofiles/internal/config"
	"peaksandprofiles/internal/core"
	"peaksandprofiles/internal/naming"
)

// Task names.
const (
	FilterReads            = "filterreads"
	RemoveDuplicates       = "removeduplicates"
	MergeExons             = "mergeexons"
	GetGeneCounts          = "getgenecounts"
	MergeGeneCounts        = "mergegenecounts"
	GetContigs             = "get_contigs"
	FilterGeneset          = "filter_geneset"
	GeneProfiles           = "geneprofiles"
	TSSProfiles            = "tssprofiles"
	MergeGeneProfiles      = "mergegeneprofiles"
	MergeTSSProfiles       = "mergetssprofiles"
	GetProcessedReadCounts = "getprocessedreadcounts"
	BroadPeakCall          = "broadpeakcall"
	NarrowPeakCall         = "narrowpeakcall"
	FoldChangeBigWig       = "foldchangebw"
	Full                   = "full"
)

// DefaultTarget is built when no target is named.
const DefaultTarget = Full

// Merged tables and derived annotation files.
const (
	MergedGeneset      = "geneset_merged.gtf"
	FilteredGeneset    = "geneset.filtered.gtf.gz"
	ContigsTable       = "contigs.tsv"
	CombinedGeneCounts = "combined_gene_counts.txt"
	CombinedGeneProf   = "combined_geneprofiles_matrix.txt"
	CombinedTSSProf    = "combined_tssprofiles_matrix.txt"
	ReadCountsTable    = "Filtered_Deduplicated_Read_Counts.tsv"
)

const (
	dedupPattern  = `^deduplicated\.dir/(.+)\.deduplicated\.bam$`
	samplePattern = `^deduplicated\.dir/(.+)-(.+)-(.+)-(.+)\.filtered\.deduplicated\.bam$`
	chipPattern   = `^deduplicated\.dir/(.+)-ChIP-(.+)-(.+)\.filtered\.deduplicated\.bam$`
)

// Declarations returns the tasks of the pipeline configured by cfg.
func Declarations(cfg *config.Config) []core.Task {
	params := Params(cfg)
	controls := ControlInputs(naming.ControlPolicy{
		PerSample:        cfg.Job.InputPerSample,
		IgGUsesOwnInput:  cfg.Job.IgGInput,
		MainSamplePrefix: cfg.Job.MainSamplePrefix,
	})
	tasks := []core.Task{
		{
			Name:    FilterReads,
			Globs:   []string{"*.bam"},
			Pattern: `^(.+)\.bam$`,
			Outputs: []string{"filtered_bams.dir/${1}.filtered.bam"},
			Command: "{{samtools}} view -b -o {{output}} -F 268 -q 30 {{input}}",
		},
		{
			Name:    RemoveDuplicates,
			From:    []string{FilterReads},
			Pattern: `^filtered_bams\.dir/(.+)\.bam$`,
			Outputs: []string{
				"deduplicated.dir/${1}.deduplicated.bam",
				"deduplicated.dir/${1}.deduplicated.bam.bai",
			},
			Command: "{{markduplicates}} I={{input}} O=deduplicated.dir/{{match.1}}.temp.bam" +
				" M=deduplicated.dir/{{match.1}}.deduplicated.metrics" +
				" > deduplicated.dir/{{match.1}}.temp.bam.log" +
				" && {{samtools}} view -q 30 -F 1024 -b deduplicated.dir/{{match.1}}.temp.bam > {{output}}" +
				" && rm -r deduplicated.dir/{{match.1}}.temp.bam" +
				" && {{samtools}} index {{output}}",
		},
		{
			Name:    MergeExons,
			Globs:   []string{cfg.Job.Annotations},
			Pattern: `\.gtf\.gz$`,
			Follows: []string{RemoveDuplicates},
			Outputs: []string{MergedGeneset},
			Command: "zcat {{input}}" +
				" | {{cgat}} gtf2gtf --method={{merge_method}}" +
				" | {{cgat}} gtf2gtf --method=set-transcript-to-gene > {{output}}",
		},
		{
			Name:    GetGeneCounts,
			From:    []string{RemoveDuplicates},
			Pattern: dedupPattern,
			AddFrom: []string{MergeExons},
			Outputs: []string{"genecounts.dir/${1}.counts.txt"},
			Command: "{{featurecounts}} -t exon -g gene_id -a {{input.2}} -o {{output}} {{input}}",
		},
		{
			Name:    MergeGeneCounts,
			From:    []string{GetGeneCounts},
			Merge:   true,
			Outputs: []string{CombinedGeneCounts},
			Command: `{{cgat}} combine_tables --use-file-prefix -c 1,2,3,4,5,6 -k 7 --regex-filename="(.+).txt"` +
				" -S {{output}} {{input}}",
		},
		{
			Name:    GetContigs,
			Globs:   []string{cfg.Job.Annotations},
			Outputs: []string{ContigsTable},
			Native:  deriveContigs,
		},
		{
			Name:    FilterGeneset,
			Globs:   []string{cfg.Job.Annotations},
			AddFrom: []string{GetContigs},
			Outputs: []string{FilteredGeneset},
			Command: "zcat {{input}}" +
				" | {{cgat}} gtf2gtf --method=merge-transcripts" +
				" | {{cgat}} gff2bed --is-gtf" +
				" | {{bedtools}} slop -l {{extension_up}} -r {{extension_down}} -s -i - -g {{input.2}}" +
				" | sort -k1,1 -k2,2n" +
				" | {{bedtools}} merge -c 4 -o count -i -" +
				" | awk '$4>1'" +
				" | {{bedtools}} intersect -v -a {{input}} -b -" +
				" | {{bgzip}} > {{output}}",
		},
		profileTask(GeneProfiles, "geneprofile", " --normalize-transcript=none --normalize-profile=none"),
		profileTask(TSSProfiles, "tssprofile", ""),
		mergeProfilesTask(MergeGeneProfiles, GeneProfiles, "geneprofile", CombinedGeneProf),
		mergeProfilesTask(MergeTSSProfiles, TSSProfiles, "tssprofile", CombinedTSSProf),
		{
			Name:    GetProcessedReadCounts,
			Globs:   []string{"deduplicated.dir/*.deduplicated.bam"},
			Pattern: dedupPattern,
			Follows: []string{MergeTSSProfiles},
			Merge:   true,
			Outputs: []string{ReadCountsTable},
			Native:  countReads(cfg.Run.Jobs),
		},
		peakTask(BroadPeakCall, "broadpeakcalling.dir", "--broad", controls),
		peakTask(NarrowPeakCall, "narrowpeakcalling.dir", "-B --SPMR --call-summits", controls,
			"narrowpeakcalling.dir/${1}-ChIP-${2}-${3}/NA_treat_pileup.bdg",
			"narrowpeakcalling.dir/${1}-ChIP-${2}-${3}/NA_control_lambda.bdg"),
		foldChangeTask(cfg.Job.GenomeContigs),
	}
	for i := range tasks {
		tasks[i].Params = params
		tasks[i].Memory = cfg.Memory(tasks[i].Name)
	}
	return append(tasks, core.Task{
		Name: Full,
		Follows: []string{
			BroadPeakCall, GetProcessedReadCounts, FoldChangeBigWig,
			MergeGeneProfiles, MergeTSSProfiles, MergeGeneCounts,
		},
	})
}

// Params returns the command template values shared by every task: the tool
// executables and the scientific options.
func Params(cfg *config.Config) map[string]string {
	allProfiles := ""
	if cfg.Job.OutputAllProfiles {
		allProfiles = "--output-all-profiles"
	}
	return map[string]string{
		"samtools":         cfg.Tools.Samtools,
		"markduplicates":   cfg.Tools.MarkDuplicates,
		"featurecounts":    cfg.Tools.FeatureCounts,
		"macs2":            cfg.Tools.Macs2,
		"bedtools":         cfg.Tools.Bedtools,
		"bedgraphtobigwig": cfg.Tools.BedGraphToBigWig,
		"bgzip":            cfg.Tools.Bgzip,
		"cgat":             cfg.Tools.Cgat,

		"merge_method":   cfg.Job.GTF2GTFMergeMethod,
		"extension_up":   strconv.Itoa(cfg.Job.ExtensionUp),
		"extension_down": strconv.Itoa(cfg.Job.ExtensionDown),
		"all_profiles":   allProfiles,
		"genome_size":    cfg.Job.GenomeSize,
		"format":         cfg.Job.PeakcallingFormat,
		"tmpdir":         cfg.Job.TmpDir,
	}
}

// ControlInputs returns the implicit input function that pairs a
// deduplicated ChIP BAM with its control under the {{control}} tag.
func ControlInputs(policy naming.ControlPolicy) core.ImplicitFunc {
	return func(primary string) (map[string]string, error) {
		control, err := naming.ResolveControl(primary, policy)
		if err != nil {
			return nil, err
		}
		return map[string]string{"control": control}, nil
	}
}

func profileTask(name, method, normalize string) core.Task {
	return core.Task{
		Name:    name,
		From:    []string{RemoveDuplicates},
		Pattern: samplePattern,
		AddFrom: []string{FilterGeneset},
		Outputs: []string{
			"profiles.dir/${1}-${2}-${3}-${4}.bam2" + method,
			"profiles.dir/${1}-${2}-${3}-${4}." + method + ".matrix.tsv.gz",
		},
		Command: "{{cgat}} bam2geneprofile -b {{input}} -g {{input.2}} --reporter=gene -m " + method +
			" {{all_profiles}}" + normalize + " --merge-pairs" +
			" -P profiles.dir/{{match.1}}-{{match.2}}-{{match.3}}-{{match.4}}.%s > {{output}}",
	}
}

func mergeProfilesTask(name, after, method, out string) core.Task {
	return core.Task{
		Name:    name,
		Globs:   []string{"profiles.dir/*-*-*-*.bwa." + method + ".matrix.tsv.gz"},
		Follows: []string{after},
		Merge:   true,
		Outputs: []string{out},
		Command: `{{cgat}} combine_tables --regex-filename="profiles.dir/(.+)-(.+)-(.+).bwa.` + method + `.matrix.tsv.gz"` +
			" --cat pulldown,condition,replicate -S {{output}} {{input}}",
	}
}

func peakTask(name, dir, mode string, controls core.ImplicitFunc, bedGraphs ...string) core.Task {
	return core.Task{
		Name:     name,
		From:     []string{RemoveDuplicates},
		Pattern:  chipPattern,
		Implicit: controls,
		Outputs:  append([]string{dir + "/${1}-ChIP-${2}-${3}.bam.macs2"}, bedGraphs...),
		Command: "{{macs2}} callpeak -t {{input}} -c {{control}} -g {{genome_size}} " + mode +
			" --verbose=2 -f {{format}}" +
			" --outdir " + dir + "/{{match.1}}-ChIP-{{match.2}}-{{match.3}}" +
			" --tempdir {{tmpdir}} > {{output}}",
	}
}

// foldChangeTask converts the narrow peak pileups to a fold-enrichment
// bigWig. The contig table is contigs (input 4) when configured, otherwise
// the table derived from the annotations.
func foldChangeTask(contigs string) core.Task {
	const fe = "narrowpeakcalling.dir/{{match.1}}/narrow_FE.bdg"
	t := core.Task{
		Name:    FoldChangeBigWig,
		From:    []string{NarrowPeakCall},
		Pattern: `^narrowpeakcalling\.dir/(.+)\.bam\.macs2$`,
		AddInputs: []string{
			"narrowpeakcalling.dir/${1}/NA_treat_pileup.bdg",
			"narrowpeakcalling.dir/${1}/NA_control_lambda.bdg",
		},
		Outputs: []string{"narrowpeakcalling.dir/${1}/${1}.narrow_fc_signal.bw"},
		Command: "{{macs2}} bdgcmp -t {{input.2}} -c {{input.3}} -o " + fe + " -m FE" +
			" && sort -k1,1 -k2,2n " + fe + " > " + fe + ".sorted" +
			" && rm " + fe +
			" && {{bedgraphtobigwig}} " + fe + ".sorted {{input.4}} {{output}} >> {{output}}.log" +
			" && rm " + fe + ".sorted",
	}
	if contigs == "" {
		t.AddFrom = []string{GetContigs}
	} else {
		t.AddInputs = append(t.AddInputs, contigs)
	}
	return t
}
