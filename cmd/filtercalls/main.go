// filtercalls streams a multi-sample (G)VCF from stdin to stdout, cleaning
// per-sample genotype calls against QC thresholds, renumbering alleles after
// uncalled ALTs are dropped, trimming REF/ALT with position adjustment, and
// merging phantom homozygous-reference records. Batches of lines are
// processed in parallel; output order is identical to a sequential pass.
package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"os"
	"strings"
	"time"

	"github.com/brentp/xopen"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/varpipe/varpipe-vcf/batch"
	"github.com/varpipe/varpipe-vcf/clean"
	"github.com/varpipe/varpipe-vcf/stats"
	"github.com/varpipe/varpipe-vcf/vcf"
)

type Config struct {
	inPath      string
	outPath     string
	samplesPath string
	tmpDir      string
	statsPath   string
	keepHR      bool

	jobs         int
	batchSize    int
	adaptive     bool
	minBatchSize int
	maxBatchSize int

	params clean.Params
}

func setup(args []string) *Config {
	config := &Config{}
	flag.StringVar(&config.inPath, "inPath", "-", "Input (G)VCF, may be gzipped ('-' is stdin)")
	flag.StringVar(&config.outPath, "outPath", "-", "Output VCF, gzipped when the name ends in .gz ('-' is stdout)")
	flag.StringVar(&config.samplesPath, "samplesFile", "", "File with one sample ID per line; sample columns not listed are dropped (optional: default keeps all)")
	flag.StringVar(&config.tmpDir, "tmpDir", "", "Directory for batch artifacts; must not pre-exist, created and removed by the run")
	flag.StringVar(&config.statsPath, "statsPath", "", "Write per-batch QC counters to this Arrow IPC file (optional)")
	flag.BoolVar(&config.keepHR, "keepHR", false, "Keep records whose only surviving calls are homozygous reference")

	flag.IntVar(&config.jobs, "jobs", 0, "Total worker pool size; one worker is the ordered reader, so at least 2")
	flag.IntVar(&config.batchSize, "batchSize", 10000, "Lines per batch")
	flag.BoolVar(&config.adaptive, "adaptiveBatch", false, "Retune batch size from observed wall-clock per batch group")
	flag.IntVar(&config.minBatchSize, "minBatchSize", 1000, "Lower bound for adaptive batch sizing")
	flag.IntVar(&config.maxBatchSize, "maxBatchSize", 100000, "Upper bound for adaptive batch sizing")

	flag.IntVar(&config.params.MinDP, "minDP", -1, "Calls below this depth become NOCALL (required)")
	flag.Float64Var(&config.params.MinGQ, "minGQ", -1, "Calls below this genotype quality become NOCALL (required)")
	flag.Float64Var(&config.params.MinAF, "minAF", -1, "0/x and x/x calls below this allele fraction become NOCALL (required)")
	flag.IntVar(&config.params.MinDPHV, "minDPHV", -1, "Depth floor for rewriting 0/x to x/x (required)")
	flag.Float64Var(&config.params.MinAFHV, "minAFHV", -1, "AF floor for rewriting 0/x to x/x (required)")
	flag.IntVar(&config.params.MinDPHET, "minDPHET", -1, "Depth floor for rewriting x/x to 0/x (required)")
	flag.Float64Var(&config.params.MinAFHET, "minAFHET", -1, "AF floor for rewriting x/x to 0/x (required)")
	flag.Float64Var(&config.params.MaxAFHET, "maxAFHET", -1, "AF ceiling for rewriting x/x to 0/x (required)")

	// allows args to be mocked in tests; can only run one such test per
	// process, else redefined-flags error
	a := os.Args[1:]
	if args != nil {
		a = args
	}
	flag.CommandLine.Parse(a)

	return config
}

func (c *Config) validate() error {
	if c.jobs < 2 {
		return errors.New("-jobs must be at least 2 (one worker is reserved as the ordered reader)")
	}
	if c.tmpDir == "" {
		return errors.New("-tmpDir is required")
	}
	p := c.params
	if p.MinDP < 0 || p.MinGQ < 0 || p.MinAF < 0 || p.MinDPHV < 0 ||
		p.MinAFHV < 0 || p.MinDPHET < 0 || p.MinAFHET < 0 || p.MaxAFHET < 0 {
		return errors.New("all of -minDP -minGQ -minAF -minDPHV -minAFHV -minDPHET -minAFHET -maxAFHET are required")
	}
	if c.adaptive && c.minBatchSize > c.maxBatchSize {
		return errors.New("-minBatchSize exceeds -maxBatchSize")
	}
	return nil
}

func init() {
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	log.SetOutput(os.Stderr)
}

func main() {
	config := setup(nil)
	if err := config.validate(); err != nil {
		log.Fatal(err)
	}

	in, err := xopen.Ropen(config.inPath)
	if err != nil {
		log.Fatal(err)
	}
	defer in.Close()

	out, err := xopen.Wopen(config.outPath)
	if err != nil {
		log.Fatal(err)
	}

	run, err := filterCalls(config, in.Reader, out, strings.Join(os.Args, " "))
	if err != nil {
		log.Fatal(err)
	}
	if err := out.Close(); err != nil {
		log.Fatal(err)
	}

	total := run.Total()
	log.WithFields(log.Fields{
		"fixedToHV":      total.FixedToHV,
		"fixedToHET":     total.FixedToHET,
		"fixedDP":        total.FixedDP,
		"noCalls":        total.NoCalls,
		"droppedRecords": total.DroppedRecords,
	}).Info("run complete")

	if config.statsPath != "" {
		if err := run.WriteArrow(config.statsPath, 1024); err != nil {
			log.Fatal(err)
		}
	}
}

// readSampleList loads the allow list of sample IDs, one per line.
func readSampleList(path string) (map[string]bool, error) {
	fh, err := xopen.Ropen(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	keep := make(map[string]bool)
	for {
		line, err := fh.ReadString('\n')
		if name := strings.TrimSpace(line); name != "" {
			keep[name] = true
		}
		if err == io.EOF {
			return keep, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// header consumes the input up to and including the #CHROM line, echoing
// meta lines unchanged, and returns the #CHROM fields.
func header(in *bufio.Reader, out io.Writer) ([]string, error) {
	first := true
	for {
		row, err := in.ReadString('\n')
		if err == io.EOF && row == "" {
			return nil, errors.New("no #CHROM line found")
		}
		if err != nil && err != io.EOF {
			return nil, err
		}

		line := strings.TrimSuffix(strings.TrimSuffix(row, "\n"), "\r")
		if first {
			if !strings.HasPrefix(line, "##fileformat=VCF") {
				return nil, errors.New("input is not a VCF file")
			}
			first = false
		}

		if strings.HasPrefix(line, "#CHROM") {
			fields := strings.Split(line, "\t")
			if len(fields) < vcf.NumFixedCols {
				return nil, errors.Errorf("#CHROM line has %d columns", len(fields))
			}
			return fields, nil
		}
		if !strings.HasPrefix(line, "##") {
			return nil, errors.Errorf("unexpected line before #CHROM: %q", line)
		}
		if _, err := io.WriteString(out, line+"\n"); err != nil {
			return nil, err
		}
	}
}

func filterCalls(config *Config, in *bufio.Reader, out io.Writer, cmdLine string) (*stats.Run, error) {
	chromLine, err := header(in, out)
	if err != nil {
		return nil, err
	}

	nCols := len(chromLine)
	sampleNames := chromLine[vcf.NumFixedCols:]

	var keepCols []int
	keptHeader := chromLine
	if config.samplesPath != "" {
		wanted, err := readSampleList(config.samplesPath)
		if err != nil {
			return nil, err
		}
		keepCols = []int{}
		keptHeader = append([]string(nil), chromLine[:vcf.NumFixedCols]...)
		for i, name := range sampleNames {
			if wanted[name] {
				keepCols = append(keepCols, i)
				keptHeader = append(keptHeader, name)
			}
		}
		if len(keepCols) == 0 {
			return nil, errors.New("no sample column matches the samples file")
		}
	}

	if _, err := io.WriteString(out, "##filtercalls="+cmdLine+"\n"); err != nil {
		return nil, err
	}
	if _, err := io.WriteString(out, strings.Join(keptHeader, "\t")+"\n"); err != nil {
		return nil, err
	}

	processor := &clean.Processor{
		Params:   config.params,
		NCols:    nCols,
		KeepCols: keepCols,
		KeepHR:   config.keepHR,
	}

	process := func(b batch.Batch) ([]string, stats.Counters, error) {
		var counters stats.Counters
		var merger clean.Merger
		var lines []string

		emit := func(entries []*clean.Entry) {
			for _, e := range entries {
				lines = append(lines, e.Rec.String())
			}
		}

		for i, line := range b.Lines {
			entry, err := processor.Process(line, &counters)
			if err != nil {
				return nil, counters, errors.Wrapf(err, "line %d of batch %d", i+1, b.Num)
			}
			if entry != nil {
				emit(merger.Push(entry))
			}
		}
		emit(merger.Flush())

		return lines, counters, nil
	}

	size := func() int { return config.batchSize }
	orchCfg := batch.Config{Workers: config.jobs, TmpDir: config.tmpDir}
	if config.adaptive {
		sizer := batch.NewAdaptiveSizer(config.batchSize, config.minBatchSize, config.maxBatchSize,
			2*(config.jobs-1), 10*time.Second, 60*time.Second)
		size = sizer.Size
		orchCfg.OnBatchDone = sizer.BatchDone
	}

	run := stats.NewRun()
	batcher := batch.NewBatcher(in, size)
	if err := batch.Run(context.Background(), orchCfg, batcher, process, out, run); err != nil {
		return nil, err
	}

	return run, nil
}
