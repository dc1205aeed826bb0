// genocolumns rewrites a cleaned multi-sample VCF so that the FORMAT and
// per-sample columns are replaced by the four aggregate genotype-group
// columns HV, HET, OTHER and HR. It is the companion stage to filtercalls
// and expects its output schema (GT first, AF second).
package main

import (
	"bufio"
	"flag"
	"io"
	"os"
	"strings"

	"github.com/brentp/xopen"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/varpipe/varpipe-vcf/geno"
	"github.com/varpipe/varpipe-vcf/vcf"
)

type Config struct {
	inPath  string
	outPath string
}

func setup(args []string) *Config {
	config := &Config{}
	flag.StringVar(&config.inPath, "inPath", "-", "Input VCF, may be gzipped ('-' is stdin)")
	flag.StringVar(&config.outPath, "outPath", "-", "Output, gzipped when the name ends in .gz ('-' is stdout)")

	a := os.Args[1:]
	if args != nil {
		a = args
	}
	flag.CommandLine.Parse(a)

	return config
}

func init() {
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	log.SetOutput(os.Stderr)
}

func main() {
	config := setup(nil)

	in, err := xopen.Ropen(config.inPath)
	if err != nil {
		log.Fatal(err)
	}
	defer in.Close()

	out, err := xopen.Wopen(config.outPath)
	if err != nil {
		log.Fatal(err)
	}

	if err := genoColumns(in.Reader, out, strings.Join(os.Args, " ")); err != nil {
		log.Fatal(err)
	}
	if err := out.Close(); err != nil {
		log.Fatal(err)
	}
}

func genoColumns(in *bufio.Reader, out io.Writer, cmdLine string) error {
	var names []string
	nCols := 0
	lineNum := 0

	w := bufio.NewWriter(out)

	for {
		row, err := in.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		if row == "" && err == io.EOF {
			break
		}
		lineNum++

		line := strings.TrimSuffix(strings.TrimSuffix(row, "\n"), "\r")
		if line == "" {
			if err == io.EOF {
				break
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "##"):
			w.WriteString(line)
			w.WriteByte('\n')
		case strings.HasPrefix(line, "#CHROM"):
			fields := strings.Split(line, "\t")
			if len(fields) <= vcf.NumFixedCols {
				return errors.Errorf("#CHROM line declares no sample columns")
			}
			nCols = len(fields)
			names = fields[vcf.NumFixedCols:]

			w.WriteString("##genocolumns=" + cmdLine + "\n")
			w.WriteString(strings.Join(fields[:vcf.FormatIdx], "\t"))
			w.WriteString("\tHV\tHET\tOTHER\tHR\n")
		default:
			if names == nil {
				return errors.Errorf("line %d: data before #CHROM", lineNum)
			}
			rec, err := vcf.Parse(line, nCols)
			if err != nil {
				return errors.Wrapf(err, "line %d", lineNum)
			}
			cols, err := geno.Build(rec, names)
			if err != nil {
				return errors.Wrapf(err, "line %d", lineNum)
			}

			fields := strings.SplitN(line, "\t", vcf.FormatIdx+1)
			w.WriteString(strings.Join(fields[:vcf.FormatIdx], "\t"))
			w.WriteByte('\t')
			w.WriteString(cols.HV)
			w.WriteByte('\t')
			w.WriteString(cols.HET)
			w.WriteByte('\t')
			w.WriteString(cols.OTHER)
			w.WriteByte('\t')
			w.WriteString(cols.HR)
			w.WriteByte('\n')
		}

		if err == io.EOF {
			break
		}
	}

	return w.Flush()
}
