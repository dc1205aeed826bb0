// Package vcf holds the minimal VCF record model shared by the call-cleaning
// stages: positional parsing of data lines, the per-record FORMAT layout, and
// a few INFO helpers for non-variant blocks.
package vcf

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Fixed column positions of a VCF data line.
const (
	ChromIdx  int = 0
	PosIdx    int = 1
	IDIdx     int = 2
	RefIdx    int = 3
	AltIdx    int = 4
	QualIdx   int = 5
	FilterIdx int = 6
	InfoIdx   int = 7
	FormatIdx int = 8

	// NumFixedCols is the number of columns before the first sample column.
	NumFixedCols int = 9
)

// Record is one VCF data line. Sample columns are kept as raw strings; the
// clean package interprets them against the Layout built from Format.
type Record struct {
	Chrom   string
	Pos     int
	ID      string
	Ref     string
	Alts    []string
	Qual    string
	Filter  string
	Info    string
	Format  []string
	Samples []string
}

// Parse splits one data line into a Record. nCols is the column count
// declared by the #CHROM header line; any other count is a structural error.
func Parse(line string, nCols int) (*Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != nCols {
		return nil, errors.Errorf("expected %d columns, got %d", nCols, len(fields))
	}

	pos, err := strconv.Atoi(fields[PosIdx])
	if err != nil {
		return nil, errors.Wrapf(err, "bad POS %q", fields[PosIdx])
	}

	rec := &Record{
		Chrom:   fields[ChromIdx],
		Pos:     pos,
		ID:      fields[IDIdx],
		Ref:     fields[RefIdx],
		Qual:    fields[QualIdx],
		Filter:  fields[FilterIdx],
		Info:    fields[InfoIdx],
		Format:  strings.Split(fields[FormatIdx], ":"),
		Samples: fields[NumFixedCols:],
	}

	if fields[AltIdx] != "." {
		rec.Alts = strings.Split(fields[AltIdx], ",")
	}

	return rec, nil
}

// String reassembles the record into one tab-separated line, without a
// trailing newline.
func (r *Record) String() string {
	var b strings.Builder

	alt := "."
	if len(r.Alts) > 0 {
		alt = strings.Join(r.Alts, ",")
	}

	b.WriteString(r.Chrom)
	b.WriteByte('\t')
	b.WriteString(strconv.Itoa(r.Pos))
	b.WriteByte('\t')
	b.WriteString(r.ID)
	b.WriteByte('\t')
	b.WriteString(r.Ref)
	b.WriteByte('\t')
	b.WriteString(alt)
	b.WriteByte('\t')
	b.WriteString(r.Qual)
	b.WriteByte('\t')
	b.WriteString(r.Filter)
	b.WriteByte('\t')
	b.WriteString(r.Info)
	b.WriteByte('\t')
	b.WriteString(strings.Join(r.Format, ":"))
	for _, s := range r.Samples {
		b.WriteByte('\t')
		b.WriteString(s)
	}

	return b.String()
}

// Symbolic reports whether alt is a symbolic allele (<NON_REF>, <DUP>, ...)
// or the overlapping-deletion marker '*'. Symbolic alleles are never
// renumbered away and never take part in REF/ALT trimming.
func Symbolic(alt string) bool {
	return alt == "*" || (len(alt) > 0 && alt[0] == '<')
}

// StarIndex returns the genotype index (1-based over ALTs) of the '*' allele,
// or 0 if the record has none.
func (r *Record) StarIndex() int {
	for i, alt := range r.Alts {
		if alt == "*" {
			return i + 1
		}
	}
	return 0
}

// End returns the END value from INFO, for non-variant blocks.
func (r *Record) End() (int, bool) {
	for _, kv := range strings.Split(r.Info, ";") {
		if v, ok := strings.CutPrefix(kv, "END="); ok {
			end, err := strconv.Atoi(v)
			if err != nil {
				return 0, false
			}
			return end, true
		}
	}
	return 0, false
}

// SetEnd rewrites the END value in INFO. No-op if INFO has no END key.
func (r *Record) SetEnd(end int) {
	kvs := strings.Split(r.Info, ";")
	for i, kv := range kvs {
		if strings.HasPrefix(kv, "END=") {
			kvs[i] = "END=" + strconv.Itoa(end)
			r.Info = strings.Join(kvs, ";")
			return
		}
	}
}
