// Package batch splits a (G)VCF data-line stream into numbered batches,
// fans them out to parallel workers, and re-serializes the per-batch
// artifacts to the output strictly in batch order.
package batch

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/varpipe/varpipe-vcf/vcf"
)

// Batch is a numbered, bounded run of input lines processed by exactly one
// worker.
type Batch struct {
	Num   int
	Lines []string
}

// Batcher cuts the line stream into batches. A boundary is never placed
// inside the shift window of an indel: a line whose REF or some non-symbolic
// ALT spans two or more bases can move left during trimming, so the batch
// keeps growing until the next line's position clears
// POS + min(len(REF), max ALT length) - 1 of every such line, or the
// chromosome changes. A batch also never opens on such a line: an indel can
// pair with a phantom homozygous-reference record at the same position, and
// that pair must reach one merger together.
type Batcher struct {
	r       *bufio.Reader
	size    func() int
	next    int
	pending string
	havePnd bool
	done    bool
}

// NewBatcher wraps a reader positioned at the first data line. size is
// consulted once per batch, which lets an AdaptiveSizer retune between
// batches.
func NewBatcher(r *bufio.Reader, size func() int) *Batcher {
	return &Batcher{r: r, size: size}
}

func (b *Batcher) readLine() (string, bool, error) {
	if b.havePnd {
		b.havePnd = false
		return b.pending, true, nil
	}
	if b.done {
		return "", false, nil
	}

	for {
		line, err := b.r.ReadString('\n')
		if err == io.EOF {
			b.done = true
			if line == "" {
				return "", false, nil
			}
			return line, true, nil
		}
		if err != nil {
			return "", false, err
		}
		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		return line, true, nil
	}
}

// lineSpan extracts CHROM, POS and the indel shift window end of one raw
// line. shift is 0 for lines that cannot move during trimming.
func lineSpan(line string) (chrom string, pos, shift int, err error) {
	fields := strings.SplitN(line, "\t", vcf.NumFixedCols)
	if len(fields) < vcf.NumFixedCols {
		return "", 0, 0, errors.Errorf("expected at least %d columns, got %d", vcf.NumFixedCols, len(fields))
	}

	pos, err = strconv.Atoi(fields[vcf.PosIdx])
	if err != nil {
		return "", 0, 0, errors.Wrapf(err, "bad POS %q", fields[vcf.PosIdx])
	}
	chrom = fields[vcf.ChromIdx]

	ref := fields[vcf.RefIdx]
	maxAlt := 0
	indel := len(ref) >= 2
	for _, alt := range strings.Split(fields[vcf.AltIdx], ",") {
		if vcf.Symbolic(alt) || alt == "." {
			continue
		}
		if len(alt) > maxAlt {
			maxAlt = len(alt)
		}
		if len(alt) >= 2 {
			indel = true
		}
	}

	if !indel {
		return chrom, pos, 0, nil
	}

	span := len(ref)
	if maxAlt > 0 && maxAlt < span {
		span = maxAlt
	}
	return chrom, pos, pos + span - 1, nil
}

// Next returns the next batch, or io.EOF once the stream is exhausted.
func (b *Batcher) Next() (Batch, error) {
	target := b.size()
	if target < 1 {
		target = 1
	}

	var (
		lines    []string
		chrom    string
		maxShift int
	)

	for {
		line, ok, err := b.readLine()
		if err != nil {
			return Batch{}, err
		}
		if !ok {
			break
		}

		c, pos, shift, err := lineSpan(line)
		if err != nil {
			return Batch{}, errors.Wrapf(err, "line %q", line)
		}

		if len(lines) >= target && shift == 0 && (c != chrom || pos > maxShift) {
			b.pending = line
			b.havePnd = true
			break
		}

		if c != chrom {
			chrom = c
			maxShift = 0
		}
		if shift > maxShift {
			maxShift = shift
		}
		lines = append(lines, line)
	}

	if len(lines) == 0 {
		return Batch{}, io.EOF
	}

	batch := Batch{Num: b.next, Lines: lines}
	b.next++
	return batch, nil
}
