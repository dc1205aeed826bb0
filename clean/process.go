package clean

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/varpipe/varpipe-vcf/stats"
	"github.com/varpipe/varpipe-vcf/vcf"
)

// Processor runs the full per-record cleaning pass: per-sample QC, allele
// renumbering, REF/ALT trimming. KeepCols selects the sample columns to
// retain (nil keeps all); KeepHR keeps records whose only surviving calls
// are homozygous reference.
type Processor struct {
	Params   Params
	NCols    int // column count declared by the #CHROM line
	KeepCols []int
	KeepHR   bool
}

// Process cleans one data line. It returns nil when the record is dropped
// (no surviving call, or HR-only outside KeepHR mode). Errors are
// structural and abort the run.
func (p *Processor) Process(line string, c *stats.Counters) (*Entry, error) {
	rec, err := vcf.Parse(line, p.NCols)
	if err != nil {
		return nil, err
	}

	if p.KeepCols != nil {
		kept := make([]string, len(p.KeepCols))
		for i, idx := range p.KeepCols {
			kept[i] = rec.Samples[idx]
		}
		rec.Samples = kept
	}

	lay := vcf.NewLayout(rec.Format)
	if err := lay.Check(); err != nil {
		return nil, err
	}

	star := rec.StarIndex()
	calls := make([]Call, len(rec.Samples))
	survivors, variant := false, false

	for i, raw := range rec.Samples {
		call, err := CleanSample(raw, lay, star, len(rec.Alts), p.Params, c)
		if err != nil {
			return nil, errors.Wrapf(err, "sample #%d", i+1)
		}
		calls[i] = call
		if !call.Missing {
			survivors = true
			if call.B > 0 {
				variant = true
			}
		}
	}

	if !survivors || (!variant && !p.KeepHR) {
		c.DroppedRecords++
		return nil, nil
	}

	if err := Renumber(rec, calls); err != nil {
		return nil, err
	}
	Normalize(rec)
	render(rec, calls, lay)

	return &Entry{Rec: rec, NonVariant: !variant || allSymbolic(rec.Alts)}, nil
}

func allSymbolic(alts []string) bool {
	for _, alt := range alts {
		if !vcf.Symbolic(alt) {
			return false
		}
	}
	return true
}

// Sentinel source positions for values the cleaner synthesizes rather than
// copies from the input sample.
const (
	srcGT = -2
	srcAF = -3
	srcDP = -4
)

// render rewrites FORMAT and the sample columns to the output schema: AF
// directly after GT, DP inserted before AD when the input lacked it,
// everything else in original order. An existing DP column passes through as
// the cleaner left it; only the sum(AD) correction rewrites it. NOCALL
// samples come out as "./.".
func render(rec *vcf.Record, calls []Call, lay vcf.Layout) {
	newKeys := []string{"GT", "AF"}
	src := []int{srcGT, srcAF}
	for i, key := range lay.Keys {
		if i == lay.GT || i == lay.AF {
			continue
		}
		if lay.DP < 0 && i == lay.AD {
			newKeys = append(newKeys, "DP")
			src = append(src, srcDP)
		}
		src = append(src, i)
		newKeys = append(newKeys, key)
	}

	samples := make([]string, len(calls))
	for i := range calls {
		samples[i] = renderCall(&calls[i], newKeys, src)
	}

	rec.Format = newKeys
	rec.Samples = samples
}

func renderCall(c *Call, newKeys []string, src []int) string {
	if c.Missing {
		return "./."
	}

	vals := make([]string, len(newKeys))
	for i, pos := range src {
		switch pos {
		case srcGT:
			vals[i] = strconv.Itoa(c.A) + "/" + strconv.Itoa(c.B)
		case srcAF:
			vals[i] = c.AF
		case srcDP:
			vals[i] = c.DP
		default:
			vals[i] = field(c.Fields, pos)
		}
	}

	return strings.Join(vals, ":")
}
