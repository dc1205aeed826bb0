// Package clean implements the per-record call cleaning engine: per-sample
// genotype QC and repair, allele renumbering with AD/PL reindexing, REF/ALT
// trimming with position adjustment, and the phantom homozygous-reference
// merge for adjacent records.
package clean

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/varpipe/varpipe-vcf/stats"
	"github.com/varpipe/varpipe-vcf/vcf"
)

// Params are the QC thresholds applied to every sample call. The CLI is
// responsible for providing all of them; the engine bakes in no defaults.
type Params struct {
	MinDP    int     // below this depth a call becomes ./.
	MinGQ    float64 // below this genotype quality a call becomes ./.
	MinAF    float64 // below this allele fraction a 0/x or x/x call becomes ./.
	MinDPHV  int     // depth floor for rewriting 0/x to x/x
	MinAFHV  float64 // AF floor for rewriting 0/x to x/x
	MinDPHET int     // depth floor for rewriting x/x to 0/x
	MinAFHET float64 // AF floor for rewriting x/x to 0/x
	MaxAFHET float64 // AF ceiling for rewriting x/x to 0/x
}

// Call is one sample's cleaned genotype. Fields keeps the sample's raw
// subfields at their original FORMAT positions (DP possibly corrected, AD/PL
// possibly reindexed); the renderer reassembles them under the new FORMAT.
type Call struct {
	A, B    int // genotype indices, unphased, A <= B
	AF      string
	DP      string
	Fields  []string
	Missing bool
}

const missing = "."

func defined(s string) bool {
	return s != "" && s != missing
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// field returns the sample subfield at FORMAT position i, or "." when the
// sample dropped trailing fields.
func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return missing
	}
	return fields[i]
}

// sumAD adds up the defined entries of an AD value.
func sumAD(ad string) int {
	if !defined(ad) {
		return 0
	}
	sum := 0
	for _, v := range strings.Split(ad, ",") {
		if n, err := strconv.Atoi(v); err == nil {
			sum += n
		}
	}
	return sum
}

// parseGT splits a raw GT into two allele indices, unphased. A single
// integer (hemizygous) is promoted to x/x. Errors are structural: an
// unparseable GT means upstream caller corruption and aborts the batch.
func parseGT(gt string) (int, int, bool, error) {
	gt = strings.ReplaceAll(gt, "|", "/")

	parts := strings.Split(gt, "/")
	switch len(parts) {
	case 1:
		if parts[0] == missing {
			return 0, 0, true, nil
		}
		x, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, 0, false, errors.Errorf("cannot parse GT %q", gt)
		}
		return x, x, false, nil
	case 2:
		if parts[0] == missing || parts[1] == missing {
			return 0, 0, true, nil
		}
		a, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, 0, false, errors.Errorf("cannot parse GT %q", gt)
		}
		b, err := strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, false, errors.Errorf("cannot parse GT %q", gt)
		}
		return a, b, false, nil
	default:
		return 0, 0, false, errors.Errorf("cannot parse GT %q", gt)
	}
}

// CleanSample applies the QC thresholds and call-fixing heuristics to one
// raw sample column. star is the genotype index of the '*' allele (0 when
// the record has none), nAlts the number of ALT alleles. Threshold failures
// yield Missing calls; only structural damage returns an error.
func CleanSample(raw string, lay vcf.Layout, star, nAlts int, p Params, c *stats.Counters) (Call, error) {
	nocall := Call{Missing: true}

	fields := strings.Split(raw, ":")

	gt := field(fields, lay.GT)
	if !defined(gt) {
		return nocall, nil
	}

	a, b, miss, err := parseGT(gt)
	if err != nil {
		return nocall, err
	}
	if miss {
		return nocall, nil
	}
	if a < 0 || b < 0 || a > nAlts || b > nAlts {
		return nocall, errors.Errorf("GT %q references allele beyond ALT list", gt)
	}

	// Collapse a single '*' onto the other allele; a double '*' carries no
	// usable call.
	if star > 0 {
		switch {
		case a == star && b == star:
			c.NoCalls++
			return nocall, nil
		case a == star:
			a = b
		case b == star:
			b = a
		}
	}

	if a > b {
		a, b = b, a
	}

	// Genotype quality: best of GQ and GQX.
	gq := math.Inf(-1)
	haveGQ := false
	for _, i := range []int{lay.GQ, lay.GQX} {
		if v := field(fields, i); defined(v) {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				haveGQ = true
				gq = math.Max(gq, f)
			}
		}
	}
	if !haveGQ || gq < p.MinGQ {
		c.NoCalls++
		return nocall, nil
	}

	// Effective depth: MIN_DP overrides everything; otherwise the larger of
	// DP and sum(AD). Some callers oversum AD relative to DP; when that
	// happens DP is corrected in place.
	adSum := sumAD(field(fields, lay.AD))
	dp := 0
	if v := field(fields, lay.MinDP); defined(v) {
		if n, err := strconv.Atoi(v); err == nil {
			dp = n
		}
	} else {
		if v := field(fields, lay.DP); defined(v) {
			if n, err := strconv.Atoi(v); err == nil {
				dp = n
				if n < adSum {
					fields[lay.DP] = strconv.Itoa(adSum)
					c.FixedDP++
				}
			}
		}
		if adSum > dp {
			dp = adSum
		}
	}
	if dp < p.MinDP {
		c.NoCalls++
		return nocall, nil
	}

	call := Call{A: a, B: b, AF: missing, DP: strconv.Itoa(dp), Fields: fields}

	// Allele fraction applies to 0/x and x/x calls only; x/y calls and true
	// homozygous reference stay at ".".
	x := 0
	if a == 0 && b > 0 {
		x = b
	} else if a == b && a > 0 {
		x = a
	}

	if x > 0 {
		ad := strings.Split(field(fields, lay.AD), ",")
		adx := 0
		if x < len(ad) {
			adx, _ = strconv.Atoi(ad[x])
		}
		if adx == 0 {
			return nocall, errors.Errorf("no AD support for called allele %d in %q", x, raw)
		}

		af := round2(float64(adx) / float64(dp))
		if af < p.MinAF {
			c.NoCalls++
			return nocall, nil
		}
		call.AF = strconv.FormatFloat(af, 'f', 2, 64)

		// Re-call blatant miscalls: a HET with almost every read on the
		// variant allele is really HV, and a HV sitting in HET allele
		// fraction territory is really HET. The two conditions cannot both
		// hold for one call.
		if a == 0 {
			if dp >= p.MinDPHV && af >= p.MinAFHV {
				call.A = call.B
				c.FixedToHV++
			}
		} else if dp >= p.MinDPHET && af >= p.MinAFHET && af <= p.MaxAFHET {
			call.A = 0
			c.FixedToHET++
		}
	}

	return call, nil
}
