package clean

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/varpipe/varpipe-vcf/vcf"
)

// plIndex is the VCF ordering of a genotype likelihood for the unordered
// allele pair {x, y}, x <= y.
func plIndex(x, y int) int {
	return x + y*(y+1)/2
}

// triangular is the PL array length for nAlleles alleles (REF included).
func triangular(nAlleles int) int {
	return plIndex(nAlleles-1, nAlleles-1) + 1
}

// reindexR rebuilds a Number=R value (AD, ADF, ADR) keeping REF plus the
// surviving-ALT positions, in new allele order. Positions the source array
// lacks come out as ".".
func reindexR(val string, keep []int) string {
	if !defined(val) {
		return val
	}

	old := strings.Split(val, ",")
	out := make([]string, len(keep))
	for i, pos := range keep {
		if pos < len(old) {
			out[i] = old[pos]
		} else {
			out[i] = missing
		}
	}
	return strings.Join(out, ",")
}

// reindexPL rebuilds a PL value for the new allele numbering. oldIdx maps a
// new genotype index back to its old one. When any required source position
// is absent (a known caller bug emits short PL arrays), the whole field is
// replaced with all-missing: a shifted PL is worse than an absent one.
func reindexPL(val string, oldIdx []int) string {
	if !defined(val) {
		return val
	}

	old := strings.Split(val, ",")
	n := len(oldIdx) // alleles in new numbering, REF included
	out := make([]string, triangular(n))

	for y := 0; y < n; y++ {
		for x := 0; x <= y; x++ {
			ox, oy := oldIdx[x], oldIdx[y]
			if ox > oy {
				ox, oy = oy, ox
			}
			p := plIndex(ox, oy)
			if p >= len(old) {
				return allMissingPL(n)
			}
			out[plIndex(x, y)] = old[p]
		}
	}

	return strings.Join(out, ",")
}

func allMissingPL(nAlleles int) string {
	out := make([]string, triangular(nAlleles))
	for i := range out {
		out[i] = missing
	}
	return strings.Join(out, ",")
}

// Renumber drops ALT alleles no surviving call references, renumbers the
// rest contiguously and rewrites every call's GT, AD, ADF, ADR and PL to the
// new numbering. REF stays index 0; symbolic alleles are always retained,
// re-appended after the called ALTs in their original relative order. No-op
// when the ALT list comes out unchanged.
func Renumber(rec *vcf.Record, calls []Call) error {
	if len(rec.Alts) == 0 {
		return nil
	}

	called := make([]bool, len(rec.Alts)+1)
	for _, c := range calls {
		if c.Missing {
			continue
		}
		called[c.A] = true
		called[c.B] = true
	}

	var newAlts []string
	oldPos := []int{0} // new allele index -> old allele index, REF included
	for i, alt := range rec.Alts {
		if !vcf.Symbolic(alt) && called[i+1] {
			newAlts = append(newAlts, alt)
			oldPos = append(oldPos, i+1)
		}
	}
	for i, alt := range rec.Alts {
		if vcf.Symbolic(alt) {
			newAlts = append(newAlts, alt)
			oldPos = append(oldPos, i+1)
		}
	}

	if slices.Equal(newAlts, rec.Alts) {
		return nil
	}

	remap := make([]int, len(rec.Alts)+1)
	for i := range remap {
		remap[i] = -1
	}
	for newIdx, old := range oldPos {
		remap[old] = newIdx
	}

	lay := vcf.NewLayout(rec.Format)

	for i := range calls {
		c := &calls[i]
		if c.Missing {
			continue
		}

		a, b := remap[c.A], remap[c.B]
		if a < 0 || b < 0 {
			return errors.Errorf("surviving call references dropped allele (GT %d/%d)", c.A, c.B)
		}
		if a > b {
			a, b = b, a
		}
		c.A, c.B = a, b

		for _, idx := range []int{lay.AD, lay.ADF, lay.ADR} {
			if idx >= 0 && idx < len(c.Fields) {
				c.Fields[idx] = reindexR(c.Fields[idx], oldPos)
			}
		}
		if lay.PL >= 0 && lay.PL < len(c.Fields) {
			c.Fields[lay.PL] = reindexPL(c.Fields[lay.PL], oldPos)
		}
	}

	rec.Alts = newAlts
	return nil
}
