package clean

import "github.com/varpipe/varpipe-vcf/vcf"

// Normalize trims bases shared by REF and every non-symbolic ALT: trailing
// bases first, then leading bases with POS incremented per stripped base.
// Leading trimming keeps at least two bases on each side so the anchor base
// convention survives; trailing trimming may shorten alleles to one base.
// This is minimal, position-order-preserving normalization, not
// left-alignment. Running it on its own output is a no-op.
func Normalize(rec *vcf.Record) {
	if len(rec.Ref) < 2 {
		return
	}

	var idx []int // positions of the non-symbolic ALTs
	for i, alt := range rec.Alts {
		if !vcf.Symbolic(alt) {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return
	}

	ref := rec.Ref
	alts := make([]string, len(idx))
	for i, j := range idx {
		alts[i] = rec.Alts[j]
	}

	for len(ref) >= 2 && sharedTail(ref, alts) {
		ref = ref[:len(ref)-1]
		for i := range alts {
			alts[i] = alts[i][:len(alts[i])-1]
		}
	}

	for len(ref) > 2 && sharedHead(ref, alts) {
		ref = ref[1:]
		for i := range alts {
			alts[i] = alts[i][1:]
		}
		rec.Pos++
	}

	rec.Ref = ref
	for i, j := range idx {
		rec.Alts[j] = alts[i]
	}
}

func sharedTail(ref string, alts []string) bool {
	last := ref[len(ref)-1]
	for _, alt := range alts {
		if len(alt) < 2 || alt[len(alt)-1] != last {
			return false
		}
	}
	return true
}

func sharedHead(ref string, alts []string) bool {
	for _, alt := range alts {
		if len(alt) <= 2 || alt[0] != ref[0] {
			return false
		}
	}
	return true
}
