// Package geno condenses the per-sample columns of a cleaned VCF record into
// the four aggregate genotype-group columns HV, HET, OTHER and HR. Each
// column is a '|'-separated list of groups, one group per exact genotype:
//
//	genotype~sample1[annot],sample2[annot]|genotype2~...
//
// Every non-NOCALL sample lands in exactly one column.
package geno

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/varpipe/varpipe-vcf/vcf"
)

// Columns are the four rendered genotype-group columns of one record. Empty
// groups render as ".".
type Columns struct {
	HV    string
	HET   string
	OTHER string
	HR    string
}

type group struct {
	a, b    int
	samples []string
}

// annotator picks the bracketed per-sample annotation for a record, chosen
// by caller dialect: SNV/indel records carry [DP:AF], CNV callers carry
// [GQ:FR:BP], [GQ:FR] or [BF:RR]. HR and OTHER calls never carry one.
func annotator(lay vcf.Layout) []int {
	switch {
	case lay.BF >= 0 && lay.RR >= 0:
		return []int{lay.BF, lay.RR}
	case lay.GQ >= 0 && lay.FR >= 0 && lay.BP >= 0:
		return []int{lay.GQ, lay.FR, lay.BP}
	case lay.GQ >= 0 && lay.FR >= 0:
		return []int{lay.GQ, lay.FR}
	case lay.DP >= 0 && lay.AF >= 0:
		return []int{lay.DP, lay.AF}
	default:
		return nil
	}
}

// Build buckets the record's samples into the four columns. names holds the
// sample names in column order.
func Build(rec *vcf.Record, names []string) (Columns, error) {
	if len(names) != len(rec.Samples) {
		return Columns{}, errors.Errorf("%d sample names for %d sample columns", len(names), len(rec.Samples))
	}

	lay := vcf.NewLayout(rec.Format)
	if lay.GT != 0 {
		return Columns{}, errors.New("FORMAT does not start with GT")
	}
	annot := annotator(lay)

	var hv, het, other []group
	var hr group

	for i, raw := range rec.Samples {
		fields := strings.Split(raw, ":")

		gt := fields[lay.GT]
		if gt == "." || gt == "./." || gt == ".|." {
			continue
		}

		a, b, ok := splitGT(gt)
		if !ok {
			return Columns{}, errors.Errorf("sample #%d: cannot parse GT %q", i+1, gt)
		}

		switch {
		case a == 0 && b == 0:
			hr.samples = append(hr.samples, names[i])
		case a == 0:
			het = addSample(het, a, b, renderSample(names[i], fields, annot))
		case a == b:
			hv = addSample(hv, a, b, renderSample(names[i], fields, annot))
		default:
			other = addSample(other, a, b, names[i])
		}
	}

	return Columns{
		HV:    renderGroups(hv),
		HET:   renderGroups(het),
		OTHER: renderGroups(other),
		HR:    renderHR(hr),
	}, nil
}

func splitGT(gt string) (int, int, bool) {
	gt = strings.ReplaceAll(gt, "|", "/")
	parts := strings.Split(gt, "/")
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	b, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	if a > b {
		a, b = b, a
	}
	return a, b, true
}

func addSample(groups []group, a, b int, sample string) []group {
	for i := range groups {
		if groups[i].a == a && groups[i].b == b {
			groups[i].samples = append(groups[i].samples, sample)
			return groups
		}
	}
	return append(groups, group{a: a, b: b, samples: []string{sample}})
}

func renderSample(name string, fields []string, annot []int) string {
	if annot == nil {
		return name
	}

	vals := make([]string, len(annot))
	for i, idx := range annot {
		if idx < len(fields) {
			vals[i] = fields[idx]
		} else {
			vals[i] = "."
		}
	}
	return name + "[" + strings.Join(vals, ":") + "]"
}

// renderGroups sorts groups by ascending numeric genotype tuple, first
// allele then second, and joins them with '|'.
func renderGroups(groups []group) string {
	if len(groups) == 0 {
		return "."
	}

	slices.SortFunc(groups, func(x, y group) int {
		if x.a != y.a {
			return x.a - y.a
		}
		return x.b - y.b
	})

	parts := make([]string, len(groups))
	for i, g := range groups {
		parts[i] = strconv.Itoa(g.a) + "/" + strconv.Itoa(g.b) + "~" + strings.Join(g.samples, ",")
	}
	return strings.Join(parts, "|")
}

// renderHR renders the single 0/0 group.
func renderHR(g group) string {
	if len(g.samples) == 0 {
		return "."
	}
	return "0/0~" + strings.Join(g.samples, ",")
}
