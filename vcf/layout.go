package vcf

import "github.com/pkg/errors"

// Layout resolves the FORMAT keys of one record to fixed positions, built
// once per record so sample parsing never re-derives a string-keyed map.
// Unknown keys keep their position in Keys but have no named accessor;
// absent keys are -1.
type Layout struct {
	Keys []string

	GT    int
	AF    int
	DP    int
	GQ    int
	GQX   int
	AD    int
	ADF   int
	ADR   int
	PL    int
	MinDP int

	// CNV caller dialect keys, used by the genotype-group columns.
	FR int
	BP int
	BF int
	RR int
}

// NewLayout indexes the FORMAT keys of one record.
func NewLayout(format []string) Layout {
	l := Layout{
		Keys: format,
		GT:   -1, AF: -1, DP: -1, GQ: -1, GQX: -1,
		AD: -1, ADF: -1, ADR: -1, PL: -1, MinDP: -1,
		FR: -1, BP: -1, BF: -1, RR: -1,
	}

	for i, key := range format {
		switch key {
		case "GT":
			l.GT = i
		case "AF":
			l.AF = i
		case "DP":
			l.DP = i
		case "GQ":
			l.GQ = i
		case "GQX":
			l.GQX = i
		case "AD":
			l.AD = i
		case "ADF":
			l.ADF = i
		case "ADR":
			l.ADR = i
		case "PL":
			l.PL = i
		case "MIN_DP":
			l.MinDP = i
		case "FR":
			l.FR = i
		case "BP":
			l.BP = i
		case "BF":
			l.BF = i
		case "RR":
			l.RR = i
		}
	}

	return l
}

// Check verifies the FORMAT keys the cleaner cannot work without: GT, a depth
// source (DP or AD), and a quality source (GQ or GQX). A record failing this
// is a structural error and aborts the run.
func (l Layout) Check() error {
	if l.GT != 0 {
		return errors.New("FORMAT does not start with GT")
	}
	if l.DP < 0 && l.AD < 0 {
		return errors.New("FORMAT has neither DP nor AD")
	}
	if l.GQ < 0 && l.GQX < 0 {
		return errors.New("FORMAT has neither GQ nor GQX")
	}
	return nil
}
