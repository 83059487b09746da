package sites

import (
	"abide2nidm/internal/config"
	"abide2nidm/internal/fileutil"
)

// Status classifies what a site left in the output root.
type Status string

const (
	StatusComplete Status = "complete"
	StatusPartial  Status = "partial"
	StatusMissing  Status = "missing"
)

// Verification is the on-disk state of one site's outputs.
type Verification struct {
	Layout    Layout
	NIDM      bool
	Phenotype bool
	Status    Status
}

// Classify maps file presence to a status. A phenotype file without the
// NIDM file counts as missing.
func Classify(nidm, phenotype bool) Status {
	switch {
	case nidm && phenotype:
		return StatusComplete
	case nidm:
		return StatusPartial
	default:
		return StatusMissing
	}
}

// Verify inspects the output root for site.
func Verify(cfg *config.Config, site string) Verification {
	layout := NewLayout(cfg, site)
	nidm := fileutil.IsFile(layout.NIDM)
	pheno := fileutil.IsFile(layout.Phenotype)
	return Verification{
		Layout:    layout,
		NIDM:      nidm,
		Phenotype: pheno,
		Status:    Classify(nidm, pheno),
	}
}

// VerifyAll inspects every site in list order.
func VerifyAll(cfg *config.Config, list []string) []Verification {
	out := make([]Verification, 0, len(list))
	for _, site := range list {
		out = append(out, Verify(cfg, site))
	}
	return out
}
