package sites

import (
	"path/filepath"
	"strings"

	"abide2nidm/internal/config"
)

// Layout holds every path derived from one site identifier.
type Layout struct {
	Site         string
	Basename     string
	InputDir     string
	Participants string
	NIDM         string
	Phenotype    string
	Log          string
}

// Basename strips prefix from site case-insensitively and lowercases the rest,
// so "ABIDEII-BNI_1" becomes "bni_1".
func Basename(site, prefix string) string {
	site = strings.TrimSpace(site)
	if prefix != "" && len(site) >= len(prefix) && strings.EqualFold(site[:len(prefix)], prefix) {
		site = site[len(prefix):]
	}
	return strings.ToLower(site)
}

// NewLayout resolves the locations for site under cfg.
func NewLayout(cfg *config.Config, site string) Layout {
	site = strings.TrimSpace(site)
	base := Basename(site, cfg.Dataset.SitePrefix)
	input := filepath.Join(cfg.Paths.DatasetRoot, site)
	return Layout{
		Site:         site,
		Basename:     base,
		InputDir:     input,
		Participants: filepath.Join(input, cfg.Dataset.ParticipantsFile),
		NIDM:         filepath.Join(cfg.Paths.OutputRoot, base+"_nidm.ttl"),
		Phenotype:    filepath.Join(cfg.Paths.OutputRoot, base+"_phenotype.ttl"),
		Log:          filepath.Join(cfg.Paths.LogDir, site+"_processing.log"),
	}
}
