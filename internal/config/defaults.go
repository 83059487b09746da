package config

const (
	defaultDatasetRoot        = "~/datasets/abide2"
	defaultOutputRoot         = "~/.local/share/abide2nidm/nidm_outputs/abide2"
	defaultLogDir             = "~/.local/share/abide2nidm/logs/abide2"
	defaultMappingFile        = "~/.local/share/abide2nidm/abide2_variables_to_terms_complete.json"
	defaultCophenotypeCSV     = "~/.local/share/abide2nidm/ABIDE2_Cophenotype.csv"
	defaultSitesFile          = "~/.local/share/abide2nidm/abide2_sites.txt"
	defaultDatasetName        = "ABIDE2"
	defaultSitePrefix         = "ABIDEII-"
	defaultParticipantsFile   = "participants.tsv"
	defaultRepresentativeSite = "ABIDEII-BNI_1"
	defaultBIDSConverter      = "bidsmri2nidm"
	defaultCSVConverter       = "csv2nidm"
	defaultToolTimeout        = 3600
	defaultWorkers            = 4
	defaultIsolation          = IsolationProcess
	defaultSiteTimeout        = 3600
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DatasetRoot:    defaultDatasetRoot,
			OutputRoot:     defaultOutputRoot,
			LogDir:         defaultLogDir,
			MappingFile:    defaultMappingFile,
			CophenotypeCSV: defaultCophenotypeCSV,
			SitesFile:      defaultSitesFile,
		},
		Dataset: Dataset{
			Name:               defaultDatasetName,
			SitePrefix:         defaultSitePrefix,
			ParticipantsFile:   defaultParticipantsFile,
			RepresentativeSite: defaultRepresentativeSite,
		},
		Tools: Tools{
			BIDSConverter:  defaultBIDSConverter,
			CSVConverter:   defaultCSVConverter,
			TimeoutSeconds: defaultToolTimeout,
			NoConcepts:     true,
		},
		Batch: Batch{
			Workers:            defaultWorkers,
			Isolation:          defaultIsolation,
			SiteTimeoutSeconds: defaultSiteTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
