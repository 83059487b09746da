// Package varmap generates the variable-to-term mapping consumed by the NIDM
// converters from the columns of a representative participant table.
package varmap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"abide2nidm/internal/fileutil"
	"abide2nidm/internal/phenotype"
	"abide2nidm/internal/services"
)

const (
	xsdString      = "http://www.w3.org/2001/XMLSchema#string"
	xsdFloat       = "http://www.w3.org/2001/XMLSchema#float"
	xsdInteger     = "http://www.w3.org/2001/XMLSchema#integer"
	associatedNIDM = "NIDM"
)

// Term describes one column. Field order is the serialized key order.
type Term struct {
	Label          string `json:"label"`
	Description    string `json:"description"`
	ValueType      string `json:"valueType"`
	AssociatedWith string `json:"associatedWith"`
	HasUnit        string `json:"hasUnit"`
	MinValue       string `json:"minValue"`
	MaxValue       string `json:"maxValue"`
	SourceVariable string `json:"source_variable"`
}

// Mapping is an ordered column to Term map.
type Mapping struct {
	Columns []string
	Terms   map[string]Term
}

// Len returns the number of mapped columns.
func (m *Mapping) Len() int { return len(m.Columns) }

func knownTerms(dataset string) map[string]Term {
	return map[string]Term{
		"site_id": {
			Label:       "Site Identifier",
			Description: dataset + " site identifier",
			ValueType:   xsdString,
		},
		"participant_id": {
			Label:       "Participant Identifier",
			Description: "Unique participant identifier",
			ValueType:   xsdString,
		},
		"age_at_scan": {
			Label:       "Age at Scan",
			Description: "Age of participant at time of scan",
			ValueType:   xsdFloat,
		},
		"sex": {
			Label:       "Sex",
			Description: "Biological sex of participant",
			ValueType:   xsdInteger,
		},
		"dx_group": {
			Label:       "Diagnosis Group",
			Description: "Diagnostic group (1=ASD, 2=TD)",
			ValueType:   xsdInteger,
		},
	}
}

// Generate builds a mapping covering every column, in order. Unknown columns
// get a title-cased label and a generic string term.
func Generate(dataset string, columns []string) *Mapping {
	known := knownTerms(dataset)
	title := cases.Title(language.Und)
	m := &Mapping{Terms: make(map[string]Term, len(columns))}
	for _, col := range columns {
		if _, dup := m.Terms[col]; dup {
			continue
		}
		term, ok := known[strings.TrimSpace(col)]
		if !ok {
			term = Term{
				Label:       title.String(strings.ReplaceAll(col, "_", " ")),
				Description: fmt.Sprintf("%s %s variable", dataset, col),
				ValueType:   xsdString,
			}
		}
		term.AssociatedWith = associatedNIDM
		if term.SourceVariable == "" {
			term.SourceVariable = col
		}
		m.Columns = append(m.Columns, col)
		m.Terms[col] = term
	}
	return m
}

// MarshalJSON emits the mapping as a JSON object in column order.
func (m *Mapping) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range m.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(m.Terms[col])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Encode renders the mapping with two-space indentation.
func (m *Mapping) Encode() ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// FromTable reads the table at source and generates its mapping.
func FromTable(dataset, source string) (*Mapping, error) {
	table, err := phenotype.ReadTable(source)
	if err != nil {
		return nil, err
	}
	if len(table.Columns) == 0 {
		return nil, services.Wrap(services.ErrValidation, "mapping", "generate", "table has no columns", nil)
	}
	return Generate(dataset, table.Columns), nil
}

// Write renders the mapping to path.
func Write(m *Mapping, path string) error {
	data, err := m.Encode()
	if err != nil {
		return services.Wrap(services.ErrValidation, "mapping", "encode", "render json", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return services.Wrap(services.ErrCopy, "mapping", "write", path, err)
	}
	return nil
}
