package phenotype

import (
	"bytes"
	"encoding/csv"
	"errors"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"abide2nidm/internal/config"
	"abide2nidm/internal/fileutil"
	"abide2nidm/internal/logging"
	"abide2nidm/internal/services"
	"abide2nidm/internal/sites"
)

// SiteColumn is the column naming each row's site.
const SiteColumn = "site_id"

// ErrNoData is returned when no site contributed a table.
var ErrNoData = errors.New("no data to combine")

// SiteTable pairs a site identifier with its decoded table.
type SiteTable struct {
	Site  string
	Table *Table
}

// SiteFailure records a site whose table could not be read.
type SiteFailure struct {
	Site string
	Err  error
}

// Combined is the row-wise union of site tables. Columns appear in the order
// they were first seen; cells absent from a site's table are empty.
type Combined struct {
	Columns   []string
	Rows      [][]string
	Succeeded []string
	Failed    []SiteFailure
}

// Combine reads every prefixed site's participant table under the dataset
// root and unions them. Unreadable sites are recorded and skipped. When no
// site contributes, ErrNoData is returned with the failures still populated.
func Combine(cfg *config.Config, logger *slog.Logger) (*Combined, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	found, err := sites.Discover(cfg.Paths.DatasetRoot, cfg.Dataset.SitePrefix)
	if err != nil {
		return nil, err
	}
	logger.Info("discovered sites", logging.Int("count", len(found)))

	var tables []SiteTable
	var failed []SiteFailure
	for _, site := range found {
		layout := sites.NewLayout(cfg, site)
		table, err := ReadTable(layout.Participants)
		if err != nil {
			logging.WarnWithContext(logger, "site table unreadable", "copheno_site_failed",
				logging.Site(site),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, services.FailureHint(err)),
				logging.String(logging.FieldImpact, "site excluded from cophenotype table"),
			)
			failed = append(failed, SiteFailure{Site: site, Err: err})
			continue
		}
		logger.Info("site table loaded",
			logging.Site(site),
			logging.Int("rows", len(table.Rows)),
			logging.Int("columns", len(table.Columns)),
			logging.String("encoding", table.Encoding),
		)
		tables = append(tables, SiteTable{Site: site, Table: table})
	}

	combined, err := CombineTables(tables)
	if err != nil {
		return &Combined{Failed: failed}, err
	}
	combined.Failed = failed
	return combined, nil
}

// CombineTables unions already decoded tables, adding site_id where a table
// lacks it.
func CombineTables(tables []SiteTable) (*Combined, error) {
	if len(tables) == 0 {
		return nil, ErrNoData
	}
	out := &Combined{}
	position := map[string]int{}
	addColumn := func(name string) {
		if _, ok := position[name]; ok {
			return
		}
		position[name] = len(out.Columns)
		out.Columns = append(out.Columns, name)
	}

	type mapped struct {
		table   *Table
		site    string
		indexes []int
		addSite bool
	}
	prepared := make([]mapped, 0, len(tables))
	for _, st := range tables {
		m := mapped{table: st.Table, site: st.Site, addSite: st.Table.Index(SiteColumn) < 0}
		seen := map[string]struct{}{}
		for _, col := range st.Table.Columns {
			addColumn(col)
			if _, dup := seen[col]; dup {
				m.indexes = append(m.indexes, -1)
				continue
			}
			seen[col] = struct{}{}
			m.indexes = append(m.indexes, position[col])
		}
		if m.addSite {
			addColumn(SiteColumn)
		}
		prepared = append(prepared, m)
		out.Succeeded = append(out.Succeeded, st.Site)
	}

	siteIdx := position[SiteColumn]
	for _, m := range prepared {
		for _, row := range m.table.Rows {
			merged := make([]string, len(out.Columns))
			for i, cell := range row {
				if idx := m.indexes[i]; idx >= 0 {
					merged[idx] = cell
				}
			}
			if m.addSite {
				merged[siteIdx] = m.site
			}
			out.Rows = append(out.Rows, merged)
		}
	}
	return out, nil
}

// Column returns every row's value for name; nil when the column is absent.
func (c *Combined) Column(name string) []string {
	idx := -1
	for i, col := range c.Columns {
		if col == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	values := make([]string, len(c.Rows))
	for i, row := range c.Rows {
		values[i] = row[idx]
	}
	return values
}

// EncodeCSV renders the combined table as comma-separated text.
func (c *Combined) EncodeCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(c.Columns); err != nil {
		return nil, err
	}
	if err := w.WriteAll(c.Rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCSV writes the combined table to path.
func (c *Combined) WriteCSV(path string) error {
	data, err := c.EncodeCSV()
	if err != nil {
		return services.Wrap(services.ErrValidation, "copheno", "encode", "render csv", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return services.Wrap(services.ErrCopy, "copheno", "write", path, err)
	}
	return nil
}

// ValueCount is one distinct value and how many rows carry it.
type ValueCount struct {
	Value string
	Count int
}

// NumericSummary describes the parseable values of a numeric column.
type NumericSummary struct {
	Count int
	Mean  float64
	Std   float64
	Min   float64
	Max   float64
}

// Stats is the descriptive report printed after aggregation.
type Stats struct {
	Participants int
	Columns      int
	UniqueSites  int
	DxGroup      []ValueCount
	Sex          []ValueCount
	Age          *NumericSummary
}

// Stats computes the descriptive report for the combined table.
func (c *Combined) Stats() Stats {
	stats := Stats{Participants: len(c.Rows), Columns: len(c.Columns)}
	unique := map[string]struct{}{}
	for _, v := range c.Column(SiteColumn) {
		if v = strings.TrimSpace(v); v != "" {
			unique[v] = struct{}{}
		}
	}
	stats.UniqueSites = len(unique)
	stats.DxGroup = valueCounts(c.Column("dx_group"))
	stats.Sex = valueCounts(c.Column("sex"))
	stats.Age = summarize(c.Column("age_at_scan"))
	return stats
}

// valueCounts tallies non-empty values, most frequent first.
func valueCounts(values []string) []ValueCount {
	if values == nil {
		return nil
	}
	counts := map[string]int{}
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			counts[v]++
		}
	}
	out := make([]ValueCount, 0, len(counts))
	for v, n := range counts {
		out = append(out, ValueCount{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// summarize uses the sample standard deviation; a single value has Std 0.
func summarize(values []string) *NumericSummary {
	var nums []float64
	for _, v := range values {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) {
			continue
		}
		nums = append(nums, f)
	}
	if len(nums) == 0 {
		return nil
	}
	s := &NumericSummary{Count: len(nums), Min: nums[0], Max: nums[0]}
	var sum float64
	for _, n := range nums {
		sum += n
		s.Min = math.Min(s.Min, n)
		s.Max = math.Max(s.Max, n)
	}
	s.Mean = sum / float64(len(nums))
	if len(nums) > 1 {
		var sq float64
		for _, n := range nums {
			d := n - s.Mean
			sq += d * d
		}
		s.Std = math.Sqrt(sq / float64(len(nums)-1))
	}
	return s
}
