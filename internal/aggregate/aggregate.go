// Package aggregate merges per-cell classification output into the citywide
// result set and its area summary.
package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/breitband-atlas/coverage-cli/internal/model"
)

// Merge combines per-cell record lists into one set and assigns record IDs.
// Cells are non-overlapping by construction, so merging is plain
// concatenation: no deduplication or re-clipping is needed.
func Merge(perCell ...[]model.ClassifiedRecord) []model.ClassifiedRecord {
	var out []model.ClassifiedRecord
	for _, records := range perCell {
		for _, r := range records {
			r.ID = uuid.New().String()
			out = append(out, r)
		}
	}
	return out
}

// Summarize computes the area-by-status table in km². Because cells
// partition the boundary and the competition/monopoly/white-spot statuses
// are disjoint within each cell, summing per-record areas is exact: nothing
// is double counted.
func Summarize(records []model.ClassifiedRecord) []model.StatusArea {
	byStatus := make(map[model.Status]*model.StatusArea)
	for _, r := range records {
		sa, ok := byStatus[r.Status]
		if !ok {
			sa = &model.StatusArea{Status: r.Status}
			byStatus[r.Status] = sa
		}
		sa.AreaKM2 += r.AreaM2 / 1e6
		sa.Records++
	}

	out := make([]model.StatusArea, 0, len(byStatus))
	for _, status := range model.AllStatuses {
		if sa, ok := byStatus[status]; ok {
			out = append(out, *sa)
		}
	}
	// Statuses outside the known set should not exist; keep them visible if
	// they ever do.
	for status, sa := range byStatus {
		if !status.Valid() {
			out = append(out, *sa)
		}
	}
	sortStable(out)
	return out
}

func sortStable(rows []model.StatusArea) {
	order := make(map[model.Status]int, len(model.AllStatuses))
	for i, s := range model.AllStatuses {
		order[s] = i
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return order[rows[i].Status] < order[rows[j].Status]
	})
}

// statusLabels are the human-readable report names.
var statusLabels = map[model.Status]string{
	model.StatusCompetition: "Competition",
	model.StatusMonopolyA:   "Monopoly A",
	model.StatusMonopolyB:   "Monopoly B",
	model.StatusPlanned:     "Planned",
	model.StatusWhiteSpot:   "White spot",
}

// Label returns the report name for a status, with provider names filled in
// for the monopoly rows when known.
func Label(status model.Status, providerA, providerB string) string {
	switch status {
	case model.StatusMonopolyA:
		if providerA != "" {
			return "Monopoly " + providerA
		}
	case model.StatusMonopolyB:
		if providerB != "" {
			return "Monopoly " + providerB
		}
	}
	if l, ok := statusLabels[status]; ok {
		return l
	}
	return string(status)
}

// FormatSummary renders the summary as the console report table.
func FormatSummary(rows []model.StatusArea, providerA, providerB string, failedCells int) string {
	p := message.NewPrinter(language.English)

	var b strings.Builder
	b.WriteString(strings.Repeat("=", 44) + "\n")
	b.WriteString("Coverage analysis (km²)\n")
	b.WriteString(strings.Repeat("=", 44) + "\n")
	for _, row := range rows {
		label := Label(row.Status, providerA, providerB)
		b.WriteString(p.Sprintf("%-24s %10.2f  (%d records)\n", label, row.AreaKM2, row.Records))
	}
	if failedCells > 0 {
		b.WriteString(strings.Repeat("-", 44) + "\n")
		b.WriteString(fmt.Sprintf("failed cells: %d (contributed no records)\n", failedCells))
	}
	b.WriteString(strings.Repeat("=", 44))
	return b.String()
}
