package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/breitband-atlas/coverage-cli/internal/aggregate"
	"github.com/breitband-atlas/coverage-cli/internal/model"
)

// WriteSummaryXLSX writes the per-status area summary as a spreadsheet.
func WriteSummaryXLSX(path string, summary []model.StatusArea, providerA, providerB string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Status", "Label", "Area (km²)", "Polygons"} {
		header.AddCell().Value = h
	}

	var totalKM2 float64
	for _, row := range summary {
		r := sheet.AddRow()
		r.AddCell().Value = string(row.Status)
		r.AddCell().Value = aggregate.Label(row.Status, providerA, providerB)
		r.AddCell().SetFloat(row.AreaKM2)
		r.AddCell().SetInt(row.Records)
		totalKM2 += row.AreaKM2
	}

	total := sheet.AddRow()
	total.AddCell().Value = "total"
	total.AddCell()
	total.AddCell().SetFloat(totalKM2)

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}
