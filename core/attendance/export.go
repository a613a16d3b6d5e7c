package attendance

import (
	"encoding/csv"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/pkg/errors"

	"github.com/brijeshkumar2024/smart-attendance/core"
)

var exportHeader = []string{"Student", "Email", "Class", "Subject", "Date", "Status"}

// ExportCSV writes the records as CSV, in the order given.
func ExportCSV(w io.Writer, details []Detail) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, d := range details {
		row := []string{d.StudentName, d.StudentEmail, d.ClassName, d.Subject, core.FormatDate(d.Date), d.Status}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "writing csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}

var exportColWidths = [...]float64{100, 140, 90, 80, 60, 53}

// ExportPDF writes the records as an A4 PDF table, in the order given.
func ExportPDF(w io.Writer, details []Detail) error {
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(36, 36, 36)
	pdf.SetAutoPageBreak(true, 36)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 20, "Attendance Report")
	pdf.Ln(28)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range exportHeader {
		pdf.CellFormat(exportColWidths[i], 18, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, d := range details {
		row := []string{d.StudentName, d.StudentEmail, d.ClassName, d.Subject, core.FormatDate(d.Date), d.Status}
		for i, cell := range row {
			pdf.CellFormat(exportColWidths[i], 16, cell, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	return errors.Wrap(pdf.Output(w), "rendering pdf")
}
