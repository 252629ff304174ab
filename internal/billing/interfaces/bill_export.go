package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	billing "homecare-cloud/internal/billing/domain"
)

// BuildBillPDF renders a PDF for a committed bill.
func BuildBillPDF(bill *billing.Bill) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, tr(fmt.Sprintf("Facture %s", bill.Number)))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Customer: %s", bill.CustomerID))
	pdf.Ln(5)
	if bill.ForThirdPartyPayer() {
		pdf.Cell(0, 6, fmt.Sprintf("Third-party payer: %s", bill.ThirdPartyPayerID))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Date: %s", bill.EndDate.Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", bill.Status))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Created: %s", bill.CreatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	if !bill.VoidedAt.IsZero() {
		pdf.Cell(0, 6, tr(fmt.Sprintf("Voided: %s %s", bill.VoidedAt.Format(time.RFC3339), bill.VoidReason)))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Service", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Hours", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "VAT %", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Excl. taxes", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Incl. taxes", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, line := range bill.Lines {
		pdf.CellFormat(60, 6, tr(line.ServiceName), "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%.2f", line.Hours), "1", 0, "R", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%.1f", line.VAT), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.2f", line.ExclTaxes), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.2f", line.InclTaxes), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Total incl. taxes: %.2f", bill.NetInclTaxes))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildBillXLSX renders a workbook with a summary sheet and one row per
// billed event.
func BuildBillXLSX(bill *billing.Bill) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	eventsSheet := "events"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(eventsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Bill")
	_ = f.SetCellValue(summarySheet, "B1", bill.Number)
	_ = f.SetCellValue(summarySheet, "A3", "Customer")
	_ = f.SetCellValue(summarySheet, "B3", bill.CustomerID)
	_ = f.SetCellValue(summarySheet, "A4", "Third-party payer")
	_ = f.SetCellValue(summarySheet, "B4", bill.ThirdPartyPayerID)
	_ = f.SetCellValue(summarySheet, "A5", "Date")
	_ = f.SetCellValue(summarySheet, "B5", bill.EndDate.Format("2006-01-02"))
	_ = f.SetCellValue(summarySheet, "A6", "Status")
	_ = f.SetCellValue(summarySheet, "B6", bill.Status)
	_ = f.SetCellValue(summarySheet, "A7", "Total incl. taxes")
	_ = f.SetCellValue(summarySheet, "B7", billing.Round2(bill.NetInclTaxes))
	_ = f.SetCellValue(summarySheet, "A8", "Snapshot hash")
	_ = f.SetCellValue(summarySheet, "B8", bill.SnapshotHash)

	headers := []string{"Service", "Event", "Auxiliary", "Start", "End", "Excl. taxes", "Incl. taxes", "Surcharges"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(eventsSheet, cell, header)
	}
	row := 2
	for _, line := range bill.Lines {
		for _, event := range line.EventsList {
			_ = f.SetCellValue(eventsSheet, fmt.Sprintf("A%d", row), line.ServiceName)
			_ = f.SetCellValue(eventsSheet, fmt.Sprintf("B%d", row), event.EventID)
			_ = f.SetCellValue(eventsSheet, fmt.Sprintf("C%d", row), event.AuxiliaryID)
			_ = f.SetCellValue(eventsSheet, fmt.Sprintf("D%d", row), event.StartDate.Format(time.RFC3339))
			_ = f.SetCellValue(eventsSheet, fmt.Sprintf("E%d", row), event.EndDate.Format(time.RFC3339))
			_ = f.SetCellValue(eventsSheet, fmt.Sprintf("F%d", row), billing.Round2(event.ExclTaxes))
			_ = f.SetCellValue(eventsSheet, fmt.Sprintf("G%d", row), billing.Round2(event.InclTaxes))
			_ = f.SetCellValue(eventsSheet, fmt.Sprintf("H%d", row), len(event.Surcharges))
			row++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
