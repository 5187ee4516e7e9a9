// Package export renders the review step as downloadable documents.
package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"plant-onboarding/internal/observability/metrics"
	onboarding "plant-onboarding/internal/onboarding/domain"
)

// Format is a supported download format.
type Format string

const (
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/json"
	}
}

// ParseFormat maps a file extension to a Format.
func ParseFormat(ext string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimPrefix(ext, "."))) {
	case FormatJSON:
		return FormatJSON, true
	case FormatXLSX:
		return FormatXLSX, true
	case FormatPDF:
		return FormatPDF, true
	default:
		return "", false
	}
}

// FileName derives the download name from the payload file name, swapping
// the extension for non-JSON formats.
func FileName(payloadFileName string, f Format) string {
	if f == FormatJSON {
		return payloadFileName
	}
	return strings.TrimSuffix(payloadFileName, ".json") + "." + string(f)
}

// Render builds the document for f and records the export metric.
func Render(payload onboarding.SubmissionPayload, f Format) ([]byte, error) {
	start := time.Now()
	var (
		data []byte
		err  error
	)
	switch f {
	case FormatJSON:
		data, err = payload.MarshalIndent()
	case FormatXLSX:
		data, err = BuildReviewXLSX(payload)
	case FormatPDF:
		data, err = BuildReviewPDF(payload)
	default:
		err = fmt.Errorf("export: unsupported format %q", f)
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveExport(string(f), result, time.Since(start))
	return data, err
}

// BuildReviewPDF renders a one-page summary of the submission.
func BuildReviewPDF(payload onboarding.SubmissionPayload) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.Cell(0, 8, "Plant Onboarding Review")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Plant: %s", payload.Plant.Name)))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Address: %s", payload.Plant.Address)))
	pdf.Ln(5)
	if payload.Plant.ManagerEmail != "" {
		pdf.Cell(0, 6, tr(fmt.Sprintf("Manager: %s", payload.Plant.ManagerEmail)))
		pdf.Ln(5)
	}
	if payload.Plant.Description != "" {
		pdf.MultiCell(0, 5, tr(fmt.Sprintf("Description: %s", payload.Plant.Description)), "", "L", false)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Assets (%d)", len(payload.Assets)))
	pdf.Ln(6)
	pdf.CellFormat(60, 6, "Name", "1", 0, "C", false, 0, "")
	pdf.CellFormat(60, 6, "Display Name", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Type", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, asset := range payload.Assets {
		pdf.CellFormat(60, 6, tr(asset.Name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 6, tr(asset.DisplayName), "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, string(asset.AssetType), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Parameters (%d)", len(payload.Parameters)))
	pdf.Ln(6)
	pdf.CellFormat(55, 6, "Name", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Unit", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Category", "1", 0, "C", false, 0, "")
	pdf.CellFormat(60, 6, "Section", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, p := range payload.Parameters {
		pdf.CellFormat(55, 6, tr(p.Name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, tr(p.Unit), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, string(p.Category), "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 6, tr(p.Section), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	if len(payload.Formulas) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(0, 6, fmt.Sprintf("Formulas (%d)", len(payload.Formulas)))
		pdf.Ln(6)
		pdf.SetFont("Arial", "", 10)
		for _, f := range payload.Formulas {
			pdf.MultiCell(0, 5, tr(fmt.Sprintf("%s = %s", f.ParameterName, f.Expression)), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReviewXLSX renders the submission as a workbook with one sheet per
// section.
func BuildReviewXLSX(payload onboarding.SubmissionPayload) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	plantSheet := "plant"
	assetsSheet := "assets"
	paramsSheet := "parameters"
	formulasSheet := "formulas"
	f.SetSheetName("Sheet1", plantSheet)
	for _, name := range []string{assetsSheet, paramsSheet, formulasSheet} {
		f.NewSheet(name)
	}

	_ = f.SetCellValue(plantSheet, "A1", "Plant Onboarding Review")
	_ = f.SetCellValue(plantSheet, "A3", "Name")
	_ = f.SetCellValue(plantSheet, "B3", payload.Plant.Name)
	_ = f.SetCellValue(plantSheet, "A4", "Address")
	_ = f.SetCellValue(plantSheet, "B4", payload.Plant.Address)
	_ = f.SetCellValue(plantSheet, "A5", "Manager Email")
	_ = f.SetCellValue(plantSheet, "B5", payload.Plant.ManagerEmail)
	_ = f.SetCellValue(plantSheet, "A6", "Description")
	_ = f.SetCellValue(plantSheet, "B6", payload.Plant.Description)

	writeRow(f, assetsSheet, 1, "Name", "Display Name", "Asset Type")
	for i, asset := range payload.Assets {
		writeRow(f, assetsSheet, i+2, asset.Name, asset.DisplayName, string(asset.AssetType))
	}

	writeRow(f, paramsSheet, 1, "Name", "Display Name", "Unit", "Category", "Section")
	for i, p := range payload.Parameters {
		writeRow(f, paramsSheet, i+2, p.Name, p.DisplayName, p.Unit, string(p.Category), p.Section)
	}

	writeRow(f, formulasSheet, 1, "Parameter", "Expression", "Depends On")
	for i, formula := range payload.Formulas {
		writeRow(f, formulasSheet, i+2, formula.ParameterName, formula.Expression, strings.Join(formula.DependsOn, ", "))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...string) {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			continue
		}
		_ = f.SetCellValue(sheet, cell, value)
	}
}
