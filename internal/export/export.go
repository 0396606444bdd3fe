package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"dbella/pos/internal/domain"
)

const ProfitSheet = "Rentabilidad"

var salesHeader = []string{"Fecha", "Cliente", "Método de Pago", "Total"}

var profitHeader = []any{
	"ID Venta", "Fecha", "Cliente", "Método de Pago",
	"Venta Total", "Costo Total", "Ganancia", "Margen (%)",
}

// Money renders integer cents as a fixed two-decimal amount.
func Money(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

func clientName(name string) string {
	if name == "" {
		return domain.DefaultClientName
	}
	return name
}

func SalesFilename(now time.Time) string {
	return fmt.Sprintf("ventas_%s.csv", now.Format("2006-01-02"))
}

func ProfitsFilename(now time.Time) string {
	return fmt.Sprintf("rentabilidad_%s.xlsx", now.Format("2006-01-02_1504"))
}

// WriteSalesCSV writes one row per sale. The Ganancia and Margen % columns
// are only emitted when withProfit is set.
func WriteSalesCSV(w io.Writer, rows []domain.SaleRow, withProfit bool, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)

	header := append([]string(nil), salesHeader...)
	if withProfit {
		header = append(header, "Ganancia", "Margen %")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			row.SaleDate.In(loc).Format("02/01/2006"),
			clientName(row.ClientName),
			row.PaymentMethod,
			Money(row.TotalCents),
		}
		if withProfit {
			record = append(record, Money(row.ProfitCents), strconv.FormatFloat(row.ProfitMargin, 'f', 2, 64))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteProfitsXLSX writes the profitability workbook with a single
// "Rentabilidad" sheet.
func WriteProfitsXLSX(w io.Writer, rows []domain.SaleRow, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), ProfitSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(ProfitSheet, "A1", &profitHeader); err != nil {
		return err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{
			row.ID,
			row.SaleDate.In(loc).Format("02/01/2006 15:04"),
			clientName(row.ClientName),
			row.PaymentMethod,
			decimal.New(row.TotalCents, -2).InexactFloat64(),
			decimal.New(row.TotalCostCents, -2).InexactFloat64(),
			decimal.New(row.ProfitCents, -2).InexactFloat64(),
			row.ProfitMargin,
		}
		if err := f.SetSheetRow(ProfitSheet, cell, &values); err != nil {
			return err
		}
	}

	_, err := f.WriteTo(w)
	return err
}

// WriteReceiptPDF renders a narrow thermal-style ticket for one sale.
func WriteReceiptPDF(w io.Writer, sale *domain.Sale, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	height := 90.0 + 5*float64(len(sale.Items))
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: 80, Ht: height},
	})
	pdf.SetMargins(4, 4, 4)
	pdf.SetAutoPageBreak(false, 4)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 8

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(contentW, 7, "D'Bella", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(contentW, 5, tr("Comprobante de venta"), "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 7)
	pdf.CellFormat(contentW, 4, tr("Venta #"+sale.ID), "", 1, "L", false, 0, "")
	pdf.CellFormat(contentW, 4, sale.SaleDate.In(loc).Format("02/01/2006  15:04"), "", 1, "L", false, 0, "")
	pdf.CellFormat(contentW, 4, tr("Cliente: "+clientName(sale.ClientName)), "", 1, "L", false, 0, "")
	pdf.Ln(1)
	pdf.Line(4, pdf.GetY(), pageW-4, pdf.GetY())
	pdf.Ln(2)

	col1 := contentW * 0.50
	col2 := contentW * 0.15
	col3 := contentW * 0.35

	pdf.SetFont("Helvetica", "B", 7)
	pdf.CellFormat(col1, 5, "Producto", "B", 0, "L", false, 0, "")
	pdf.CellFormat(col2, 5, "Cant", "B", 0, "C", false, 0, "")
	pdf.CellFormat(col3, 5, "Subtotal", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	for _, line := range mergeLines(sale.Items) {
		name := []rune(line.ProductName)
		if len(name) > 24 {
			name = append(name[:23], '.')
		}
		pdf.CellFormat(col1, 5, tr(string(name)), "", 0, "L", false, 0, "")
		pdf.CellFormat(col2, 5, fmt.Sprintf("x%d", line.Quantity), "", 0, "C", false, 0, "")
		pdf.CellFormat(col3, 5, "$"+Money(line.SubtotalCents), "", 1, "R", false, 0, "")
	}

	pdf.Ln(2)
	pdf.Line(4, pdf.GetY(), pageW-4, pdf.GetY())
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(col1+col2, 6, "TOTAL:", "", 0, "L", false, 0, "")
	pdf.CellFormat(col3, 6, "$"+Money(sale.TotalCents), "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	pdf.CellFormat(col1+col2, 4, tr("Pago ("+sale.PaymentMethod+"):"), "", 0, "L", false, 0, "")
	pdf.CellFormat(col3, 4, "$"+Money(max(sale.AmountReceivedCents, sale.TotalCents)), "", 1, "R", false, 0, "")
	if sale.PaymentMethod == domain.PaymentCash {
		pdf.CellFormat(col1+col2, 4, "Cambio:", "", 0, "L", false, 0, "")
		pdf.CellFormat(col3, 4, "$"+Money(sale.ChangeCents), "", 1, "R", false, 0, "")
	}

	pdf.Ln(3)
	pdf.SetFont("Helvetica", "I", 7)
	pdf.CellFormat(contentW, 4, tr("¡Gracias por su compra!"), "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// mergeLines folds the per-batch items of a sale back into one line per product.
func mergeLines(items []domain.SaleItem) []domain.SaleItem {
	merged := make([]domain.SaleItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			merged[i].SubtotalCents += item.SubtotalCents
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}
