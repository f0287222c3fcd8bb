package invoice

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"bidmarket/models"
	"bidmarket/services/storage"

	"github.com/jung-kurt/gofpdf"
	qrcode "github.com/skip2/go-qrcode"
)

// Renderer turns an invoice into a binary document.
type Renderer interface {
	Render(inv models.Invoice) ([]byte, error)
}

// PDFRenderer draws a single page A4 receipt with a QR code that links to the
// booking for verification.
type PDFRenderer struct {
	Brand     string
	VerifyURL string
}

func NewPDFRenderer(brand, verifyURL string) *PDFRenderer {
	return &PDFRenderer{Brand: brand, VerifyURL: strings.TrimRight(verifyURL, "/")}
}

func (r *PDFRenderer) Render(inv models.Invoice) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()
	pdf.SetAutoPageBreak(false, 0)

	pdf.SetFont("Helvetica", "B", 20)
	pdf.Cell(0, 12, strings.ToUpper(r.Brand)+" PAYMENT RECEIPT")
	pdf.Ln(16)

	pdf.SetDrawColor(220, 220, 220)
	pdf.Line(15, pdf.GetY(), 195, pdf.GetY())
	pdf.Ln(6)

	// Summary block with the QR on the right.
	yStart := pdf.GetY()
	pdf.SetFillColor(245, 245, 245)
	pdf.Rect(15, yStart, 120, 48, "F")
	pdf.SetXY(20, yStart+6)
	pdf.SetFont("Helvetica", "", 11)
	for _, line := range []string{
		fmt.Sprintf("Invoice: %s", inv.InvoiceID),
		fmt.Sprintf("Booking: %s", inv.Reference.ID),
		fmt.Sprintf("Issued: %s", inv.IssuedAt.Format("02 Jan 2006 15:04 MST")),
		fmt.Sprintf("Payment: %s (%s)", inv.PaymentMethod, inv.PaymentID),
		fmt.Sprintf("Customer: %s", inv.CustomerName),
		fmt.Sprintf("Provider: %s", inv.ProviderName),
	} {
		pdf.SetX(20)
		pdf.Cell(0, 7, line)
		pdf.Ln(7)
	}

	qrBytes, err := qrcode.Encode(r.verifyLink(inv), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	pdf.RegisterImageOptionsReader("qr", gofpdf.ImageOptions{ImageType: "png"}, bytes.NewReader(qrBytes))
	pdf.ImageOptions("qr", 145, yStart+2, 45, 0, false, gofpdf.ImageOptions{ImageType: "png"}, 0, "")

	pdf.SetY(yStart + 56)
	drawSectionTitle(pdf, "SERVICES")
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(100, 8, "Service", "B", 0, "L", false, 0, "")
	pdf.CellFormat(25, 8, "Qty", "B", 0, "R", false, 0, "")
	pdf.CellFormat(55, 8, "Unit", "B", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	for _, item := range inv.LineItems {
		pdf.CellFormat(100, 7, item.ServiceID, "", 0, "L", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%d", item.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(55, 7, money(item.UnitCharge, inv.Currency), "", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	drawSectionTitle(pdf, "TOTALS")
	pdf.SetFont("Helvetica", "", 12)
	totalRow(pdf, "Total", money(inv.TotalAmount, inv.Currency))
	totalRow(pdf, "Discount", "-"+money(inv.Discount, inv.Currency))
	pdf.SetFont("Helvetica", "B", 12)
	totalRow(pdf, "Amount paid", money(inv.FinalAmount, inv.Currency))

	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(15, 285, 195, 285)
	pdf.SetY(288)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("%s. Keep this receipt for your records.", r.Brand), "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *PDFRenderer) verifyLink(inv models.Invoice) string {
	return fmt.Sprintf("%s/%s/%s", r.VerifyURL, strings.ToLower(string(inv.Reference.Kind)), inv.Reference.ID)
}

func drawSectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(0, 9, title, "", 1, "L", true, 0, "")
	pdf.Ln(2)
}

func totalRow(pdf *gofpdf.Fpdf, label, value string) {
	pdf.CellFormat(125, 8, label, "", 0, "L", false, 0, "")
	pdf.CellFormat(55, 8, value, "", 1, "R", false, 0, "")
}

func money(amount float64, currency string) string {
	return fmt.Sprintf("%.2f %s", amount, strings.ToUpper(currency))
}

// Issuer renders an invoice and uploads it.
type Issuer struct {
	renderer Renderer
	store    storage.ObjectStorage
}

func NewIssuer(renderer Renderer, store storage.ObjectStorage) *Issuer {
	return &Issuer{renderer: renderer, store: store}
}

// Issue returns the URL of the stored document.
func (i *Issuer) Issue(ctx context.Context, inv models.Invoice) (string, error) {
	doc, err := i.renderer.Render(inv)
	if err != nil {
		return "", err
	}
	url, err := i.store.Store(ctx, "invoice-"+inv.InvoiceID+".pdf", bytes.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("store invoice %s: %w", inv.InvoiceID, err)
	}
	return url, nil
}
