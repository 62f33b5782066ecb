package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateData carries the issuance-time fields handed to the rendering
// collaborator. The certificate ID doubles as the QR payload.
type CertificateData struct {
	CertificateID     string
	StudentName       string
	StudentIdentifier string
	Program           string
	IssuedBy          string
	IssuedAt          time.Time
}

// CertificatePDFExporter renders an issued clearance certificate as a PDF.
type CertificatePDFExporter struct{}

// NewCertificatePDFExporter constructs a certificate exporter.
func NewCertificatePDFExporter() *CertificatePDFExporter {
	return &CertificatePDFExporter{}
}

// Render produces the certificate artifact.
func (e *CertificatePDFExporter) Render(data CertificateData) ([]byte, error) {
	if data.CertificateID == "" {
		return nil, fmt.Errorf("certificate id is required")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 25, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 22)
	pdf.CellFormat(0, 14, "CLEARANCE CERTIFICATE", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 8, "This certifies that", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, data.StudentName, "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 8, fmt.Sprintf("Institutional ID: %s", data.StudentIdentifier), "", 1, "C", false, 0, "")
	if data.Program != "" {
		pdf.CellFormat(0, 8, fmt.Sprintf("Program: %s", data.Program), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)
	pdf.CellFormat(0, 8, "has been cleared by all departments and holds no outstanding obligations.", "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Courier", "", 11)
	pdf.CellFormat(0, 8, fmt.Sprintf("Certificate No: %s", data.CertificateID), "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 7, fmt.Sprintf("Issued by %s on %s", data.IssuedBy, data.IssuedAt.UTC().Format("02 Jan 2006 15:04 MST")), "", 1, "C", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}
