package access

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"hrportal/internal/domain/auth"
)

type MatrixRow struct {
	Path    string          `json:"path"`
	Title   string          `json:"title"`
	Open    bool            `json:"open"`
	Allowed map[string]bool `json:"allowed"`
}

// Matrix is the route table expanded against every known role.
type Matrix struct {
	Roles []auth.Role `json:"roles"`
	Rows  []MatrixRow `json:"rows"`
}

func (p *Policy) Matrix() Matrix {
	m := Matrix{Roles: append([]auth.Role(nil), auth.KnownRoles...)}
	for _, rule := range p.routes {
		row := MatrixRow{
			Path:    rule.Path,
			Title:   rule.Title,
			Open:    !rule.Restricted(),
			Allowed: make(map[string]bool, len(m.Roles)),
		}
		for _, role := range m.Roles {
			row.Allowed[string(role)] = rule.Allows(role)
		}
		m.Rows = append(m.Rows, row)
	}
	return m
}

// WriteMatrixPDF renders the matrix as a landscape A4 table.
func WriteMatrixPDF(w io.Writer, m Matrix, generatedAt time.Time) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Access Matrix")
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Generated %s", generatedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(10)

	const pathWidth = 60.0
	roleWidth := 0.0
	if len(m.Roles) > 0 {
		roleWidth = (277.0 - pathWidth) / float64(len(m.Roles))
	}

	pdf.SetFont("Helvetica", "B", 8)
	pdf.CellFormat(pathWidth, 8, "Route", "1", 0, "L", false, 0, "")
	for _, role := range m.Roles {
		pdf.CellFormat(roleWidth, 8, string(role), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, row := range m.Rows {
		pdf.CellFormat(pathWidth, 7, fmt.Sprintf("%s (%s)", row.Title, row.Path), "1", 0, "L", false, 0, "")
		for _, role := range m.Roles {
			mark := "-"
			if row.Allowed[string(role)] {
				mark = "yes"
			}
			pdf.CellFormat(roleWidth, 7, mark, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render access matrix: %w", err)
	}
	return nil
}
