package service

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/PhmVu/EBN-Besu/internal/models"
	appErrors "github.com/PhmVu/EBN-Besu/pkg/errors"
	"github.com/PhmVu/EBN-Besu/pkg/export"
)

type scoreReportReader interface {
	ReportRows(ctx context.Context, classID string) ([]models.ScoreReportRow, error)
}

// Export formats for score sheets.
const (
	FormatCSV = "csv"
	FormatPDF = "pdf"
)

var scoreReportHeaders = []string{"Student", "Email", "Wallet", "Assignment", "Score", "Tx Hash"}

// ExportService renders class score sheets, owner-only.
type ExportService struct {
	classes classReader
	scores  scoreReportReader
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	logger  *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(classes classReader, scores scoreReportReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		classes: classes,
		scores:  scores,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
	}
}

// ScoreSheet renders a class's full score matrix in the requested
// format and returns the bytes with a suggested filename.
func (s *ExportService) ScoreSheet(ctx context.Context, classID, teacherID, format string) ([]byte, string, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.TeacherID != teacherID {
		return nil, "", appErrors.ErrForbidden
	}

	rows, err := s.scores.ReportRows(ctx, classID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build score report")
	}

	dataset := export.Dataset{Headers: scoreReportHeaders, Rows: make([]map[string]string, 0, len(rows))}
	for _, row := range rows {
		value := ""
		if row.Value != nil {
			value = strconv.Itoa(*row.Value)
		}
		txHash := ""
		if row.TxHash != nil {
			txHash = *row.TxHash
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":    row.StudentName,
			"Email":      row.StudentEmail,
			"Wallet":     row.WalletAddress,
			"Assignment": row.AssignmentTitle,
			"Score":      value,
			"Tx Hash":    txHash,
		})
	}

	filename := fmt.Sprintf("scores-%s.%s", strings.ToLower(class.Code), format)
	switch format {
	case FormatCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, filename, nil
	case FormatPDF:
		payload, err := s.pdf.Render(dataset, fmt.Sprintf("Score sheet %s", class.Code))
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, filename, nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}
