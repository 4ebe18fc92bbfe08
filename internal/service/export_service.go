package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"fieldops-data/internal/domain"
	"fieldops-data/internal/repository"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// ExportService 导出服务接口（CSV / XLSX）
type ExportService interface {
	Export(ctx context.Context, actor Actor, exportType, format string) (*ExportResult, error)
}

type exportService struct {
	analyticsRepo repository.AnalyticsRepository
	logger        *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(analyticsRepo repository.AnalyticsRepository, logger *zap.Logger) ExportService {
	return &exportService{analyticsRepo: analyticsRepo, logger: logger}
}

// ExportResult 导出产物
type ExportResult struct {
	FileName    string
	ContentType string
	Data        []byte
}

var workOrderExportHeader = []string{
	"ID", "Title", "Status", "Priority", "Location",
	"Deadline", "Created By", "Assigned To", "Completed At", "Created At",
}

var workerExportHeader = []string{
	"ID", "First Name", "Last Name", "Email",
	"Assigned", "Completed", "Avg Completion Hours", "On-Time Rate %", "Hours Logged",
}

func (s *exportService) Export(ctx context.Context, actor Actor, exportType, format string) (*ExportResult, error) {
	if err := requireRole(actor, domain.RoleAdministrator, domain.RoleManager); err != nil {
		return nil, err
	}
	if format != "csv" && format != "xlsx" {
		return nil, domain.ErrBadRequest("format must be csv or xlsx")
	}

	var header []string
	var records [][]string
	var err error

	switch exportType {
	case "work-orders":
		header = workOrderExportHeader
		records, err = s.workOrderRecords(ctx)
	case "workers":
		header = workerExportHeader
		records, err = s.workerRecords(ctx)
	default:
		return nil, domain.ErrBadRequest("type must be work-orders or workers")
	}
	if err != nil {
		return nil, err
	}

	stamp := time.Now().Format("2006-01-02")
	if format == "csv" {
		data, err := renderCSV(header, records)
		if err != nil {
			return nil, err
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("%s-%s.csv", exportType, stamp),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	}

	data, err := renderXLSX(header, records)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		FileName:    fmt.Sprintf("%s-%s.xlsx", exportType, stamp),
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Data:        data,
	}, nil
}

func (s *exportService) workOrderRecords(ctx context.Context) ([][]string, error) {
	rows, err := s.analyticsRepo.ExportWorkOrders(ctx)
	if err != nil {
		return nil, err
	}
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		completed := ""
		if r.CompletedAt.Valid {
			completed = r.CompletedAt.Time.Format(time.RFC3339)
		}
		records = append(records, []string{
			r.ID, r.Title, r.Status, r.Priority, r.Location,
			r.Deadline.Format(time.RFC3339), r.CreatedBy, r.AssignedTo,
			completed, r.CreatedAt.Format(time.RFC3339),
		})
	}
	return records, nil
}

func (s *exportService) workerRecords(ctx context.Context) ([][]string, error) {
	perf, err := s.analyticsRepo.WorkerPerformance(ctx)
	if err != nil {
		return nil, err
	}
	records := make([][]string, 0, len(perf))
	for _, p := range perf {
		onTime := 0.0
		if p.CompletedCount > 0 {
			onTime = round1(float64(p.OnTimeCount) / float64(p.CompletedCount) * 100)
		}
		records = append(records, []string{
			p.ID, p.FirstName, p.LastName, p.Email,
			strconv.Itoa(p.AssignedCount), strconv.Itoa(p.CompletedCount),
			strconv.FormatFloat(round1(p.AvgCompletionHours), 'f', 1, 64),
			strconv.FormatFloat(onTime, 'f', 1, 64),
			strconv.FormatFloat(round1(float64(p.MinutesLogged)/60), 'f', 1, 64),
		})
	}
	return records, nil
}

func renderCSV(header []string, records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderXLSX(header []string, records [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	for col, name := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return nil, err
		}
	}
	for row, record := range records {
		for col, value := range record {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
