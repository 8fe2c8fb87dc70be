package xlsx

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
)

const (
	sheetName   = "Phân tích"
	contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	timeLayout  = "2006-01-02 15:04"
)

var header = []string{
	"ID", "Ngày tạo", "Trạng thái", "Cây", "Họ", "Độ tin cậy (%)", "Sức khỏe",
	"Bệnh", "Mức độ cao nhất", "Nhiệt độ (°C)", "Độ ẩm (%)", "Vị trí", "Ghi chú", "Ảnh",
}

// Exporter renders analyses as a single-sheet workbook.
type Exporter struct{}

func New() *Exporter {
	return &Exporter{}
}

func (e *Exporter) ContentType() string {
	return contentType
}

func (e *Exporter) Export(ctx context.Context, analyses []domain.Analysis, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("open stream writer: %w", err)
	}
	if err := sw.SetColWidth(2, 2, 18); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	headerRow := make([]any, len(header))
	for i, title := range header {
		headerRow[i] = excelize.Cell{StyleID: bold, Value: title}
	}
	if err := sw.SetRow("A1", headerRow); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, a := range analyses {
		if err := ctx.Err(); err != nil {
			return err
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := sw.SetRow(cell, analysisRow(a)); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func analysisRow(a domain.Analysis) []any {
	names := make([]string, 0, len(a.Diseases))
	for _, d := range a.Diseases {
		names = append(names, fmt.Sprintf("%s (%d%%)", d.Name, d.Confidence()))
	}

	var temperature, humidity any = "", ""
	if a.Weather != nil {
		temperature, humidity = a.Weather.Temperature, a.Weather.Humidity
	}
	location := ""
	if a.Location != nil {
		location = fmt.Sprintf("%.5f, %.5f", a.Location.Lat, a.Location.Lon)
	}

	return []any{
		a.ID,
		a.CreatedAt.Format(timeLayout),
		string(a.Status),
		a.PlantName,
		a.PlantFamily,
		a.Confidence,
		string(a.HealthStatus),
		strings.Join(names, "; "),
		string(a.HighestSeverity()),
		temperature,
		humidity,
		location,
		a.Notes,
		a.ImageURL,
	}
}
