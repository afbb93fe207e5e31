package orders

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"voice-order-logger/internal/models"
)

// csvHeaders matches the export columns consumed by spreadsheet users.
var csvHeaders = []string{"餐點名稱", "單價", "數量", "小計", "記錄時間"}

// WriteCSV writes the orders as a UTF-8 CSV with a BOM so spreadsheet
// applications detect the encoding.
func WriteCSV(w io.Writer, orders []models.Order) error {
	if _, err := io.WriteString(w, "\uFEFF"); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, o := range orders {
		quantity := o.Quantity
		if quantity < 1 {
			quantity = 1
		}
		row := []string{
			o.Item,
			strconv.FormatFloat(o.Price, 'f', -1, 64),
			strconv.Itoa(quantity),
			strconv.FormatFloat(o.Subtotal(), 'f', -1, 64),
			o.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportFilename builds the attachment filename for an export taken at
// the given time.
func ExportFilename(now time.Time) string {
	stamp := now.UTC().Format(time.RFC3339)
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return fmt.Sprintf("orders_%s.csv", stamp)
}
