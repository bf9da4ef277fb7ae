package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"stock_screener/config"
	"stock_screener/models"

	"github.com/tidwall/pretty"
)

var ErrNotFound = errors.New("results file not found")

var csvHeader = []string{"symbol", "price", "PE", "PB", "ROE", "RSI", "ProfitMargin", "EPS_Growth", "RevenueGrowth", "Score"}

// FormatFromPath picks CSV for .csv files and JSON otherwise.
func FormatFromPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return config.FormatCSV
	}
	return config.FormatJSON
}

// Write replaces the file at path with rows encoded as format. The new
// content is written to a sibling temp file and renamed into place.
func Write(path, format string, rows []models.ScoredSymbol) error {
	if format == "" {
		format = FormatFromPath(path)
	}

	var (
		data []byte
		err  error
	)
	switch format {
	case config.FormatJSON:
		data, err = encodeJSON(rows)
	case config.FormatCSV:
		data, err = encodeCSV(rows)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close results: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// ReadJSON loads a JSON results file written by Write.
func ReadJSON(path string) ([]models.ScoredSymbol, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}

	var rows []models.ScoredSymbol
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	return rows, nil
}

func encodeJSON(rows []models.ScoredSymbol) ([]byte, error) {
	if rows == nil {
		rows = []models.ScoredSymbol{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to encode results: %w", err)
	}
	return pretty.Pretty(data), nil
}

func encodeCSV(rows []models.ScoredSymbol) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, r := range rows {
		record := []string{
			r.Symbol,
			formatFloat(r.Price),
			formatOptional(r.PE),
			formatOptional(r.PB),
			formatOptional(r.ROE),
			formatOptional(r.RSI),
			formatOptional(r.ProfitMargin),
			formatOptional(r.EPSGrowth),
			formatOptional(r.RevenueGrowth),
			strconv.Itoa(r.Score),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
