package datafetcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/shopspring/decimal"
)

// Table is a provider result: ordered columns and one map per record.
type Table struct {
	Columns []string
	Rows    []map[string]any
}

// Well-known names of the bar timestamp column, checked before the heuristic scan.
var dateColumns = []string{"日期", "时间", "date", "day", "datetime"}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

func (t *Table) Empty() bool { return t.Len() == 0 }

func (t *Table) Has(column string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Resolve returns the first candidate present in the table. ok is false when none is.
func (t *Table) Resolve(candidates ...string) (column string, ok bool) {
	for _, c := range candidates {
		if t.Has(c) {
			return c, true
		}
	}
	return "", false
}

// DateColumn finds the column holding bar timestamps: a known name first, then any
// column whose lower-cased name contains "date" or "time".
func (t *Table) DateColumn() (string, bool) {
	if col, ok := t.Resolve(dateColumns...); ok {
		return col, true
	}
	for _, c := range t.Columns {
		lc := strings.ToLower(c)
		if strings.Contains(lc, "date") || strings.Contains(lc, "time") {
			return c, true
		}
	}
	return "", false
}

// Append adds a record, registering columns it introduces.
func (t *Table) Append(row map[string]any, order []string) {
	for _, c := range order {
		if !t.Has(c) {
			t.Columns = append(t.Columns, c)
		}
	}
	t.Rows = append(t.Rows, row)
}

func (t *Table) Value(row int, column string) any {
	if row < 0 || row >= t.Len() {
		return nil
	}
	return t.Rows[row][column]
}

// String renders a cell as text. Numbers keep their JSON spelling.
func (t *Table) String(row int, column string) string {
	switch v := t.Value(row, column).(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Float coerces a cell to float64; anything unparseable is 0.
func (t *Table) Float(row int, column string) float64 {
	d, ok := toDecimal(t.Value(row, column))
	if !ok {
		return 0
	}
	return d.InexactFloat64()
}

// Int coerces a cell to int64, truncating fractions; anything unparseable is 0.
func (t *Table) Int(row int, column string) int64 {
	d, ok := toDecimal(t.Value(row, column))
	if !ok {
		return 0
	}
	return d.IntPart()
}

// Epoch converts a calendar cell to epoch seconds. Naive timestamps are read as UTC;
// numeric cells are taken as epoch seconds, or milliseconds when too large for seconds.
func (t *Table) Epoch(row int, column string) (int64, error) {
	v := t.Value(row, column)
	switch x := v.(type) {
	case nil:
		return 0, errors.New("empty date cell")
	case json.Number:
		return epochFromNumber(x.String())
	case float64:
		return epochFromNumber(strconv.FormatFloat(x, 'f', -1, 64))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, errors.New("empty date cell")
		}
		if isDigits(s) {
			return epochFromNumber(s)
		}
		ts, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return 0, fmt.Errorf("parse date %q: %w", s, err)
		}
		return ts.Unix(), nil
	default:
		return 0, fmt.Errorf("unsupported date cell %T", v)
	}
}

func epochFromNumber(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse epoch %q: %w", s, err)
	}
	n := d.IntPart()
	// yyyymmdd packed as an integer
	if n >= 19000101 && n <= 21001231 {
		if ts, err := time.ParseInLocation("20060102", strconv.FormatInt(n, 10), time.UTC); err == nil {
			return ts.Unix(), nil
		}
	}
	if n > 1e11 || n < -1e11 {
		return n / 1000, nil
	}
	return n, nil
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		return d, err == nil
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", "")
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	default:
		return decimal.Zero, false
	}
}

func isDigits(s string) bool {
	for i, r := range s {
		if r == '-' && i == 0 && len(s) > 1 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// DecodeTable reads a JSON array of records, keeping the column order of the payload.
// A null body decodes to an empty table.
func DecodeTable(r io.Reader) (*Table, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err == io.EOF {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if tok == nil {
		return &Table{}, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("unexpected payload start %v", tok)
	}

	table := &Table{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '{' {
			return nil, fmt.Errorf("unexpected record start %v", tok)
		}

		row := make(map[string]any)
		var order []string
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("read column name: %w", err)
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected column name %v", keyTok)
			}
			var value any
			if err := dec.Decode(&value); err != nil {
				return nil, fmt.Errorf("read column %s: %w", key, err)
			}
			row[key] = value
			order = append(order, key)
		}
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("close record: %w", err)
		}
		table.Append(row, order)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("close payload: %w", err)
	}
	return table, nil
}
