package services

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"udf_backend_project/models"
	"udf_backend_project/services/datafetcher"
)

// Column candidates, first present wins.
var (
	stockCodeColumns  = []string{"代码", "symbol", "股票代码"}
	stockNameColumns  = []string{"名称", "name", "股票名称"}
	futureNameColumns = []string{"品种", "产品名称", "合约名称", "名称"}
)

// ErrUnrecognizedColumns is returned when a list table lacks a usable code or name column.
var ErrUnrecognizedColumns = errors.New("unrecognized list columns")

// Listed product codes per futures exchange.
var futureProducts = map[string][]string{
	models.ExchangeCFFEX: {"IF", "IC", "IH", "IM", "T", "TF", "TS", "TL"},
	models.ExchangeSHFE:  {"CU", "AL", "ZN", "PB", "NI", "SN", "AU", "AG", "RB", "HC", "SS", "BU", "RU", "FU", "SP", "WR", "AO", "BR"},
	models.ExchangeDCE:   {"A", "B", "C", "CS", "M", "Y", "P", "J", "JM", "I", "JD", "L", "V", "PP", "EG", "EB", "PG", "RR", "LH", "FB", "BB", "LG"},
	models.ExchangeCZCE:  {"CF", "SR", "TA", "MA", "OI", "RM", "FG", "ZC", "SF", "SM", "AP", "CJ", "UR", "SA", "PF", "PK", "CY", "JR", "LR", "RI", "WH", "PM", "RS", "PX", "SH", "PR"},
	models.ExchangeINE:   {"SC", "LU", "NR", "BC", "EC"},
	models.ExchangeGFEX:  {"SI", "LC", "PS", "PT", "PD"},
}

var productExchange = func() map[string]string {
	m := make(map[string]string)
	for exchange, products := range futureProducts {
		for _, p := range products {
			m[p] = exchange
		}
	}
	return m
}()

// Row text keywords, checked in order when the product code is not recognised.
var exchangeKeywords = []struct {
	exchange string
	keywords []string
}{
	{models.ExchangeGFEX, []string{"gfex", "广州期货交易所"}},
	{models.ExchangeCFFEX, []string{"cffex", "中国金融期货交易所"}},
	{models.ExchangeSHFE, []string{"shfe", "上海期货交易所"}},
	{models.ExchangeCZCE, []string{"czce", "郑州商品交易所"}},
	{models.ExchangeDCE, []string{"dce", "大连商品交易所"}},
	{models.ExchangeINE, []string{"ine", "上海国际能源交易中心"}},
}

// NormalizeStockCode strips market prefixes and suffixes such as "sh600000" or "600000.SH".
func NormalizeStockCode(raw string) string {
	code := strings.TrimSpace(raw)
	if i := strings.IndexByte(code, '.'); i > 0 {
		code = code[:i]
	}
	lc := strings.ToLower(code)
	for _, prefix := range []string{"sh", "sz", "bj"} {
		if strings.HasPrefix(lc, prefix) {
			return code[len(prefix):]
		}
	}
	return code
}

// ClassifyStock maps a bare A-share code to its exchange by leading digit.
func ClassifyStock(code string) (string, bool) {
	if code == "" {
		return "", false
	}
	switch code[0] {
	case '6':
		return models.ExchangeSSE, true
	case '0', '3':
		return models.ExchangeSZSE, true
	case '8', '4':
		return models.ExchangeBSE, true
	case '9':
		// 92xxxx is the BSE range; other 9xxxxx codes are B shares
		if strings.HasPrefix(code, "92") {
			return models.ExchangeBSE, true
		}
	}
	return "", false
}

// ClassifyStockRows turns a stock list table into rows with exchanges, skipping codes
// no exchange claims and stopping after limit accepted rows.
func ClassifyStockRows(t *datafetcher.Table, limit int) ([]models.Stock, error) {
	codeCol, ok := t.Resolve(stockCodeColumns...)
	if !ok {
		return nil, fmt.Errorf("%w: no code column in %v", ErrUnrecognizedColumns, t.Columns)
	}
	nameCol, ok := t.Resolve(stockNameColumns...)
	if !ok {
		return nil, fmt.Errorf("%w: no name column in %v", ErrUnrecognizedColumns, t.Columns)
	}

	rows := make([]models.Stock, 0, min(t.Len(), limit))
	for i := 0; i < t.Len() && len(rows) < limit; i++ {
		code := NormalizeStockCode(t.String(i, codeCol))
		exchange, ok := ClassifyStock(code)
		if !ok {
			continue
		}
		rows = append(rows, models.Stock{
			Code:     code,
			Name:     t.String(i, nameCol),
			Exchange: exchange,
		})
	}
	return rows, nil
}

// ProductCode is the leading alphabetic part of a contract code, upper-cased.
func ProductCode(code string) string {
	end := strings.IndexFunc(code, func(r rune) bool { return !unicode.IsLetter(r) || r > unicode.MaxASCII })
	if end < 0 {
		end = len(code)
	}
	return strings.ToUpper(code[:end])
}

// ClassifyFuture resolves the exchange of a contract from its product code, then from
// keywords in rowText. Unknown contracts are OTHER.
func ClassifyFuture(code, rowText string) string {
	if exchange, ok := productExchange[ProductCode(code)]; ok {
		return exchange
	}
	text := strings.ToLower(rowText)
	for _, k := range exchangeKeywords {
		for _, kw := range k.keywords {
			if strings.Contains(text, kw) {
				return k.exchange
			}
		}
	}
	return models.ExchangeOther
}

// FutureName returns name, or one synthesized from the product code when name is blank.
func FutureName(name, code string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if product := ProductCode(code); product != "" {
		return product + " " + code
	}
	return "期货合约 " + code
}

// ClassifyFutureRows turns a contract table into futures rows, stopping after limit rows.
func ClassifyFutureRows(t *datafetcher.Table, limit int) []models.Future {
	nameCol, hasName := t.Resolve(futureNameColumns...)

	rows := make([]models.Future, 0, min(t.Len(), limit))
	for i := 0; i < t.Len() && len(rows) < limit; i++ {
		code := strings.ToUpper(t.String(i, datafetcher.ContractCodeColumn))
		if code == "" {
			continue
		}
		name := ""
		if hasName {
			name = t.String(i, nameCol)
		}
		rows = append(rows, models.Future{
			Code:     code,
			Name:     FutureName(name, code),
			Exchange: ClassifyFuture(code, rowText(t, i)),
		})
	}
	return rows
}

func rowText(t *datafetcher.Table, i int) string {
	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if s := t.String(i, c); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
