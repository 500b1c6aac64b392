package models

// Supported bar resolutions in the order advertised by /config.
var SupportedResolutions = []string{"1", "5", "15", "30", "60", "D", "W", "M"}

// UDFExchange is an entry of the exchanges list in the configuration document.
type UDFExchange struct {
	Value string `json:"value"`
	Name  string `json:"name"`
	Desc  string `json:"desc"`
}

type UDFSymbolType struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// UDFConfig is the /config document.
type UDFConfig struct {
	SupportsSearch         bool            `json:"supports_search"`
	SupportsGroupRequest   bool            `json:"supports_group_request"`
	SupportsMarks          bool            `json:"supports_marks"`
	SupportsTimescaleMarks bool            `json:"supports_timescale_marks"`
	SupportsTime           bool            `json:"supports_time"`
	Exchanges              []UDFExchange   `json:"exchanges"`
	SymbolsTypes           []UDFSymbolType `json:"symbols_types"`
	SupportedResolutions   []string        `json:"supported_resolutions"`
}

// SearchResult is one /search hit.
type SearchResult struct {
	Symbol      string  `json:"symbol"`
	FullName    string  `json:"full_name"`
	Description string  `json:"description"`
	Exchange    string  `json:"exchange"`
	Type        string  `json:"type"`
	TickSize    float64 `json:"tick_size"`
}

// SymbolInfo is the fixed-shape /symbols descriptor. Every field is always present.
type SymbolInfo struct {
	Name                 string   `json:"name"`
	Ticker               string   `json:"ticker"`
	ExchangeTraded       string   `json:"exchange-traded"`
	ExchangeListed       string   `json:"exchange-listed"`
	Timezone             string   `json:"timezone"`
	Minmov               int      `json:"minmov"`
	Pricescale           int      `json:"pricescale"`
	Session              string   `json:"session"`
	HasIntraday          bool     `json:"has_intraday"`
	HasNoVolume          bool     `json:"has_no_volume"`
	Description          string   `json:"description"`
	Type                 string   `json:"type"`
	SupportedResolutions []string `json:"supported_resolutions"`
}

// History statuses.
const (
	StatusOK     = "ok"
	StatusNoData = "no_data"
	StatusError  = "error"
)

// HistoryResponse is the /history payload. Arrays are omitted unless S is "ok".
type HistoryResponse struct {
	S      string    `json:"s"`
	ErrMsg string    `json:"errmsg,omitempty"`
	T      []int64   `json:"t,omitempty"`
	O      []float64 `json:"o,omitempty"`
	H      []float64 `json:"h,omitempty"`
	L      []float64 `json:"l,omitempty"`
	C      []float64 `json:"c,omitempty"`
	V      []int64   `json:"v,omitempty"`
}
