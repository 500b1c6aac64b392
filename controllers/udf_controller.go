package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"udf_backend_project/models"
	"udf_backend_project/services"
)

// SymbolAPI is what the UDF handlers need from the symbol service.
type SymbolAPI interface {
	Config() models.UDFConfig
	Time() int64
	Search(ctx context.Context, q services.SearchQuery) []models.SearchResult
	Resolve(ctx context.Context, symbol string) models.SymbolInfo
}

// HistoryAPI answers bar requests.
type HistoryAPI interface {
	History(ctx context.Context, q services.HistoryQuery) models.HistoryResponse
}

// InstrumentListAPI serves the cached instrument list.
type InstrumentListAPI interface {
	Get(ctx context.Context) ([]models.Instrument, error)
}

// UDFController handles the charting library datafeed endpoints.
// Every handler answers 200; problems are reported inside the payload.
type UDFController struct {
	symbols SymbolAPI
	history HistoryAPI
	list    InstrumentListAPI
	log     *zap.Logger
}

// NewUDFController creates a new UDF controller
func NewUDFController(symbols SymbolAPI, history HistoryAPI, list InstrumentListAPI, log *zap.Logger) *UDFController {
	if log == nil {
		log = zap.NewNop()
	}
	return &UDFController{symbols: symbols, history: history, list: list, log: log.Named("udf")}
}

// GetConfig returns the datafeed configuration
// GET /udf/config
func (uc *UDFController) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, uc.symbols.Config())
}

// GetTime returns the server time in epoch milliseconds
// GET /udf/time
func (uc *UDFController) GetTime(c *gin.Context) {
	c.JSON(http.StatusOK, uc.symbols.Time())
}

// Search searches stocks and futures
// GET /udf/search?query=&type=&exchange=&limit=
func (uc *UDFController) Search(c *gin.Context) {
	results := uc.symbols.Search(c.Request.Context(), services.SearchQuery{
		Query:    c.Query("query"),
		Type:     c.Query("type"),
		Exchange: c.Query("exchange"),
		Limit:    c.Query("limit"),
	})
	c.JSON(http.StatusOK, results)
}

// ResolveSymbol returns the descriptor of one symbol
// GET /udf/symbols?symbol=EXCHANGE:CODE
func (uc *UDFController) ResolveSymbol(c *gin.Context) {
	c.JSON(http.StatusOK, uc.symbols.Resolve(c.Request.Context(), c.Query("symbol")))
}

// GetHistory returns bars for a symbol and time range
// GET /udf/history?symbol=&resolution=&from=&to=
func (uc *UDFController) GetHistory(c *gin.Context) {
	resp := uc.history.History(c.Request.Context(), services.HistoryQuery{
		Symbol:     c.Query("symbol"),
		Resolution: c.Query("resolution"),
		From:       c.Query("from"),
		To:         c.Query("to"),
	})
	c.JSON(http.StatusOK, resp)
}

// GetSymbolsList returns every known instrument
// GET /udf/symbols_list
func (uc *UDFController) GetSymbolsList(c *gin.Context) {
	items, err := uc.list.Get(c.Request.Context())
	if err != nil {
		uc.log.Error("Loading symbol list failed", zap.Error(err))
		c.JSON(http.StatusOK, []models.Instrument{})
		return
	}
	if items == nil {
		items = []models.Instrument{}
	}
	c.JSON(http.StatusOK, items)
}
