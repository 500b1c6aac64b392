package services

import "udf_backend_project/models"

// Written when every stock list entry point fails, so the store is never empty.
func seedStocks() []models.Stock {
	return []models.Stock{
		{Code: "600000", Name: "浦发银行", Exchange: models.ExchangeSSE},
		{Code: "600036", Name: "招商银行", Exchange: models.ExchangeSSE},
		{Code: "000001", Name: "平安银行", Exchange: models.ExchangeSZSE},
		{Code: "000858", Name: "五粮液", Exchange: models.ExchangeSZSE},
		{Code: "002594", Name: "比亚迪", Exchange: models.ExchangeSZSE},
	}
}

func seedFutures() []models.Future {
	return []models.Future{
		{Code: "IF2312", Name: "沪深300指数期货", Exchange: models.ExchangeCFFEX},
		{Code: "IC2312", Name: "中证500指数期货", Exchange: models.ExchangeCFFEX},
		{Code: "CU2312", Name: "铜期货", Exchange: models.ExchangeSHFE},
		{Code: "AL2312", Name: "铝期货", Exchange: models.ExchangeSHFE},
		{Code: "C2312", Name: "玉米期货", Exchange: models.ExchangeDCE},
		{Code: "M2312", Name: "豆粕期货", Exchange: models.ExchangeDCE},
		{Code: "CF2312", Name: "棉花期货", Exchange: models.ExchangeCZCE},
		{Code: "SR2312", Name: "白糖期货", Exchange: models.ExchangeCZCE},
	}
}
