package netdef

import "github.com/danielpatrickdp/adaptive-dbn/internal/dbn"

// StockExample is a two-variable market model:
//
//	MarketSentiment_t: Bullish / Bearish, no parents
//	PriceMove_t: Increase / Decrease, parents MarketSentiment_t (intra)
//	and PriceMove_{t-1} (inter)
func StockExample() *Definition {
	return &Definition{
		Name:      "Stock-DBN",
		Variables: []string{"MarketSentiment", "PriceMove"},
		Intra:     []EdgeDef{{Parent: "MarketSentiment", Child: "PriceMove"}},
		Inter:     []EdgeDef{{Parent: "PriceMove", Child: "PriceMove"}},
		CPTs: []CPTDef{
			{
				Variable: "MarketSentiment",
				Rows: []dbn.Entry{
					{Parents: dbn.Tuple{}, Dist: dbn.Distribution{{Value: "Bullish", P: 0.6}, {Value: "Bearish", P: 0.4}}},
				},
			},
			{
				// Rows keyed (MarketSentiment_t, PriceMove_{t-1}).
				Variable: "PriceMove",
				Rows: []dbn.Entry{
					{Parents: dbn.Tuple{"Bullish", "Increase"}, Dist: dbn.Distribution{{Value: "Increase", P: 0.8}, {Value: "Decrease", P: 0.2}}},
					{Parents: dbn.Tuple{"Bearish", "Increase"}, Dist: dbn.Distribution{{Value: "Increase", P: 0.55}, {Value: "Decrease", P: 0.45}}},
					{Parents: dbn.Tuple{"Bullish", "Decrease"}, Dist: dbn.Distribution{{Value: "Increase", P: 0.6}, {Value: "Decrease", P: 0.4}}},
					{Parents: dbn.Tuple{"Bearish", "Decrease"}, Dist: dbn.Distribution{{Value: "Increase", P: 0.3}, {Value: "Decrease", P: 0.7}}},
				},
			},
		},
	}
}
