package backtest

import (
	"algo-trader/pkg/types"

	"github.com/shopspring/decimal"
)

// DefaultCosts models NSE intraday equity charges: discount brokerage capped
// per executed order, STT on the sell leg, exchange transaction charges and
// SEBI fee on turnover, GST on brokerage plus those charges, stamp duty on
// the buy leg.
var DefaultCosts = types.CostConfig{
	BrokerageRate:   0.0003,    // 0.03% per leg
	BrokerageCap:    20.0,      // ₹20 cap per leg
	STTRate:         0.00025,   // 0.025% sell side
	TransactionRate: 0.0000297, // NSE 0.00297%
	GSTRate:         0.18,
	SEBIRate:        0.000001, // ₹10 per crore
	StampDutyRate:   0.00003,  // 0.003% buy side
	SlippageRate:    0.0002,   // 0.02% per leg
}

// round2 rounds to the paise. All published cost figures go through this so
// the net P&L identity holds to cent precision.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ComputeCosts itemizes the transaction charges for one round-trip trade.
func ComputeCosts(cfg types.CostConfig, dir types.Direction, entryPrice, exitPrice float64, qty int) types.CostBreakdown {
	q := decimal.NewFromInt(int64(qty))
	entryTurnover := decimal.NewFromFloat(entryPrice).Mul(q)
	exitTurnover := decimal.NewFromFloat(exitPrice).Mul(q)
	totalTurnover := entryTurnover.Add(exitTurnover)

	// Buy and sell turnover depend on direction: a short sells first.
	buyTurnover, sellTurnover := entryTurnover, exitTurnover
	if dir == types.Short {
		buyTurnover, sellTurnover = exitTurnover, entryTurnover
	}

	brokerage := round2(legBrokerage(cfg, entryTurnover).Add(legBrokerage(cfg, exitTurnover)))
	stt := round2(sellTurnover.Mul(decimal.NewFromFloat(cfg.STTRate)))
	txn := round2(totalTurnover.Mul(decimal.NewFromFloat(cfg.TransactionRate)))
	sebi := round2(totalTurnover.Mul(decimal.NewFromFloat(cfg.SEBIRate)))
	gst := round2(brokerage.Add(txn).Add(sebi).Mul(decimal.NewFromFloat(cfg.GSTRate)))
	stamp := round2(buyTurnover.Mul(decimal.NewFromFloat(cfg.StampDutyRate)))

	total := brokerage.Add(stt).Add(txn).Add(gst).Add(sebi).Add(stamp)

	return types.CostBreakdown{
		Brokerage:          brokerage.InexactFloat64(),
		STT:                stt.InexactFloat64(),
		TransactionCharges: txn.InexactFloat64(),
		GST:                gst.InexactFloat64(),
		SEBICharges:        sebi.InexactFloat64(),
		StampDuty:          stamp.InexactFloat64(),
		TotalCost:          total.InexactFloat64(),
	}
}

func legBrokerage(cfg types.CostConfig, turnover decimal.Decimal) decimal.Decimal {
	b := turnover.Mul(decimal.NewFromFloat(cfg.BrokerageRate))
	cap := decimal.NewFromFloat(cfg.BrokerageCap)
	if b.GreaterThan(cap) {
		return cap
	}
	return b
}

// ComputeSlippage models execution slippage as an additive penalty on both
// legs' turnover, separate from the exchange cost stack.
func ComputeSlippage(cfg types.CostConfig, entryPrice, exitPrice float64, qty int) float64 {
	q := decimal.NewFromInt(int64(qty))
	rate := decimal.NewFromFloat(cfg.SlippageRate)
	entry := decimal.NewFromFloat(entryPrice).Mul(q).Mul(rate)
	exit := decimal.NewFromFloat(exitPrice).Mul(q).Mul(rate)
	return round2(entry.Add(exit)).InexactFloat64()
}

// Settle finalizes a trade's P&L fields from its prices and the cost model.
// netPnl == grossPnl - totalCost - slippageCost holds exactly.
func Settle(cfg types.CostConfig, trade *types.Trade, capitalPerTrade float64) {
	q := decimal.NewFromInt(int64(trade.Quantity))

	var gross decimal.Decimal
	entry := decimal.NewFromFloat(trade.EntryPrice)
	exit := decimal.NewFromFloat(trade.ExitPrice)
	if trade.Direction == types.Long {
		gross = exit.Sub(entry).Mul(q)
	} else {
		gross = entry.Sub(exit).Mul(q)
	}
	gross = round2(gross)

	trade.Costs = ComputeCosts(cfg, trade.Direction, trade.EntryPrice, trade.ExitPrice, trade.Quantity)
	trade.SlippageCost = ComputeSlippage(cfg, trade.EntryPrice, trade.ExitPrice, trade.Quantity)

	net := gross.
		Sub(decimal.NewFromFloat(trade.Costs.TotalCost)).
		Sub(decimal.NewFromFloat(trade.SlippageCost))

	trade.GrossPnl = gross.InexactFloat64()
	trade.Pnl = net.InexactFloat64()
	if capitalPerTrade > 0 {
		trade.PnlPercent = trade.Pnl / capitalPerTrade * 100
	}
	trade.DurationSecs = trade.ExitTime - trade.EntryTime
}
