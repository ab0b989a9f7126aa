package backtest

import (
	"encoding/json"
	"math"
	"time"

	"algo-trader/pkg/types"
)

// pnlEpsilon is the tolerance on the net-P&L identity, half a paise.
const pnlEpsilon = 0.005

// Verification asserts that every trade satisfies
// netPnl == grossPnl - totalCost - slippageCost within epsilon, so the cost
// decomposition stays independently auditable after export.
type Verification struct {
	Checked     int     `json:"checked"`
	MaxAbsError float64 `json:"max_abs_error"`
	Epsilon     float64 `json:"epsilon"`
	OK          bool    `json:"ok"`
}

// ExportDocument is the JSON artifact published per backtest run.
type ExportDocument struct {
	RunID        string                         `json:"run_id"`
	Strategy     string                         `json:"strategy"`
	Symbol       string                         `json:"symbol"`
	FromDate     string                         `json:"from_date"`
	ToDate       string                         `json:"to_date"`
	GeneratedAt  string                         `json:"generated_at"`
	Metrics      map[string]types.MetricsBucket `json:"metrics"`
	Trades       []types.Trade                  `json:"trades"`
	Verification Verification                   `json:"verification"`
}

// Verify recomputes the identity over a trade log.
func Verify(trades []types.Trade) Verification {
	v := Verification{Checked: len(trades), Epsilon: pnlEpsilon, OK: true}
	for _, t := range trades {
		err := math.Abs(t.Pnl - (t.GrossPnl - t.Costs.TotalCost - t.SlippageCost))
		if err > v.MaxAbsError {
			v.MaxAbsError = err
		}
		if err > pnlEpsilon {
			v.OK = false
		}
	}
	return v
}

// BuildExport assembles the export document for a finished run.
func BuildExport(res *Result, loc *time.Location) ExportDocument {
	if loc == nil {
		loc = time.UTC
	}
	return ExportDocument{
		RunID:        res.RunID,
		Strategy:     res.Strategy,
		Symbol:       res.Symbol,
		FromDate:     time.Unix(res.From, 0).In(loc).Format("2006-01-02"),
		ToDate:       time.Unix(res.To, 0).In(loc).Format("2006-01-02"),
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
		Metrics:      res.Metrics,
		Trades:       res.Trades,
		Verification: Verify(res.Trades),
	}
}

// MarshalExport renders the document as indented JSON.
func MarshalExport(doc ExportDocument) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}
