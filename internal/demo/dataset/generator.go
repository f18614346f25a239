package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Transaction is one row of the demo reporting subject. Column names match
// what the translation prompts and tests refer to.
type Transaction struct {
	ID                string    `parquet:"id"`
	Timestamp         time.Time `parquet:"timestamp"`
	Year              int32     `parquet:"year"`
	Wallet            string    `parquet:"wallet"`
	Asset             string    `parquet:"asset"`
	Type              string    `parquet:"type"`
	Quantity          float64   `parquet:"quantity"`
	Proceeds          float64   `parquet:"proceeds"`
	CostBasis         float64   `parquet:"costBasis"`
	ShortTermGainLoss float64   `parquet:"shortTermGainLoss"`
	LongTermGainLoss  float64   `parquet:"longTermGainLoss"`
}

type Generator struct {
	rnd      *rand.Rand
	wallets  []string
	assets   []string
	start    time.Time
	span     time.Duration
	sequence int64
}

// NewGenerator spreads transactions uniformly over the months ending with
// the month containing end.
func NewGenerator(seed int64, cfg Config) *Generator {
	endMonth := time.Date(cfg.End.Year(), cfg.End.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	start := endMonth.AddDate(0, -cfg.Months, 0)
	return &Generator{
		rnd:     rand.New(rand.NewSource(seed)),
		wallets: cfg.Wallets,
		assets:  cfg.Assets,
		start:   start,
		span:    endMonth.Sub(start),
	}
}

func (g *Generator) Next() Transaction {
	g.sequence++
	at := g.start.Add(time.Duration(g.rnd.Int63n(int64(g.span)))).Truncate(time.Millisecond)
	txType := g.pickType()
	quantity := round2(0.01 + g.rnd.Float64()*10)

	tx := Transaction{
		ID:        fmt.Sprintf("tx-%08d", g.sequence),
		Timestamp: at,
		Year:      int32(at.Year()),
		Wallet:    pickOne(g.rnd, g.wallets),
		Asset:     pickOne(g.rnd, g.assets),
		Type:      txType,
		Quantity:  quantity,
	}
	if txType == "sell" {
		tx.Proceeds = round2(50 + g.rnd.Float64()*5000)
		tx.CostBasis = round2(tx.Proceeds * (0.5 + g.rnd.Float64()))
		gain := round2(tx.Proceeds - tx.CostBasis)
		if g.rnd.Intn(2) == 0 {
			tx.ShortTermGainLoss = gain
		} else {
			tx.LongTermGainLoss = gain
		}
	} else {
		tx.CostBasis = round2(50 + g.rnd.Float64()*5000)
	}
	return tx
}

func (g *Generator) Batch(n int) []Transaction {
	out := make([]Transaction, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Next())
	}
	return out
}

func (g *Generator) pickType() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 45:
		return "buy"
	case p < 85:
		return "sell"
	case p < 95:
		return "transfer"
	default:
		return "staking_reward"
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
