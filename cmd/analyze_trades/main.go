// Command analyze_trades summarizes the trade journal: per-strategy and
// per-symbol activity, realized PnL reconstructed from the fills inside
// the journal window, and the execution rate per confidence bucket.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"stock-trading-engine/internal/journal"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type groupStats struct {
	Key       string
	Total     int
	Executed  int
	Rejected  int
	Failed    int
	Buys      int
	Sells     int
	Simulated int
	Notional  float64
	Realized  float64
	Winners   int
	Losers    int
}

type confidenceBucket struct {
	MinConf  float64
	MaxConf  float64
	Total    int
	Executed int
	Realized float64
}

// openLot tracks a strategy+symbol position while replaying fills.
type openLot struct {
	size int
	avg  float64
}

func main() {
	_ = godotenv.Load()

	file := flag.String("file", "data/trades.json", "trade journal to analyze")
	top := flag.Int("top", 5, "how many best/worst symbols to show")
	flag.Parse()

	jrnl := journal.New(*file, zerolog.Nop())
	if err := jrnl.Load(); err != nil {
		fmt.Printf("❌ Failed to load journal %s: %v\n", *file, err)
		os.Exit(1)
	}

	records := jrnl.All()
	if len(records) == 0 {
		fmt.Printf("❌ No records in %s\n", *file)
		return
	}

	line := strings.Repeat("=", 78)
	fmt.Println(line)
	fmt.Println("📊 TRADE JOURNAL ANALYSIS")
	fmt.Println(line)
	fmt.Printf("\nJournal: %s\n", *file)
	fmt.Printf("Records: %d (%s to %s)\n", len(records),
		records[0].Timestamp.Format("2006-01-02 15:04"),
		records[len(records)-1].Timestamp.Format("2006-01-02 15:04"))

	byStatus := make(map[string]int)
	for _, r := range records {
		byStatus[r.Status]++
	}
	fmt.Printf("Status:  ")
	printed := 0
	for _, status := range []string{journal.StatusExecuted, journal.StatusRejected,
		journal.StatusFailed, journal.StatusCancelled, journal.StatusError, journal.StatusPending} {
		if byStatus[status] == 0 {
			continue
		}
		if printed > 0 {
			fmt.Print("  ")
		}
		fmt.Printf("%s=%d", status, byStatus[status])
		printed++
	}
	fmt.Println()

	byStrategy, bySymbol := aggregate(records)
	buckets := confidenceBuckets(records)

	printGroupTable("📈 ACTIVITY BY STRATEGY", byStrategy)
	printGroupTable("📈 ACTIVITY BY SYMBOL", bySymbol)
	printBuckets(buckets)
	printBestWorst(bySymbol, *top)

	fmt.Println("\n📝 NOTE: realized PnL only covers round trips completed inside the")
	fmt.Println("   journal window; positions opened before it are priced from their")
	fmt.Println("   first fill in the window.")
}

// aggregate replays executed fills in order, reconstructing realized PnL
// the same way the engine books it: volume-weighted average cost, realize
// on reduce, rebase when a fill crosses through zero.
func aggregate(records []journal.TradeRecord) (byStrategy, bySymbol map[string]*groupStats) {
	byStrategy = make(map[string]*groupStats)
	bySymbol = make(map[string]*groupStats)
	lots := make(map[string]*openLot)

	for _, rec := range records {
		sg := group(byStrategy, rec.Strategy)
		yg := group(bySymbol, rec.Symbol)

		for _, g := range []*groupStats{sg, yg} {
			g.Total++
			switch rec.Status {
			case journal.StatusExecuted:
				g.Executed++
			case journal.StatusRejected:
				g.Rejected++
			case journal.StatusFailed, journal.StatusError:
				g.Failed++
			}
			if rec.Action == "BUY" {
				g.Buys++
			} else if rec.Action == "SELL" {
				g.Sells++
			}
			if rec.Simulated {
				g.Simulated++
			}
		}

		if rec.Status != journal.StatusExecuted {
			continue
		}
		notional := rec.EntryPrice * float64(rec.Size)
		sg.Notional += notional
		yg.Notional += notional

		realized := applyFill(lots, rec)
		if realized != 0 {
			sg.Realized += realized
			yg.Realized += realized
			for _, g := range []*groupStats{sg, yg} {
				if realized > 0 {
					g.Winners++
				} else {
					g.Losers++
				}
			}
		}
	}
	return byStrategy, bySymbol
}

func applyFill(lots map[string]*openLot, rec journal.TradeRecord) float64 {
	key := rec.Strategy + "/" + rec.Symbol
	lot := lots[key]
	if lot == nil {
		lot = &openLot{}
		lots[key] = lot
	}

	delta := rec.Size
	if rec.Action == "SELL" {
		delta = -rec.Size
	}

	var realized float64
	switch {
	case lot.size == 0 || (lot.size > 0) == (delta > 0):
		// Extending: volume-weighted average cost.
		total := float64(lot.size)*lot.avg + float64(delta)*rec.EntryPrice
		lot.size += delta
		if lot.size != 0 {
			lot.avg = total / float64(lot.size)
		}
	default:
		closed := min(abs(lot.size), abs(delta))
		direction := 1.0
		if lot.size < 0 {
			direction = -1.0
		}
		realized = (rec.EntryPrice - lot.avg) * float64(closed) * direction
		lot.size += delta
		if lot.size == 0 {
			lot.avg = 0
		} else if (lot.size > 0) != (direction > 0) {
			// Crossed through zero: remainder opens at the fill price.
			lot.avg = rec.EntryPrice
		}
	}
	return realized
}

func confidenceBuckets(records []journal.TradeRecord) []confidenceBucket {
	buckets := []confidenceBucket{
		{MinConf: 0.00, MaxConf: 0.50},
		{MinConf: 0.50, MaxConf: 0.60},
		{MinConf: 0.60, MaxConf: 0.70},
		{MinConf: 0.70, MaxConf: 0.80},
		{MinConf: 0.80, MaxConf: 1.01},
	}
	// Separate replay: bucket PnL books where the closing fill's
	// confidence lands.
	lots := make(map[string]*openLot)
	for _, rec := range records {
		for i := range buckets {
			if rec.Confidence >= buckets[i].MinConf && rec.Confidence < buckets[i].MaxConf {
				buckets[i].Total++
				if rec.Status == journal.StatusExecuted {
					buckets[i].Executed++
					buckets[i].Realized += applyFill(lots, rec)
				}
				break
			}
		}
	}
	return buckets
}

func group(m map[string]*groupStats, key string) *groupStats {
	if g, ok := m[key]; ok {
		return g
	}
	g := &groupStats{Key: key}
	m[key] = g
	return g
}

func sortedGroups(m map[string]*groupStats) []*groupStats {
	groups := make([]*groupStats, 0, len(m))
	for _, g := range m {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Realized > groups[j].Realized })
	return groups
}

func printGroupTable(title string, m map[string]*groupStats) {
	line := strings.Repeat("=", 78)
	fmt.Println("\n" + line)
	fmt.Println(title)
	fmt.Println(line)

	fmt.Println("┌────────────┬───────┬──────────┬──────────┬────────┬──────────────┬──────────────┐")
	fmt.Println("│ Key        │ Total │ Executed │ Rejected │ Failed │ Notional     │ Realized PnL │")
	fmt.Println("├────────────┼───────┼──────────┼──────────┼────────┼──────────────┼──────────────┤")

	for _, g := range sortedGroups(m) {
		marker := "🟢"
		if g.Realized < 0 {
			marker = "🔴"
		}
		fmt.Printf("│ %s %-8s │ %5d │ %8d │ %8d │ %6d │ %12.2f │ %+12.2f │\n",
			marker, truncate(g.Key, 8), g.Total, g.Executed, g.Rejected, g.Failed,
			g.Notional, g.Realized)
	}
	fmt.Println("└────────────┴───────┴──────────┴──────────┴────────┴──────────────┴──────────────┘")
}

func printBuckets(buckets []confidenceBucket) {
	line := strings.Repeat("=", 78)
	fmt.Println("\n" + line)
	fmt.Println("🧪 EXECUTION BY CONFIDENCE BUCKET")
	fmt.Println(line)

	for _, b := range buckets {
		if b.Total == 0 {
			continue
		}
		rate := float64(b.Executed) / float64(b.Total) * 100
		fmt.Printf("   %.2f-%.2f: %4d signals | %5.1f%% executed | realized %+10.2f\n",
			b.MinConf, min(b.MaxConf, 1.0), b.Total, rate, b.Realized)
	}
}

func printBestWorst(bySymbol map[string]*groupStats, top int) {
	groups := sortedGroups(bySymbol)
	line := strings.Repeat("=", 78)

	fmt.Println("\n" + line)
	fmt.Println("🟢 BEST SYMBOLS (realized)")
	fmt.Println(line)
	shown := 0
	for _, g := range groups {
		if g.Realized > 0 && shown < top {
			fmt.Printf("   🟢 %s: %+.2f over %d wins / %d losses\n", g.Key, g.Realized, g.Winners, g.Losers)
			shown++
		}
	}
	if shown == 0 {
		fmt.Println("   None")
	}

	fmt.Println("\n" + line)
	fmt.Println("🔴 WORST SYMBOLS (realized)")
	fmt.Println(line)
	shown = 0
	for i := len(groups) - 1; i >= 0 && shown < top; i-- {
		if g := groups[i]; g.Realized < 0 {
			fmt.Printf("   🔴 %s: %+.2f over %d wins / %d losses\n", g.Key, g.Realized, g.Winners, g.Losers)
			shown++
		}
	}
	if shown == 0 {
		fmt.Println("   None")
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
