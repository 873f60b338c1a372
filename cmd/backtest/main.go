// Command backtest replays a price series through the indicator engine and
// band controller with a simulated clock, printing every decision. The series
// comes from a CSV file (one price per line) or, without -csv, a generated
// random walk.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"treasury-systemv1/internal/controller"
	"treasury-systemv1/internal/feed"
	"treasury-systemv1/internal/indicator"
	"treasury-systemv1/internal/model"
	"treasury-systemv1/internal/treasury"
	"treasury-systemv1/internal/venue"
)

const feedDecimals = 8

func main() {
	var (
		csvPath      = flag.String("csv", "", "CSV file with one price per line (empty: random walk)")
		samples      = flag.Int("samples", 500, "random walk length when no CSV is given")
		window       = flag.Int("window", 30, "observation window size")
		obsFreq      = flag.Duration("freq", time.Hour, "observation frequency")
		epochObs     = flag.Int("epoch-obs", 3, "observations per controller epoch")
		bidCapacity  = flag.Float64("bid", 100000, "bid capacity per epoch")
		askCapacity  = flag.Float64("ask", 100000, "ask capacity per epoch")
		bandMultiple = flag.Float64("band", 2, "band width in standard deviations")
		threshold    = flag.Float64("threshold", 0.05, "dead zone half-width (fraction)")
	)
	flag.Parse()

	prices := loadPrices(*csvPath, *samples)
	if len(prices) < *window {
		log.Fatalf("[backtest] need at least %d prices, got %d", *window, len(prices))
	}

	// Simulated clock advancing one observation period per sample.
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	assetFeed := feed.NewManualFeed("asset/base", feedDecimals)
	reserveFeed := feed.NewManualFeed("reserve/base", feedDecimals)
	reserveFeed.Set(pow10(feedDecimals), clock) // reserve pegged at 1.0

	engine, err := indicator.New(assetFeed, reserveFeed, time.Duration(*window)*(*obsFreq), *obsFreq)
	if err != nil {
		log.Fatalf("[backtest] engine: %v", err)
	}
	engine.SetClock(now)

	seed := prices[:*window]
	if err := engine.Initialize(seed, clock); err != nil {
		log.Fatalf("[backtest] initialize: %v", err)
	}

	minter := treasury.NewPaperMinter()
	reserves := treasury.NewPaperTreasury(map[string]float64{"RESERVE": 1e12})
	mmVenue := venue.NewPaperVenue(*obsFreq)

	epochDur := time.Duration(*epochObs) * (*obsFreq)
	ctrl, err := controller.New(engine, minter, reserves, mmVenue, controller.Config{
		Self:            "backtest",
		ReserveAsset:    "RESERVE",
		EpochDuration:   epochDur,
		BidCapacity:     *bidCapacity,
		AskCapacity:     *askCapacity,
		MaxBandMultiple: *bandMultiple,
		MinPctThreshold: *threshold,
	})
	if err != nil {
		log.Fatalf("[backtest] controller: %v", err)
	}
	ctrl.SetClock(now)

	var buys, sells, idle int
	for i, price := range prices[*window:] {
		clock = clock.Add(*obsFreq)
		assetFeed.Set(int64(price*float64(pow10(feedDecimals))), clock)
		reserveFeed.Set(pow10(feedDecimals), clock)

		if (i+1)%*epochObs == 0 {
			dec, err := ctrl.Update()
			if err != nil {
				log.Fatalf("[backtest] epoch at sample %d: %v", i, err)
			}
			printDecision(i, dec)
			switch dec.Side {
			case model.SideBuy:
				buys++
			case model.SideSell:
				sells++
			default:
				idle++
			}
		} else {
			if _, err := engine.Update(); err != nil {
				log.Fatalf("[backtest] observation at sample %d: %v", i, err)
			}
		}
	}

	fmt.Printf("\nepochs: %d buy / %d sell / %d idle\n", buys, sells, idle)
	fmt.Printf("minted: %.2f, reserves released: %.2f, orders placed: %d\n",
		minter.TotalMinted(), reserves.Released("RESERVE", "backtest"), len(mmVenue.Orders()))
}

func printDecision(sample int, d model.Decision) {
	if d.Side == model.SideNone {
		fmt.Printf("sample %4d  price=%10.4f sma=%10.4f std=%8.4f pct=%5.1f%%  -\n",
			sample, d.Price, d.MovingAverage, d.StdDev, d.PctBand*100)
		return
	}
	fmt.Printf("sample %4d  price=%10.4f sma=%10.4f std=%8.4f pct=%5.1f%%  %s %.2f over %d intervals\n",
		sample, d.Price, d.MovingAverage, d.StdDev, d.PctBand*100, d.Side, d.OrderSize, d.NumIntervals)
}

func loadPrices(csvPath string, samples int) []float64 {
	if csvPath == "" {
		return randomWalk(samples)
	}
	f, err := os.Open(csvPath)
	if err != nil {
		log.Fatalf("[backtest] open %s: %v", csvPath, err)
	}
	defer f.Close()

	var prices []float64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		p, err := strconv.ParseFloat(line, 64)
		if err != nil || p <= 0 {
			log.Printf("[backtest] skipping line %q", line)
			continue
		}
		prices = append(prices, p)
	}
	if err := sc.Err(); err != nil {
		log.Fatalf("[backtest] read %s: %v", csvPath, err)
	}
	return prices
}

func randomWalk(n int) []float64 {
	rng := rand.New(rand.NewSource(42))
	prices := make([]float64, n)
	p := 100.0
	for i := range prices {
		p *= 1 + rng.NormFloat64()*0.01
		if p < 1 {
			p = 1
		}
		prices[i] = p
	}
	return prices
}

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
