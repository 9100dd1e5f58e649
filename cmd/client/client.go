package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"skoll/internal/common"
	"skoll/internal/events"
	"skoll/internal/fixed"
	skollNet "skoll/internal/net"

	"github.com/holiman/uint256"
)

func main() {
	// 1. CLI Parameter Parsing
	serverAddr := flag.String("server", "127.0.0.1:7420", "Address of the exchange server")
	callerStr := flag.String("caller", "", "Caller address (compulsory)")
	action := flag.String("action", "heartbeat",
		"Action to perform: ['heartbeat', 'create', 'cancel', 'cleanup', 'fill-limit', 'fill-market', "+
			"'fill-pool', 'fill-fallback', 'deposit', 'withdraw', 'claim', 'distribute', 'subscribe']")

	// Order Parameters
	assetStr := flag.String("asset", "", "Asset address")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	kindStr := flag.String("kind", "limit", "Order kind: 'limit' or 'market'")
	amountStr := flag.String("amount", "0", "Amount in whole units, e.g. 1.5")
	priceStr := flag.String("price", "0", "Price in whole currency units per asset unit")
	valueStr := flag.String("value", "0", "Currency attached to a buy")
	ttl := flag.Duration("ttl", time.Hour, "Order lifetime")
	id := flag.Uint64("id", 0, "Order id")

	// Fulfilment Parameters
	matchesStr := flag.String("matches", "", "Comma-separated buy:sell:fill triples, e.g. 2:1:1.5,4:3:0.5")
	pricesStr := flag.String("prices", "", "Comma-separated execution prices, one per match (market only)")
	idsStr := flag.String("ids", "", "Comma-separated order ids (fill-pool)")
	fillsStr := flag.String("fills", "", "Comma-separated fills, one per id (fill-pool)")
	minOutStr := flag.String("min-out", "0", "Smallest acceptable output")

	// Pool Parameters
	compartmentStr := flag.String("compartment", "asset", "Pool compartment: 'currency' or 'asset'")
	epoch := flag.Uint64("epoch", 0, "Compartment epoch")
	bps := flag.Uint("bps", 10_000, "Fraction to withdraw in basis points")

	flag.Parse()

	// Validation
	if *callerStr == "" {
		fmt.Println("Error: -caller is compulsory.")
		flag.Usage()
		os.Exit(1)
	}
	caller := must(common.ParseAddress(*callerStr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Connect to Server
	client, err := skollNet.Dial(ctx, *serverAddr, caller)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer client.Close()
	client.OnEvent = printEvent
	fmt.Printf("Connected to %s as %s\n", *serverAddr, caller.Hex())

	asset := func() common.Address { return must(common.ParseAddress(*assetStr)) }
	compartment := func() common.Compartment { return must(common.ParseCompartment(*compartmentStr)) }

	// Build the request
	var msg skollNet.Message
	switch strings.ToLower(*action) {
	case "heartbeat":
		msg = client.Base(skollNet.Heartbeat)
	case "subscribe":
		msg = client.Base(skollNet.Subscribe)
	case "create":
		msg = skollNet.CreateOrderMessage{
			BaseMessage: client.Base(skollNet.CreateOrder),
			Side:        must(common.ParseSide(strings.ToLower(*sideStr))),
			Kind:        must(common.ParseKind(strings.ToLower(*kindStr))),
			Asset:       asset(),
			Amount:      amount(*amountStr),
			Price:       amount(*priceStr),
			TTL:         *ttl,
			Value:       amount(*valueStr),
		}
	case "cancel":
		msg = skollNet.OrderMessage{BaseMessage: client.Base(skollNet.CancelOrder), OrderID: *id}
	case "cleanup":
		msg = skollNet.OrderMessage{BaseMessage: client.Base(skollNet.CleanupExpired), OrderID: *id}
	case "fill-limit":
		msg = skollNet.FulfillMessage{
			BaseMessage: client.Base(skollNet.FulfillLimit),
			Matches:     parseMatches(*matchesStr),
		}
	case "fill-market":
		msg = skollNet.FulfillMessage{
			BaseMessage: client.Base(skollNet.FulfillMarket),
			Matches:     parseMatches(*matchesStr),
			Prices:      parseAmounts(*pricesStr),
		}
	case "fill-pool":
		msg = skollNet.FulfillWithPoolMessage{
			BaseMessage: client.Base(skollNet.FulfillWithPool),
			OrderIDs:    parseIDs(*idsStr),
			Fills:       parseAmounts(*fillsStr),
		}
	case "fill-fallback":
		msg = skollNet.FulfillWithFallbackMessage{
			BaseMessage: client.Base(skollNet.FulfillWithFallback),
			OrderID:     *id,
			Fill:        amount(*amountStr),
			MinOut:      amount(*minOutStr),
		}
	case "deposit", "claim", "distribute":
		typeOf := map[string]skollNet.MessageType{
			"deposit":    skollNet.Deposit,
			"claim":      skollNet.Claim,
			"distribute": skollNet.DistributeFee,
		}[strings.ToLower(*action)]
		msg = skollNet.PoolMessage{
			BaseMessage: client.Base(typeOf),
			Asset:       asset(),
			Compartment: compartment(),
			Epoch:       *epoch,
			Amount:      amount(*amountStr),
		}
	case "withdraw":
		msg = skollNet.WithdrawMessage{
			BaseMessage: client.Base(skollNet.Withdraw),
			Asset:       asset(),
			Compartment: compartment(),
			Epoch:       *epoch,
			Bps:         uint16(*bps),
			MinOut:      amount(*minOutStr),
		}
	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	// Execute Action
	rep, err := client.Call(msg)
	if err != nil {
		log.Fatalf("-> %s failed: %v", msg.GetType(), err)
	}
	fmt.Printf("-> %s ok\n", msg.GetType())
	printValues(msg.GetType(), rep.Values)

	if msg.GetType() != skollNet.Subscribe {
		return
	}

	// Keep the client alive to receive event reports
	fmt.Println("\nListening for events... (Press Ctrl+C to exit)")
	if err := client.Listen(ctx); err != nil {
		log.Printf("Connection lost: %v", err)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	return v
}

func amount(s string) *uint256.Int {
	return must(fixed.Parse(strings.TrimSpace(s)))
}

// parseAmounts splits a comma-separated list of whole-unit amounts.
func parseAmounts(input string) []*uint256.Int {
	var out []*uint256.Int
	for _, p := range strings.Split(input, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, amount(p))
		}
	}
	return out
}

func parseIDs(input string) []uint64 {
	var out []uint64
	for _, p := range strings.Split(input, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, must(strconv.ParseUint(p, 10, 64)))
		}
	}
	return out
}

// parseMatches reads buy:sell:fill triples.
func parseMatches(input string) []common.Match {
	var out []common.Match
	for _, p := range strings.Split(input, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.Split(p, ":")
		if len(parts) != 3 {
			log.Fatalf("Error: bad match %q, want buy:sell:fill", p)
		}
		out = append(out, common.Match{
			BuyID:  must(strconv.ParseUint(parts[0], 10, 64)),
			SellID: must(strconv.ParseUint(parts[1], 10, 64)),
			Fill:   amount(parts[2]),
		})
	}
	return out
}

func printValues(typeOf skollNet.MessageType, values []*uint256.Int) {
	switch typeOf {
	case skollNet.CreateOrder:
		if len(values) == 1 {
			fmt.Printf("   order id: %d\n", values[0].Uint64())
		}
	case skollNet.FulfillLimit, skollNet.FulfillMarket, skollNet.FulfillWithPool, skollNet.FulfillWithFallback:
		for i := 0; i+6 <= len(values); i += 6 {
			fmt.Printf("   buy %d / sell %d: %s @ %s, notional %s, fee %s\n",
				values[i].Uint64(), values[i+1].Uint64(),
				fixed.Format(values[i+2]), fixed.Format(values[i+3]),
				fixed.Format(values[i+4]), fixed.Format(values[i+5]))
		}
	case skollNet.Deposit:
		if len(values) == 2 {
			fmt.Printf("   epoch %d, shares %s\n", values[0].Uint64(), fixed.Format(values[1]))
		}
	default:
		for _, v := range values {
			fmt.Printf("   %s\n", fixed.Format(v))
		}
	}
}

func printEvent(ev events.Event) {
	fmt.Printf("[EVENT %d] %s order=%d counter=%d owner=%s asset=%s amount=%s price=%s value=%s fee=%s\n",
		ev.Seq, ev.Kind, ev.OrderID, ev.CounterID, ev.Owner.Hex(), ev.Asset.Hex(),
		fixed.Format(ev.Amount), fixed.Format(ev.Price), fixed.Format(ev.Value), fixed.Format(ev.Fee))
}
