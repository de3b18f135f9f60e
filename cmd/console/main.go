package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/liquidity-market-go/events"
	"github.com/defistate/liquidity-market-go/market"
	"github.com/defistate/liquidity-market-go/market/ratemodel"
	"github.com/defistate/liquidity-market-go/pair"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"

	DefaultEventBufferSize = 100
)

var pairAccount = common.HexToAddress("0x00000000000000000000000000000000000000aa")

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

// SimClock is an adjustable time source so interest accrual can be driven
// from the console instead of waiting for wall-clock years.
type SimClock struct {
	now time.Time
}

func (c *SimClock) Now() time.Time          { return c.now }
func (c *SimClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// console bundles the simulated market and its dependencies for the handlers.
type console struct {
	market *market.Market
	pair   *pair.Pair
	ledger *pair.Ledger
	clock  *SimClock
	logger *slog.Logger
}

func main() {
	upperBound := flag.Float64("upper-bound", 5.0, "price bound of the pair's bonding curve")
	flag.Parse()

	// --- 1. SETUP LOGGING (To File) ---
	logFile, err := os.OpenFile("console.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("Failed to open log file: %v", err))
	}
	defer logFile.Close()

	rootLogHandler := slog.NewJSONHandler(logFile, nil)
	rootLogger := slog.New(rootLogHandler)

	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check console.log for details." + Reset)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. INITIALIZE MARKET ---
	prometheusRegistry := prometheus.NewRegistry()
	emitter := events.NewBroadcaster(rootLogger.With("component", "events"), DefaultEventBufferSize)
	ledger := pair.NewLedger()
	clock := &SimClock{now: time.Now()}

	p, err := pair.New(&pair.Config{
		Logger:      rootLogger.With("component", "pair"),
		Emitter:     emitter,
		Ledger:      ledger,
		Address:     pairAccount,
		Token0Scale: market.Scale,
		Token1Scale: market.Scale,
		UpperBound:  toWei(*upperBound),
	})
	if err != nil {
		rootLogger.Error("Failed to initialize pair", "error", err)
		closeApp()
	}

	m, err := market.New(&market.Config{
		Logger:   rootLogger.With("component", "market"),
		Registry: prometheusRegistry,
		Emitter:  emitter,
		Clock:    clock.Now,
		Rate:     ratemodel.Default(),
		Pair:     p,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize market", "error", err)
		closeApp()
	}

	// Drain events to the log so the buffer never fills.
	go func() {
		for {
			select {
			case e := <-emitter.Events():
				rootLogger.Info("event", "name", e.Name(), "payload", e)
			case <-ctx.Done():
				return
			}
		}
	}()

	// --- 3. START CONSOLE ---
	c := &console{market: m, pair: p, ledger: ledger, clock: clock, logger: rootLogger}

	fmt.Println(Green + "Starting Liquidity Market Console..." + Reset)
	fmt.Println("Logs are being written to 'console.log'")
	go c.run(ctx)

	<-ctx.Done()
	fmt.Println("\n" + Yellow + "Shutting down..." + Reset)
}

// run handles user input and display.
func (c *console) run(ctx context.Context) {
	reader := bufio.NewReader(os.Stdin)
	time.Sleep(500 * time.Millisecond)

	for {
		if ctx.Err() != nil {
			return
		}

		printMenu()

		fmt.Print(Bold + "Enter selection: " + Reset)
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("Error reading input:", err)
			continue
		}
		input = strings.TrimSpace(input)

		c.handleCommand(input, reader)

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "LIQUIDITY MARKET CONSOLE" + Reset + Gray + " | v0.1.0" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Market Status\n", Cyan, Reset)
	fmt.Printf(" %s2.%s Positions\n", Cyan, Reset)
	fmt.Printf(" %s3.%s Deposit    %s(lend liquidity)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s4.%s Withdraw   %s(redeem shares)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s5.%s Borrow\n", Cyan, Reset)
	fmt.Printf(" %s6.%s Repay\n", Cyan, Reset)
	fmt.Printf(" %s7.%s Collect    %s(claim interest)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s8.%s Advance Time\n", Cyan, Reset)
	fmt.Printf(" %s9.%s Balances\n", Cyan, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sh.%s Help / Architecture\n", Yellow, Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func (c *console) handleCommand(input string, reader *bufio.Reader) {
	switch input {
	case "1":
		c.printStatus()
	case "2":
		c.printPositions()
	case "3":
		c.deposit(reader)
	case "4":
		c.withdraw(reader)
	case "5":
		c.borrow(reader)
	case "6":
		c.repay(reader)
	case "7":
		c.collect(reader)
	case "8":
		c.advanceTime(reader)
	case "9":
		c.printBalances(reader)
	case "h":
		printHelp()
	case "q":
		fmt.Println(Yellow + "Exiting. Goodbye." + Reset)
		os.Exit(0)
	default:
		fmt.Println(Red + "Unknown command." + Reset)
	}
}

// --- COMMAND HANDLERS ---

func printHelp() {
	fmt.Print("\033[H\033[2J")

	header("LIQUIDITY MARKET ARCHITECTURE")
	fmt.Println(Bold + "Concept: Lending Over a Bonding Curve" + Reset)
	fmt.Println("The unit of account is AMM pool liquidity rather than a single token.")
	fmt.Println("Lenders deposit liquidity for shares; borrowers draw the liquidity out")
	fmt.Println("against collateral, receiving the underlying assets.")
	fmt.Println("")

	fmt.Println(Bold + "1. THE PAIR" + Reset)
	fmt.Println("   Holds two-asset reserves on a capped-quadratic bonding curve and")
	fmt.Println("   settles asset movements. Payment sufficiency for a mint falls out")
	fmt.Println("   of the curve invariant itself.")
	fmt.Println("")

	fmt.Println(Bold + "2. THE MARKET" + Reset)
	fmt.Println("   - " + Yellow + "Deposit/Withdraw" + Reset + ": share-based claims on pooled liquidity.")
	fmt.Println("   - " + Yellow + "Borrow/Repay" + Reset + ": liquidity lent out, tracked per market.")
	fmt.Println("   - " + Yellow + "Accrual" + Reset + ": interest dilutes the share conversion rate in")
	fmt.Println("     the lenders' favor; borrowers owe less liquidity but the same value.")
	fmt.Println("")

	fmt.Println(Bold + "3. THE RATE MODEL" + Reset)
	fmt.Println("   A kinked jump-rate curve: utilization below the kink pays the base")
	fmt.Println("   slope, above it the jump multiplier takes over.")
	fmt.Println("")

	fmt.Println(Gray + "---------------------------------------------------------------" + Reset)
	fmt.Println(Bold + "PURPOSE OF THIS CONSOLE" + Reset)
	fmt.Println("Drive the accounting engine by hand: deposit, borrow, advance time,")
	fmt.Println("and watch interest flow from borrowers to lenders.")
	fmt.Println("Accounts are free-form names; deposits and repayments are auto-funded.")
	fmt.Println(Gray + "---------------------------------------------------------------" + Reset)
}

func (c *console) printStatus() {
	header("MARKET STATUS")

	view := c.market.View()
	rate := c.market.BorrowRate(view.TotalLiquidityBorrowed, view.TotalLiquidity)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintf(w, "Total Liquidity\t%s\t\n", fromWei(view.TotalLiquidity))
	fmt.Fprintf(w, "Borrowed\t%s\t\n", fromWei(view.TotalLiquidityBorrowed))
	fmt.Fprintf(w, "Position Size\t%s\t\n", fromWei(view.TotalPositionSize))
	fmt.Fprintf(w, "Reserve0 / Reserve1\t%s / %s\t\n", fromWei(view.Reserve0), fromWei(view.Reserve1))
	fmt.Fprintf(w, "Reward Per Share\t%s\t\n", fromWei(view.RewardPerPositionStored))
	fmt.Fprintf(w, "Utilization\t%.2f%%\t\n", c.market.Utilization()*100)
	fmt.Fprintf(w, "Borrow Rate (APR)\t%s%%\t\n", new(big.Float).Mul(big.NewFloat(100), toFloat(rate)).Text('f', 2))
	fmt.Fprintf(w, "Clock\t%s\t\n", c.clock.Now().Format(time.RFC3339))
	w.Flush()
}

func (c *console) printPositions() {
	header("POSITIONS")

	view := c.market.View()
	if len(view.Positions) == 0 {
		fmt.Println(Yellow + "[INFO] No positions yet." + Reset)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "OWNER\tSIZE\tTOKENS OWED\t")
	fmt.Fprintln(w, "-----\t----\t-----------\t")
	for _, pos := range view.Positions {
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", pos.Owner.Hex(), fromWei(pos.Size), fromWei(pos.TokensOwed))
	}
	w.Flush()
}

func (c *console) deposit(reader *bufio.Reader) {
	account, ok := readAccount(reader)
	if !ok {
		return
	}
	liquidity, ok := readAmount(reader, "Liquidity to deposit")
	if !ok {
		return
	}

	// The curve wants reserves in proportion; offer generously and let the
	// pair keep what the invariant requires.
	amount0 := new(big.Int).Set(liquidity)
	amount1 := new(big.Int).Mul(liquidity, big.NewInt(10))
	c.fund(account, amount0, amount1)

	shares, err := c.market.Deposit(context.Background(), account, account, liquidity, amount0, amount1, nil)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	fmt.Printf(Green+"Minted %s shares to %s%s\n", fromWei(shares), account.Hex(), Reset)
}

func (c *console) withdraw(reader *bufio.Reader) {
	account, ok := readAccount(reader)
	if !ok {
		return
	}
	shares, ok := readAmount(reader, "Shares to withdraw")
	if !ok {
		return
	}

	out0, out1, err := c.market.Withdraw(context.Background(), account, account, shares)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	fmt.Printf(Green+"Released %s / %s to %s%s\n", fromWei(out0), fromWei(out1), account.Hex(), Reset)
}

func (c *console) borrow(reader *bufio.Reader) {
	account, ok := readAccount(reader)
	if !ok {
		return
	}
	liquidity, ok := readAmount(reader, "Liquidity to borrow")
	if !ok {
		return
	}

	out0, out1, err := c.market.Mint(context.Background(), account, liquidity, nil)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	fmt.Printf(Green+"Borrowed %s liquidity, received %s / %s%s\n", fromWei(liquidity), fromWei(out0), fromWei(out1), Reset)
}

func (c *console) repay(reader *bufio.Reader) {
	account, ok := readAccount(reader)
	if !ok {
		return
	}
	liquidity, ok := readAmount(reader, "Liquidity to repay")
	if !ok {
		return
	}

	amount0 := new(big.Int).Set(liquidity)
	amount1 := new(big.Int).Mul(liquidity, big.NewInt(10))
	c.fund(account, amount0, amount1)

	if err := c.market.Burn(context.Background(), account, liquidity, amount0, amount1, nil); err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	fmt.Printf(Green+"Repaid %s liquidity for %s%s\n", fromWei(liquidity), account.Hex(), Reset)
}

func (c *console) collect(reader *bufio.Reader) {
	account, ok := readAccount(reader)
	if !ok {
		return
	}

	owed := c.market.Position(account).TokensOwed
	if owed.Sign() == 0 {
		fmt.Println(Yellow + "[INFO] Nothing settled to collect yet; any pending credit settles now." + Reset)
	}

	// Request effectively everything; the market caps at what is owed.
	everything := new(big.Int).Mul(market.Scale, big.NewInt(1_000_000_000))
	collected, err := c.market.Collect(context.Background(), account, account, everything)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	fmt.Printf(Green+"Collected %s interest credit for %s%s\n", fromWei(collected), account.Hex(), Reset)
}

func (c *console) advanceTime(reader *bufio.Reader) {
	fmt.Print("\n" + Bold + "Duration to advance (e.g. 720h, 30m): " + Reset)
	input, _ := reader.ReadString('\n')
	d, err := time.ParseDuration(strings.TrimSpace(input))
	if err != nil {
		fmt.Printf(Red+"[ERROR] Invalid duration: %v%s\n", err, Reset)
		return
	}

	c.clock.Advance(d)
	if err := c.market.Accrue(); err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	fmt.Printf(Green+"Clock advanced to %s, interest accrued.%s\n", c.clock.Now().Format(time.RFC3339), Reset)
}

func (c *console) printBalances(reader *bufio.Reader) {
	account, ok := readAccount(reader)
	if !ok {
		return
	}

	header("BALANCES")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintf(w, "Token0\t%s\t\n", fromWei(c.ledger.Balance0(account)))
	fmt.Fprintf(w, "Token1\t%s\t\n", fromWei(c.ledger.Balance1(account)))
	w.Flush()
}

// fund credits the console's faucet allowance so operations can settle.
func (c *console) fund(account common.Address, amount0, amount1 *big.Int) {
	if err := c.ledger.Credit0(account, amount0); err != nil {
		c.logger.Error("faucet credit failed", "account", account, "error", err)
	}
	if err := c.ledger.Credit1(account, amount1); err != nil {
		c.logger.Error("faucet credit failed", "account", account, "error", err)
	}
}

// --- INPUT HELPERS ---

// readAccount maps a free-form account name onto a deterministic address.
func readAccount(reader *bufio.Reader) (common.Address, bool) {
	fmt.Print("\n" + Bold + "Account name (e.g. alice): " + Reset)
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		fmt.Println(Red + "Account name required." + Reset)
		return common.Address{}, false
	}
	if strings.HasPrefix(input, "0x") {
		return common.HexToAddress(input), true
	}
	return common.BytesToAddress([]byte(input)), true
}

func readAmount(reader *bufio.Reader, prompt string) (*big.Int, bool) {
	fmt.Print(Bold + prompt + " (e.g. 1.5): " + Reset)
	input, _ := reader.ReadString('\n')
	amountFloat, ok := new(big.Float).SetString(strings.TrimSpace(input))
	if !ok {
		fmt.Println(Red + "Invalid amount format." + Reset)
		return nil, false
	}

	raw, _ := new(big.Float).Mul(amountFloat, new(big.Float).SetInt(market.Scale)).Int(nil)
	if raw.Sign() <= 0 {
		fmt.Println(Red + "Amount must be greater than zero." + Reset)
		return nil, false
	}
	return raw, true
}

func toWei(v float64) *big.Int {
	raw, _ := new(big.Float).Mul(big.NewFloat(v), new(big.Float).SetInt(market.Scale)).Int(nil)
	return raw
}

func toFloat(v *big.Int) *big.Float {
	return new(big.Float).Quo(new(big.Float).SetInt(v), new(big.Float).SetInt(market.Scale))
}

func fromWei(v *big.Int) string {
	return toFloat(v).Text('f', 6)
}
