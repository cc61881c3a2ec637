// Package command reads interactive lines and dispatches them against the engine.
package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"tothemoon-go/internal/dataset"
	"tothemoon-go/internal/engine"
	"tothemoon-go/internal/execution"
	"tothemoon-go/internal/paper"
	"tothemoon-go/internal/scheduler"
	"tothemoon-go/internal/signal"

	"github.com/rs/zerolog"
)

const separator = "-------------------------------------"

// Engine is the slice of the trading engine the command loop drives.
type Engine interface {
	Add(ctx context.Context, symbol string) (string, error)
	Remove(symbol string) (*execution.Transaction, error)
	Deposit(amount float64) error
	Holdings() paper.Snapshot
	WithdrawAll() float64
	Market() (map[string]float64, time.Time)
	Watchlist() []string
	Transactions() []execution.Transaction
	Indicators() map[string]dataset.Row
}

// Processor maps zero- and one-argument commands onto engine calls and renders the result.
type Processor struct {
	eng        Engine
	in         io.Reader
	out        io.Writer
	log        zerolog.Logger
	ledgerPath string
	now        func() time.Time

	simple map[string]func(ctx context.Context, ctrl *scheduler.Controller)
	param  map[string]func(ctx context.Context, arg string)
	usage  []string
}

// NewProcessor wires the command table. ledgerPath is shown by the history command.
func NewProcessor(eng Engine, in io.Reader, out io.Writer, ledgerPath string, log zerolog.Logger) *Processor {
	p := &Processor{eng: eng, in: in, out: out, log: log, ledgerPath: ledgerPath, now: time.Now}
	p.simple = map[string]func(context.Context, *scheduler.Controller){
		"help":       func(context.Context, *scheduler.Controller) { p.Help() },
		"current":    func(context.Context, *scheduler.Controller) { p.current() },
		"market":     func(context.Context, *scheduler.Controller) { p.market() },
		"history":    func(context.Context, *scheduler.Controller) { p.history() },
		"indicators": func(context.Context, *scheduler.Controller) { p.indicators() },
		"withdraw":   p.withdraw,
	}
	p.param = map[string]func(context.Context, string){
		"deposit": p.deposit,
		"add":     p.add,
		"remove":  p.remove,
	}
	p.usage = []string{
		"help", "deposit [value]", "withdraw", "current", "history",
		"market", "indicators", "add [symbol]", "remove [symbol]",
	}
	return p
}

// Help prints the supported commands.
func (p *Processor) Help() {
	fmt.Fprintln(p.out, "Supported commands (case insensitive):")
	for _, u := range p.usage {
		fmt.Fprintln(p.out, u)
	}
}

// Banner prints the help block framed by separators.
func (p *Processor) Banner() {
	fmt.Fprintln(p.out, separator)
	p.Help()
	fmt.Fprintln(p.out, separator)
}

// Handle executes one input line. Empty lines are ignored.
func (p *Processor) Handle(ctx context.Context, ctrl *scheduler.Controller, line string) {
	line = strings.ToLower(strings.TrimSpace(line))
	if line == "" {
		return
	}
	fmt.Fprintln(p.out, separator)
	defer fmt.Fprintln(p.out, separator)

	tokens := strings.Fields(line)
	switch len(tokens) {
	case 1:
		if fn, ok := p.simple[tokens[0]]; ok {
			fn(ctx, ctrl)
			return
		}
	case 2:
		if fn, ok := p.param[tokens[0]]; ok {
			fn(ctx, tokens[1])
			return
		}
	}
	fmt.Fprintf(p.out, "Unknown action: %q\n", line)
	p.Help()
}

// Run reads lines until ctrl stops or ctx ends. At end of input it keeps waiting so
// the session continues without a terminal.
func (p *Processor) Run(ctx context.Context, ctrl *scheduler.Controller) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(p.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctrl.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			p.log.Warn().Err(err).Msg("read input")
		}
	}()

	for {
		select {
		case <-ctrl.Done():
			return nil
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				p.log.Debug().Msg("input closed")
				lines = nil
				continue
			}
			p.Handle(ctx, ctrl, line)
			if ctrl.Stopped() {
				return nil
			}
		}
	}
}

func (p *Processor) current() {
	snap := p.eng.Holdings()
	fmt.Fprintf(p.out, "[USD : %s]\n", formatFloat(snap.Cash))
	for _, sym := range snap.Symbols() {
		fmt.Fprintf(p.out, "[%s : %s]\n", sym, formatFloat(snap.Positions[sym].Qty))
	}
	fmt.Fprintf(p.out, "Estimated withdrawal: %s USD\n", formatFloat(snap.Equity))
}

func (p *Processor) market() {
	prices, at := p.eng.Market()
	watch := p.eng.Watchlist()
	if len(watch) == 0 {
		fmt.Fprintln(p.out, "Watchlist is empty")
		return
	}
	if !at.IsZero() {
		fmt.Fprintf(p.out, "Market at %s\n", at.Format(dataset.TimeLayout))
	}
	for _, sym := range watch {
		if px, ok := prices[sym]; ok {
			fmt.Fprintf(p.out, "[%s: %s USD]\n", sym, formatFloat(px))
		} else {
			fmt.Fprintf(p.out, "[%s: n/a]\n", sym)
		}
	}
}

func (p *Processor) history() {
	txs := p.eng.Transactions()
	if len(txs) == 0 {
		fmt.Fprintln(p.out, "No transactions have been accomplished yet")
		return
	}
	fmt.Fprintf(p.out, "Transactions (full history in %s)\n", p.ledgerPath)
	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]
		fmt.Fprintf(p.out, "%d: %s Name: %s Exchange rate: %s Amount: %s Action: %s\n",
			len(txs)-i, tx.Time.Format(dataset.TimeLayout), tx.Symbol,
			formatFloat(tx.Rate), formatFloat(tx.Amount), tx.Side)
	}
}

func (p *Processor) indicators() {
	rows := p.eng.Indicators()
	fmt.Fprintf(p.out, "Indicators at %s\n", p.now().Format(dataset.TimeLayout))
	fmt.Fprintln(p.out, "RSI = Relative Strength Index")
	fmt.Fprintln(p.out, "BB = Bollinger Bands")
	syms := make([]string, 0, len(rows))
	for sym := range rows {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	for _, sym := range syms {
		row := rows[sym]
		fmt.Fprintf(p.out, "\n[ --- %s --- ]\n", sym)
		fmt.Fprintf(p.out, "- RSI: %s %%\n", formatFloat(row.RSI))
		fmt.Fprintf(p.out, "- BB: Lowerband: %s USD, Upperband: %s USD\n", formatFloat(row.Lower), formatFloat(row.Upper))
		fmt.Fprintf(p.out, "- Current value: %s USD\n", formatFloat(row.Close))
	}
}

func (p *Processor) withdraw(_ context.Context, ctrl *scheduler.Controller) {
	fmt.Fprintf(p.out, "Withdrawing %s USD, stopping\n", formatFloat(p.eng.WithdrawAll()))
	if ctrl != nil {
		ctrl.Stop()
	}
}

func (p *Processor) deposit(_ context.Context, arg string) {
	amount, err := strconv.ParseFloat(arg, 64)
	if err == nil {
		err = p.eng.Deposit(amount)
	}
	if err != nil {
		fmt.Fprintln(p.out, "Invalid amount")
		return
	}
	fmt.Fprintf(p.out, "%s USD added\n", formatFloat(amount))
}

func (p *Processor) add(ctx context.Context, arg string) {
	sym, err := p.eng.Add(ctx, signal.NormalizeSymbol(arg))
	if err != nil {
		p.log.Debug().Err(err).Str("sym", sym).Msg("add rejected")
		fmt.Fprintln(p.out, "Invalid operation")
		return
	}
	fmt.Fprintf(p.out, "%s added successfully\n", sym)
}

func (p *Processor) remove(_ context.Context, arg string) {
	arg = signal.NormalizeSymbol(arg)
	tx, err := p.eng.Remove(arg)
	if tx != nil {
		fmt.Fprintf(p.out, "Sold %s %s at %s USD\n", formatFloat(tx.Amount), tx.Symbol, formatFloat(tx.Rate))
	}
	switch {
	case err == nil:
		fmt.Fprintf(p.out, "%s removed successfully\n", arg)
	case tx != nil && errors.Is(err, engine.ErrIOFailure):
		fmt.Fprintf(p.out, "%s removed successfully (transaction log not written)\n", arg)
	default:
		p.log.Debug().Err(err).Str("sym", arg).Msg("remove rejected")
		fmt.Fprintln(p.out, "Invalid operation")
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseSymbols splits a whitespace separated list of pairs and normalizes each one.
func ParseSymbols(fields ...string) []string {
	var out []string
	for _, f := range fields {
		for _, tok := range strings.Fields(f) {
			if sym := signal.NormalizeSymbol(tok); sym != "" {
				out = append(out, sym)
			}
		}
	}
	return out
}
