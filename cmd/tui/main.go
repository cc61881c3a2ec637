package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"tothemoon-go/internal/config"
	"tothemoon-go/internal/signal"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== ToTheMoon Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit bankroll and risk knobs")
		fmt.Println("3) Edit strategy settings")
		fmt.Println("4) Edit market settings")
		fmt.Println("5) Save config")
		fmt.Println("6) Launch trading session")
		fmt.Println("7) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editRisk(reader, cfg)
		case "3":
			editStrategy(reader, cfg)
		case "4":
			editMarket(reader, cfg)
		case "5":
			if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "6":
			launchSession()
		case "7":
			reloaded, err := loadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	p := cfg.Strategy.Params
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Starting cash: $%.2f\n", cfg.Paper.StartingCash)
	fmt.Printf("Trading fee: %.2f%% | investment split: 1/%.0f of cash per buy\n", cfg.Paper.TradingFee*100, cfg.Paper.InvestmentSplit)
	fmt.Printf("Per-trade notional: min $%.2f, max $%.2f (0 = uncapped)\n", cfg.Risk.MinNotionalPerTrade, cfg.Risk.MaxNotionalPerTrade)
	fmt.Printf("Strategy: RSI(%d) %.0f/%.0f + BB(%d, %.1f) combined with %s, threshold %d ticks\n",
		p.RSIPeriod, p.RSIOversold, p.RSIOverbought, p.BBPeriod, p.BBStdDevs, strings.ToUpper(cfg.Strategy.Mode), p.SignalThreshold)
	fmt.Printf("Market: %s, poll every %s, persist every %s\n", cfg.Exchange.Provider, cfg.PollInterval(), cfg.HistoryInterval())
	fmt.Println("Symbols:", strings.Join(cfg.Exchange.Symbols, ", "))
	fmt.Printf("Ledger: %s\n", filepath.Join(cfg.Ledger.Dir, cfg.Ledger.File))
}

func editRisk(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Risk / Bankroll ---")
	cfg.Paper.StartingCash = promptFloat(reader, "Starting cash", cfg.Paper.StartingCash)
	cfg.Paper.TradingFee = promptPercent(reader, "Trading fee (%)", cfg.Paper.TradingFee)
	cfg.Paper.InvestmentSplit = promptFloat(reader, "Investment split (cash divisor)", cfg.Paper.InvestmentSplit)
	cfg.Risk.MinNotionalPerTrade = promptFloat(reader, "Min notional per trade (USD)", cfg.Risk.MinNotionalPerTrade)
	cfg.Risk.MaxNotionalPerTrade = promptFloat(reader, "Max notional per trade (USD, 0 = uncapped)", cfg.Risk.MaxNotionalPerTrade)
}

func editStrategy(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Strategy ---")
	fmt.Printf("Combine mode (or/and) [%s]: ", cfg.Strategy.Mode)
	if line, _ := reader.ReadString('\n'); strings.TrimSpace(line) != "" {
		cfg.Strategy.Mode = strings.ToLower(strings.TrimSpace(line))
	}
	p := &cfg.Strategy.Params
	p.SignalThreshold = int(promptFloat(reader, "Signal threshold (ticks)", float64(p.SignalThreshold)))
	p.RSIPeriod = int(promptFloat(reader, "RSI period", float64(p.RSIPeriod)))
	p.RSIOversold = promptFloat(reader, "RSI oversold", p.RSIOversold)
	p.RSIOverbought = promptFloat(reader, "RSI overbought", p.RSIOverbought)
	p.BBPeriod = int(promptFloat(reader, "Bollinger period", float64(p.BBPeriod)))
	p.BBStdDevs = promptFloat(reader, "Bollinger std devs", p.BBStdDevs)
}

func editMarket(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Market ---")
	fmt.Printf("Provider (stub/binance/binance_ws) [%s]: ", cfg.Exchange.Provider)
	if line, _ := reader.ReadString('\n'); strings.TrimSpace(line) != "" {
		cfg.Exchange.Provider = strings.ToLower(strings.TrimSpace(line))
	}
	fmt.Printf("Current symbols: %s\n", strings.Join(cfg.Exchange.Symbols, ", "))
	fmt.Print("Enter symbols comma-separated (blank to keep): ")
	if line, _ := reader.ReadString('\n'); strings.TrimSpace(line) != "" {
		cfg.Exchange.Symbols = nil
		for _, p := range strings.Split(strings.TrimSpace(line), ",") {
			if sym := signal.NormalizeSymbol(p); sym != "" {
				cfg.Exchange.Symbols = append(cfg.Exchange.Symbols, sym)
			}
		}
	}
	cfg.Exchange.PollIntervalMs = int(promptFloat(reader, "Poll interval (ms)", float64(cfg.Exchange.PollIntervalMs)))
	cfg.Scheduler.HistoryIntervalMs = int(promptFloat(reader, "History interval (ms)", float64(cfg.Scheduler.HistoryIntervalMs)))
}

func launchSession() {
	fmt.Println("Launching trading session (type withdraw or Ctrl+C to stop)...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/tothemoon", "-config", locateConfig())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start session: %v\n", err)
		return
	}
	if err := cmd.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "session exited: %v\n", err)
	}
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.2f]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.2f\n", current)
		return current
	}
	return val
}

func promptPercent(reader *bufio.Reader, label string, current float64) float64 {
	pct := promptFloat(reader, label, current*100)
	return pct / 100
}

func loadConfig() (*config.Config, error) {
	return config.Load(locateConfig())
}

func saveConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return config.Save(locateConfig(), cfg)
}

func locateConfig() string {
	if filepath.IsAbs(defaultConfigPath) {
		return defaultConfigPath
	}
	return filepath.Clean(defaultConfigPath)
}
