// cmd/swap/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	solclient "github.com/eldarkhamitov/solana-cpmm/internal/blockchain/solana"
	"github.com/eldarkhamitov/solana-cpmm/internal/config"
	"github.com/eldarkhamitov/solana-cpmm/internal/cpmm"
	"github.com/eldarkhamitov/solana-cpmm/internal/logger"
	"github.com/eldarkhamitov/solana-cpmm/internal/wallet"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	quoteOnly := flag.Bool("quote", false, "compute the swap without broadcasting")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	if cfg.WalletKey == "" {
		return fmt.Errorf("wallet key is not configured, set CPMM_WALLET_KEY")
	}
	w, err := wallet.NewWallet(cfg.WalletKey)
	if err != nil {
		return fmt.Errorf("failed to load wallet: %w", err)
	}
	log.Info("wallet loaded", zap.String("pubkey", w.String()))

	client, err := solclient.NewClient(cfg.RPCList, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	resolver := cpmm.NewResolverForNetwork(cfg.Network, cfg.IndexBaseURL, client, log)
	engine := cpmm.NewEngine(resolver, client, w, cpmm.DefaultsFromConfig(cfg), log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	params := cpmm.SwapBaseOutParams{
		PoolID:            cfg.PoolID,
		OutputMint:        cfg.OutputMint,
		OutputAmount:      cfg.OutputAmount,
		AwaitConfirmation: true,
	}

	if *quoteOnly {
		computation, err := engine.QuoteBaseOut(ctx, params)
		if err != nil {
			return err
		}
		log.Info("quote",
			zap.Uint64("amount_out", computation.AmountOut),
			zap.Uint64("amount_in", computation.AmountIn),
			zap.Uint64("trading_fee", computation.TradingFee),
			zap.Bool("base_in", computation.BaseIn))
		return nil
	}

	outcome, err := engine.SwapBaseOut(ctx, params)
	if err != nil {
		return err
	}
	log.Info("swap complete",
		zap.String("signature", outcome.Signature.String()),
		zap.Uint64("amount_out", outcome.AmountOut),
		zap.Uint64("amount_in", outcome.AmountIn),
		zap.Uint64("max_amount_in", outcome.MaxAmountIn),
		zap.Uint64("trading_fee", outcome.TradingFee))
	return nil
}
