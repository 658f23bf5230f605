package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"tradebot/internal/app"
	"tradebot/internal/config"
	"tradebot/internal/decision"
	"tradebot/internal/logger"
	"tradebot/internal/precision"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/config.yaml"

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "tradebot",
		Short:         "Validate and execute LLM trading decisions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.envFile == "" {
				return nil
			}
			if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load %s: %w", opts.envFile, err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", configPathFromEnv(), "configuration file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file with broker credentials")

	root.AddCommand(
		newServeCmd(opts),
		newValidateCmd(opts),
		newExecuteCmd(opts),
		newPnLCmd(),
		newVersionCmd(),
	)
	return root
}

func configPathFromEnv() string {
	if p := strings.TrimSpace(os.Getenv("TRADEBOT_CONFIG")); p != "" {
		return p
	}
	return defaultConfigPath
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP decision API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			defer closeLog()
			logger.Infof("config loaded (env=%s, broker=%s, dry_run=%t)", cfg.App.Env, cfg.Broker.NormalizedKind(), cfg.Broker.DryRun)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := app.NewApp(ctx, cfg)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			return a.Run(ctx)
		},
	}
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var useDefaults bool
	cmd := &cobra.Command{
		Use:   "validate [file|-]",
		Short: "Validate decisions without executing them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			thresholds := decision.DefaultConfig()
			if !useDefaults {
				cfg, err := config.Load(opts.configPath)
				if err != nil {
					return err
				}
				thresholds = cfg.Risk.Thresholds()
			}
			batch, err := readDecisions(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			return runValidate(cmd.OutOrStdout(), decision.NewValidator(thresholds), batch)
		},
	}
	cmd.Flags().BoolVar(&useDefaults, "defaults", false, "ignore the config file and use built-in thresholds")
	return cmd
}

type validateOutput struct {
	Symbol     string   `json:"symbol"`
	Action     string   `json:"action"`
	Valid      bool     `json:"valid"`
	Errors     []string `json:"errors"`
	RiskReward *float64 `json:"risk_reward_ratio,omitempty"`
	Summary    string   `json:"summary"`
}

func runValidate(w io.Writer, v *decision.Validator, batch []decision.Fields) error {
	out := make([]validateOutput, 0, len(batch))
	failed := 0
	for _, f := range batch {
		res := v.Validate(f)
		row := validateOutput{
			Symbol:  f.String("symbol"),
			Action:  f.String("action"),
			Valid:   res.Valid,
			Errors:  res.Errors,
			Summary: v.Summary(f),
		}
		if row.Errors == nil {
			row.Errors = []string{}
		}
		if rr, ok := decision.RiskRewardRatio(f); ok {
			row.RiskReward = &rr
		}
		if !res.Valid {
			failed++
		}
		out = append(out, row)
	}
	if err := writeJSON(w, out); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d decisions failed validation", failed, len(batch))
	}
	return nil
}

func newExecuteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "execute [file|-]",
		Short: "Validate and execute decisions against the configured broker",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			defer closeLog()
			batch, err := readDecisions(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := app.NewApp(ctx, cfg)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			defer a.Close()
			subs, err := a.Manager().SubmitAll(ctx, "cli", batch)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), subs)
		},
	}
}

type pnlOptions struct {
	entry, exit, qty string
	side             string
	preset           string
	settlement       string
	leverage         string
	mmr              string
}

func newPnLCmd() *cobra.Command {
	o := &pnlOptions{}
	cmd := &cobra.Command{
		Use:   "pnl",
		Short: "Compute exact PnL and liquidation price for a position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPnL(cmd.OutOrStdout(), o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.entry, "entry", "", "entry price")
	f.StringVar(&o.exit, "exit", "", "exit price")
	f.StringVar(&o.qty, "qty", "", "quantity, or contracts for inverse presets")
	f.StringVar(&o.side, "side", "long", "long or short")
	f.StringVar(&o.preset, "preset", "linear_btc", "contract preset: linear_btc, inverse_btc or inverse_eth")
	f.StringVar(&o.settlement, "settlement", "", "settlement price for inverse USD PnL (defaults to exit)")
	f.StringVar(&o.leverage, "leverage", "", "leverage; prints the liquidation price when set")
	f.StringVar(&o.mmr, "mmr", "", "maintenance margin rate")
	_ = cmd.MarkFlagRequired("entry")
	_ = cmd.MarkFlagRequired("exit")
	_ = cmd.MarkFlagRequired("qty")
	return cmd
}

func runPnL(w io.Writer, o *pnlOptions) error {
	spec, ok := precision.Presets[strings.ToLower(o.preset)]
	if !ok {
		return fmt.Errorf("unknown preset %q", o.preset)
	}
	var isLong bool
	switch strings.ToLower(o.side) {
	case "long":
		isLong = true
	case "short":
	default:
		return fmt.Errorf("side must be long or short, got %q", o.side)
	}

	out := map[string]string{"preset": strings.ToLower(o.preset), "type": string(spec.Type)}
	if spec.IsInverse() {
		coin, err := precision.InversePnL(o.entry, o.exit, o.qty, spec.ContractSize, isLong)
		if err != nil {
			return err
		}
		var settle any
		if o.settlement != "" {
			settle = o.settlement
		}
		usd, err := precision.InversePnLUSD(o.entry, o.exit, o.qty, spec.ContractSize, isLong, settle)
		if err != nil {
			return err
		}
		out["pnl_coin"] = coin.String()
		out["pnl_usd"] = usd.String()
	} else {
		pnl, err := precision.LinearPnL(o.entry, o.exit, o.qty, isLong)
		if err != nil {
			return err
		}
		out["pnl"] = pnl.String()
	}
	if o.leverage != "" {
		var mmr any
		if o.mmr != "" {
			mmr = o.mmr
		}
		liq, err := precision.LiquidationPrice(o.entry, o.leverage, isLong, mmr, spec.Type)
		if err != nil {
			return err
		}
		out["liquidation_price"] = liq.String()
	}
	return writeJSON(w, out)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tradebot %s\n", app.Version)
		},
	}
}

// readDecisions parses decisions from the named file, or stdin for "-" or
// no argument. The input may be free-form model output around the JSON.
func readDecisions(stdin io.Reader, args []string) ([]decision.Fields, error) {
	var (
		raw []byte
		err error
	)
	if len(args) == 0 || args[0] == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return nil, err
	}
	return decision.Parse(string(raw))
}

func loadConfig(path string) (*config.Config, func(), error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logFile, err := openAppend(cfg.App.LogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("init log file: %w", err)
	}
	if logFile != nil {
		mw := io.MultiWriter(os.Stderr, logFile)
		log.SetOutput(mw)
		logger.SetOutput(mw)
	} else {
		logger.SetOutput(os.Stderr)
	}
	payloadFile, err := openAppend(cfg.App.PayloadLog)
	if err != nil {
		closeFile(logFile)
		return nil, nil, fmt.Errorf("init payload log: %w", err)
	}
	if payloadFile != nil {
		logger.SetPayloadWriter(payloadFile)
	}
	logger.SetLevel(cfg.App.LogLevel)
	return cfg, func() {
		logger.SetPayloadWriter(nil)
		closeFile(payloadFile)
		closeFile(logFile)
	}, nil
}

// openAppend opens path for appending, creating parent directories. An
// empty path yields a nil file.
func openAppend(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func closeFile(f *os.File) {
	if f != nil {
		_ = f.Close()
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
