package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/harishsairam-ops/DDoS-Hackathon/internal/service/poller"
	"github.com/harishsairam-ops/DDoS-Hackathon/internal/service/telemetry"
	apiclient "github.com/harishsairam-ops/DDoS-Hackathon/pkg/api/client"
	"github.com/harishsairam-ops/DDoS-Hackathon/pkg/config"
	"github.com/harishsairam-ops/DDoS-Hackathon/pkg/jwt"
	"golang.org/x/term"
)

var buildVersion = "dev"

const requestTimeout = 15 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "stats":
		err = commandStats(args)
	case "block":
		err = commandCommand(poller.ActionBlock, args)
	case "unblock":
		err = commandCommand(poller.ActionUnblock, args)
	case "watch":
		err = commandWatch(args)
	case "token":
		err = commandToken(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	apiBase := fs.String("api", "", "Authority base URL (default http://localhost:5000)")
	limit := fs.Int("limit", 10, "Number of recent events to display")
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := apiclient.New(pick(*apiBase, cfg.APIBaseURL))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	stats, err := client.FetchStats(ctx, 0)
	if err != nil {
		return err
	}
	snap := poller.SnapshotFromStats(stats)
	series := telemetry.NewAggregator(0, 0).Aggregate(snap.Logs, time.Now())
	renderSummary(os.Stdout, snap, series, summaryOptions{Limit: *limit, Width: terminalWidth()})
	return nil
}

// commandCommand sends block/unblock. When a dashboard URL is configured the
// command goes through the dashboard so it is audited and rate limited there.
func commandCommand(action poller.Action, args []string) error {
	fs := flag.NewFlagSet(string(action), flag.ExitOnError)
	apiBase := fs.String("api", "", "Authority base URL; bypasses the dashboard")
	dashboard := fs.String("dashboard", "", "Dashboard base URL")
	token := fs.String("token", "", "Operator token (defaults to the saved token)")
	fs.Parse(args)

	address := strings.TrimSpace(fs.Arg(0))
	if address == "" {
		return fmt.Errorf("usage: netwatch %s <address>", action)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	target := pick(*dashboard, cfg.DashboardURL)
	if strings.TrimSpace(*apiBase) != "" || target == "" {
		target = pick(*apiBase, cfg.APIBaseURL)
	}
	client, err := apiclient.New(target, apiclient.WithBearerToken(pick(*token, cfg.OperatorToken)))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var result apiclient.CommandResult
	switch action {
	case poller.ActionUnblock:
		result, err = client.Unblock(ctx, address)
	default:
		result, err = client.Block(ctx, address)
	}
	if err != nil {
		return err
	}
	msg := strings.TrimSpace(result.Message)
	if msg == "" {
		msg = fmt.Sprintf("%s %s accepted", action, address)
	}
	fmt.Println(msg)
	return nil
}

func commandWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiBase := fs.String("api", "", "Authority base URL (default http://localhost:5000)")
	interval := fs.Duration("interval", 2*time.Second, "Polling interval")
	limit := fs.Int("limit", 10, "Number of recent events to display")
	fs.Parse(args)

	if *interval <= 0 {
		return errors.New("--interval must be positive")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := apiclient.New(pick(*apiBase, cfg.APIBaseURL), apiclient.WithTimeout(*interval))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := telemetry.NewAggregator(0, 0)
	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	var seq uint64
	for {
		seq++
		stats, err := client.FetchStats(ctx, seq)
		if interactive {
			fmt.Print("\033[H\033[2J")
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "fetch failed: %v\n", err)
		} else {
			snap := poller.SnapshotFromStats(stats)
			renderSummary(os.Stdout, snap, agg.Aggregate(snap.Logs, time.Now()), summaryOptions{
				Limit: *limit,
				Width: terminalWidth(),
			})
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func commandToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	operator := fs.String("operator", "", "Operator name")
	role := fs.String("role", "operator", "Operator role")
	ttl := fs.Duration("ttl", 12*time.Hour, "Token lifetime")
	secretFlag := fs.String("secret", "", "Signing secret (supply to avoid prompt)")
	save := fs.Bool("save", false, "Store the token in the CLI config")
	fs.Parse(args)

	if strings.TrimSpace(*operator) == "" {
		return errors.New("--operator is required")
	}
	secret := strings.TrimSpace(*secretFlag)
	if secret == "" {
		secret = strings.TrimSpace(os.Getenv("OPERATOR_JWT_SECRET"))
	}
	if secret == "" {
		fmt.Fprint(os.Stderr, "Secret: ")
		bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprint(os.Stderr, "\n")
		if err != nil {
			return fmt.Errorf("read secret: %w", err)
		}
		secret = strings.TrimSpace(string(bytes))
	}
	if secret == "" {
		return errors.New("signing secret is required")
	}

	token, err := jwt.GenerateToken(*operator, *role, secret, *ttl)
	if err != nil {
		return err
	}
	if !*save {
		fmt.Println(token)
		return nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.OperatorToken = token
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("token saved")
	return nil
}

func loadConfig() (config.CLIConfig, error) {
	path, err := config.CLIConfigPath()
	if err != nil {
		return config.CLIConfig{}, err
	}
	return config.LoadCLIConfig(path)
}

func saveConfig(cfg config.CLIConfig) error {
	path, err := config.CLIConfigPath()
	if err != nil {
		return err
	}
	return config.SaveCLIConfig(path, cfg)
}

func pick(flagValue, fallback string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	return strings.TrimSpace(fallback)
}

func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	width, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return width
}

func printUsage() {
	fmt.Printf("netwatch CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	netwatch stats [--api http://localhost:5000] [--limit N]
	netwatch watch [--api URL] [--interval 2s] [--limit N]
	netwatch block <address> [--dashboard URL | --api URL] [--token T]
	netwatch unblock <address> [--dashboard URL | --api URL] [--token T]
	netwatch token --operator <name> [--role operator] [--ttl 12h] [--secret S] [--save]
	netwatch version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
