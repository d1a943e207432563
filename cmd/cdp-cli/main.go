package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentuity/go-cdp/cdp"
	"github.com/agentuity/go-cdp/cdp/transport/ws"
	"github.com/agentuity/go-cdp/cdp/types"
	"github.com/agentuity/go-cdp/logger"
	"github.com/spf13/cobra"
	str2duration "github.com/xhit/go-str2duration/v2"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

var (
	flagURL     string
	flagConfig  string
	flagTimeout string
	flagVerbose bool
)

type cliConfig struct {
	URL      string `yaml:"url"`
	LogLevel string `yaml:"log_level"`
}

func loadConfig() (*cliConfig, error) {
	var config cliConfig
	if flagConfig == "" {
		return &config, nil
	}
	buf, err := os.ReadFile(flagConfig)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(buf, &config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", flagConfig, err)
	}
	return &config, nil
}

func newLogger(config *cliConfig) logger.Logger {
	if flagVerbose {
		return logger.NewConsoleLogger(logger.LevelTrace)
	}
	switch config.LogLevel {
	case "trace":
		return logger.NewConsoleLogger(logger.LevelTrace)
	case "debug":
		return logger.NewConsoleLogger(logger.LevelDebug)
	case "":
		return logger.NewConsoleLogger()
	default:
		return logger.NewConsoleLogger(logger.LevelInfo)
	}
}

func endpointURL(config *cliConfig) string {
	if flagURL != "" {
		return flagURL
	}
	if config.URL != "" {
		return config.URL
	}
	return "ws://127.0.0.1:9222/devtools/browser"
}

func timeout() (time.Duration, error) {
	if flagTimeout == "" || flagTimeout == "0" {
		return 0, nil
	}
	return str2duration.ParseDuration(flagTimeout)
}

func connect(ctx context.Context, log logger.Logger, url string) (*cdp.Connection, error) {
	tr, err := ws.Dial(url, log)
	if err != nil {
		return nil, err
	}
	conn := cdp.NewConnection(tr, log)
	if err := tr.Start(ctx); err != nil {
		tr.Close()
		return nil, err
	}
	return conn, nil
}

func commandContext() (context.Context, context.CancelFunc, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	d, err := timeout()
	if err != nil {
		stop()
		return nil, nil, fmt.Errorf("invalid --timeout: %w", err)
	}
	if d == 0 {
		return ctx, stop, nil
	}
	tctx, cancel := context.WithTimeout(ctx, d)
	return tctx, func() { cancel(); stop() }, nil
}

func printJSON(raw json.RawMessage) {
	var pretty interface{}
	if err := json.Unmarshal(raw, &pretty); err != nil {
		fmt.Println(string(raw))
		return
	}
	buf, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(buf))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the browser's version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, err := commandContext()
			if err != nil {
				return err
			}
			defer cancel()
			config, err := loadConfig()
			if err != nil {
				return err
			}
			conn, err := connect(ctx, newLogger(config), endpointURL(config))
			if err != nil {
				return err
			}
			defer conn.Close()
			result, err := conn.RootSession().Send(ctx, "Browser.getVersion", nil)
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
}

func newTargetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List the browser's attachable targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, err := commandContext()
			if err != nil {
				return err
			}
			defer cancel()
			config, err := loadConfig()
			if err != nil {
				return err
			}
			conn, err := connect(ctx, newLogger(config), endpointURL(config))
			if err != nil {
				return err
			}
			defer conn.Close()
			result, err := conn.RootSession().Send(ctx, "Target.getTargets", nil)
			if err != nil {
				return err
			}
			var reply struct {
				TargetInfos []types.TargetInfo `json:"targetInfos"`
			}
			if err := json.Unmarshal(result, &reply); err != nil {
				return err
			}
			for _, info := range reply.TargetInfos {
				fmt.Printf("%-12s %-40s %s\n", info.Type, info.TargetID, info.URL)
			}
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	var targetID string
	var events []string
	var enable []string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Attach to a target and stream protocol events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(events) == 0 {
				return fmt.Errorf("at least one --event is required")
			}
			ctx, cancel, err := commandContext()
			if err != nil {
				return err
			}
			defer cancel()
			config, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(config)
			conn, err := connect(ctx, log, endpointURL(config))
			if err != nil {
				return err
			}
			defer conn.Close()

			var session *cdp.Session
			if targetID != "" {
				session, err = conn.CreateSession(ctx, types.TargetInfo{TargetID: targetID})
			} else {
				session, err = conn.CreateBrowserSession(ctx)
			}
			if err != nil {
				return err
			}
			for _, domain := range enable {
				session.SendMayFail(ctx, domain+".enable", nil)
			}
			for _, event := range events {
				event := event
				session.On(event, func(params json.RawMessage) {
					fmt.Printf("%s %s\n", event, string(params))
				})
			}

			disconnected := make(chan struct{})
			conn.OnDisconnect(func() { close(disconnected) })

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				<-gctx.Done()
				conn.Close()
				return nil
			})
			g.Go(func() error {
				<-disconnected
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&targetID, "target", "", "target id to attach to (default: the browser target)")
	cmd.Flags().StringArrayVar(&events, "event", nil, "protocol event to print (repeatable)")
	cmd.Flags().StringArrayVar(&enable, "enable", nil, "protocol domain to enable before watching (repeatable)")
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:           "cdp-cli",
		Short:         "Interact with a browser's DevTools protocol endpoint",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagURL, "url", "", "browser websocket debugging url")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a yaml config file")
	root.PersistentFlags().StringVar(&flagTimeout, "timeout", "30s", "command timeout (0 or empty for none, supports 1h2m3s style)")
	root.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "enable protocol frame tracing")
	root.AddCommand(newVersionCmd(), newTargetsCmd(), newWatchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
