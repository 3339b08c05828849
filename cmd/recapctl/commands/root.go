// Package commands implements the recapctl commands.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/phrazzld/recap-api/internal/api"
	"github.com/phrazzld/recap-api/internal/client"
	"github.com/phrazzld/recap-api/internal/config"
)

// CLI is the recapctl command tree.
type CLI struct {
	rootCmd *cobra.Command
	stdin   io.Reader

	configPath string
	server     string
	verbose    bool
}

// New creates the command tree.
func New() *CLI {
	rootCmd := &cobra.Command{
		Use:           "recapctl",
		Short:         "Submit and track recap generation jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	c := &CLI{rootCmd: rootCmd}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "Config file (defaults to ./config.yaml if present)")
	flags.StringVarP(&c.server, "server", "s", "", "Server base URL (overrides client.base_url)")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "Log client diagnostics to stderr")

	rootCmd.AddCommand(c.newSubmitCmd())
	rootCmd.AddCommand(c.newStatusCmd())
	rootCmd.AddCommand(c.newWaitCmd())
	rootCmd.AddCommand(c.newDeleteCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetIO sets the input, output, and error streams.
func (c *CLI) SetIO(in io.Reader, out, errOut io.Writer) {
	c.stdin = in
	c.rootCmd.SetIn(in)
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(errOut)
}

// connect builds a client from config, with --server taking precedence.
func (c *CLI) connect(cmd *cobra.Command) (*client.Client, *config.ClientConfig, error) {
	cfg, err := config.LoadClient(c.configPath)
	if err != nil {
		return nil, nil, err
	}
	if c.server != "" {
		cfg.BaseURL = c.server
	}

	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	cl, err := client.New(cfg.BaseURL, client.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}
	return cl, cfg, nil
}

// pollFlags registers --interval and --timeout with the config values as
// fallbacks.
func pollFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("interval", 0, "Time between status checks (defaults to client.poll_interval)")
	cmd.Flags().Duration("timeout", 0, "Give up after this long (defaults to client.poll_timeout)")
}

func (c *CLI) wait(cmd *cobra.Command, cl *client.Client, cfg *config.ClientConfig, id string) error {
	interval, _ := cmd.Flags().GetDuration("interval")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if interval <= 0 {
		interval = cfg.PollInterval
	}
	if timeout <= 0 {
		timeout = cfg.PollTimeout
	}

	errOut := cmd.ErrOrStderr()
	result, err := cl.PollUntilDone(cmd.Context(), id, client.PollOptions{
		Interval: interval,
		Timeout:  timeout,
		OnUpdate: func(job *api.JobResponse) {
			_, _ = fmt.Fprintf(errOut, "%s  %-10s %-15s %s\n",
				time.Now().Format(time.TimeOnly), job.Status, job.Phase, job.PhaseMessage)
		},
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
