package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jmerrifield20/LinkHub/pkg/client"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	cfgFile   string
	insecure  bool
	session   string
	timeout   time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "linkhub",
	Short: "LinkHub CLI",
	Long: `linkhub is the command-line interface for a LinkHub server.

It converts display names to page slugs, prints share URLs and fetches
public link pages.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.linkhub")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("linkhub")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if session == "" {
			session = viper.GetString("session_token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.linkhub/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "LinkHub server URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&session, "session", "", "Session handle (linkhub_session cookie) for calls that need sign-in")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification (development only)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(slugifyCmd)
	rootCmd.AddCommand(shareURLCmd)
	rootCmd.AddCommand(pageCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	opts := []client.Option{client.WithUserAgent("linkhub-cli/" + version)}
	if insecure {
		opts = append(opts, client.WithInsecureSkipVerify())
	}
	if session != "" {
		opts = append(opts, client.WithSession(session))
	}
	return client.New(serverURL, opts...)
}

func cmdContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

// ── slugify ──────────────────────────────────────────────────────────────────

var slugifyCmd = &cobra.Command{
	Use:   "slugify <name> [name] ...",
	Short: "Print the page slug for one or more display names",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range args {
			fmt.Fprintln(cmd.OutOrStdout(), client.Slugify(name))
		}
	},
}

// ── share-url ────────────────────────────────────────────────────────────────

var shareURLCmd = &cobra.Command{
	Use:   "share-url <username>",
	Short: "Print the public page URL for a username",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), c.PageURL(args[0]))
		return nil
	},
}

// ── page ─────────────────────────────────────────────────────────────────────

var pageFormat string

var pageCmd = &cobra.Command{
	Use:   "page <username>",
	Short: "Fetch a public link page",
	Long: `page fetches the public page for a username and prints its profile
and links in order:

  linkhub page ada-lovelace
  linkhub page "Ada Lovelace" --format yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runPage,
}

func init() {
	pageCmd.Flags().StringVar(&pageFormat, "format", "text", "Output format: text, json or yaml")
}

func runPage(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := cmdContext(cmd)
	defer cancel()

	page, err := c.GetPage(ctx, args[0])
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return fmt.Errorf("no page for %q", client.Slugify(args[0]))
		}
		return err
	}
	return printPage(cmd.OutOrStdout(), page, pageFormat)
}

func printPage(w io.Writer, page *client.Page, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(page)
	case "text", "":
		fmt.Fprintf(w, "@%s\n", page.Profile.Username)
		if page.Profile.Bio != "" {
			fmt.Fprintf(w, "%s\n", page.Profile.Bio)
		}
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tTITLE\tURL")
		for i, l := range page.Links {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, l.Title, l.URL)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

// ── suggest ──────────────────────────────────────────────────────────────────

var suggestCmd = &cobra.Command{
	Use:   "suggest <url>",
	Short: "Ask the server to suggest a title for a link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()

		title, err := c.SuggestTitle(ctx, args[0])
		if errors.Is(err, client.ErrUnauthorized) {
			return errors.New("title suggestion needs a signed-in session: pass --session or set session_token")
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), title)
		return nil
	},
}

// ── status ───────────────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server readiness and dependency health",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()

		r, err := c.Readiness(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %s\n", serverURL, r.Status)
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, d := range r.Dependencies {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", d.Name, d.Status, d.LastError)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if !r.Ready() {
			return errors.New("server is not ready")
		}
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the linkhub CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "linkhub %s\n", version)
	},
}
