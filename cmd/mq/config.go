package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/marquee/internal/config"
	"golang.org/x/term"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(newConfigCheckCmd())
	return cmd
}

func newConfigCheckCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and summarize what it enables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigCheck(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Marquee config file")
	return cmd
}

func runConfigCheck(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	mark := newMarker(out)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(out, "%s %s\n", mark.bad("✗"), configPath)
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Fprintf(out, "  %s\n", line)
		}
		return fmt.Errorf("config check failed")
	}

	fmt.Fprintf(out, "%s %s is valid\n", mark.good("✓"), configPath)
	fmt.Fprintf(out, "  storage:   %s\n", storageSummary(cfg))
	fmt.Fprintf(out, "  radarr:    %s\n", arrSummary(cfg.Radarr))
	fmt.Fprintf(out, "  sonarr:    %s\n", arrSummary(cfg.Sonarr.ArrConfig))
	if cfg.Sonarr.AnimeRootFolder != "" {
		fmt.Fprintf(out, "  anime:     %s\n", cfg.Sonarr.AnimeRootFolder)
	}
	fmt.Fprintf(out, "  parser:    %s\n", cfg.Parser.Kind)
	fmt.Fprintf(out, "  platforms: %s\n", platformSummary(cfg.Platforms))
	fmt.Fprintf(out, "  quota:     %s\n", quotaSummary(cfg.Quota))
	fmt.Fprintf(out, "  users:     %d\n", len(cfg.Users))

	if !cfg.Radarr.Configured() && !cfg.Sonarr.Configured() {
		fmt.Fprintf(out, "%s no library manager configured; searches will fail\n", mark.warn("!"))
	}
	if platformSummary(cfg.Platforms) == "none" {
		fmt.Fprintf(out, "%s no chat platform enabled; only /api/messages will accept requests\n", mark.warn("!"))
	}
	if len(cfg.Users) == 0 {
		fmt.Fprintf(out, "%s no users configured; every message will be refused\n", mark.warn("!"))
	}
	return nil
}

func storageSummary(cfg *config.Config) string {
	switch cfg.Storage.Driver {
	case "sqlite":
		return "sqlite " + cfg.Storage.Path
	case "mysql":
		m := cfg.Storage.MySQL
		return fmt.Sprintf("mysql %s@%s:%d/%s", m.User, m.Host, m.Port, m.Database)
	}
	return "json " + cfg.DataDir
}

func arrSummary(a config.ArrConfig) string {
	if !a.Configured() {
		return "not configured"
	}
	return fmt.Sprintf("%s (profile %d, root %s)", a.URL, a.QualityProfileID, a.RootFolder)
}

func platformSummary(p config.PlatformsConfig) string {
	var on []string
	if p.SMS.Enabled {
		on = append(on, "sms")
	}
	if p.Discord.Enabled {
		on = append(on, "discord")
	}
	if p.Slack.Enabled {
		on = append(on, "slack")
	}
	if p.Telegram.Enabled {
		on = append(on, "telegram")
	}
	if len(on) == 0 {
		return "none"
	}
	return strings.Join(on, ", ")
}

func quotaSummary(q config.QuotaConfig) string {
	limit := func(n int) string {
		if n == 0 {
			return "unlimited"
		}
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s, movies %s, tv %s", q.Period, limit(q.MovieLimit), limit(q.TVLimit))
}

// marker colours status glyphs when writing to a terminal.
type marker struct{ color bool }

func newMarker(w io.Writer) marker {
	f, ok := w.(*os.File)
	return marker{color: ok && term.IsTerminal(int(f.Fd()))}
}

func (m marker) paint(code, s string) string {
	if !m.color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func (m marker) good(s string) string { return m.paint("32", s) }
func (m marker) bad(s string) string  { return m.paint("31", s) }
func (m marker) warn(s string) string { return m.paint("33", s) }
