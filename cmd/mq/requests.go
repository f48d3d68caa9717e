package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/zulandar/marquee/internal/app"
	"github.com/zulandar/marquee/internal/config"
	"github.com/zulandar/marquee/internal/identity"
	"github.com/zulandar/marquee/internal/models"
)

func newRequestsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "requests",
		Aliases: []string{"req"},
		Short:   "Inspect and maintain the request ledger",
	}

	cmd.AddCommand(newRequestsListCmd())
	cmd.AddCommand(newRequestsPruneCmd())
	return cmd
}

func newRequestsListCmd() *cobra.Command {
	var (
		configPath string
		user       string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded requests, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequestsList(cmd, configPath, user)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Marquee config file")
	cmd.Flags().StringVarP(&user, "user", "u", "", "only show requests by this user id or platform identity (e.g. sms:+15551234567)")
	return cmd
}

func runRequestsList(cmd *cobra.Command, configPath, user string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	stores, err := app.OpenStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	var reqs []*models.MediaRequest
	if user == "" {
		reqs = stores.Ledger.All()
	} else {
		ids, err := requesterIDs(stores, user)
		if err != nil {
			return err
		}
		for _, id := range ids {
			reqs = append(reqs, stores.Ledger.FindByRequester(id)...)
		}
	}
	if len(reqs) == 0 {
		fmt.Fprintln(out, "No requests found.")
		return nil
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].RequestedAt.After(reqs[j].RequestedAt) })

	rows := make([][]string, 0, len(reqs))
	for _, r := range reqs {
		rows = append(rows, []string{
			shortID(r.ID),
			requestTitle(r),
			r.MediaType.Label(),
			string(r.Status),
			r.RequestedBy,
			r.RequestedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"ID", "Title", "Type", "Status", "Requested By", "Requested At"}, rows))
	fmt.Fprintf(out, "%d request(s)\n", len(reqs))
	return nil
}

// requesterIDs resolves a --user value: a platform identity is used as is,
// anything else is looked up as a user id and expanded to its identities.
func requesterIDs(stores *app.Stores, user string) ([]identity.ID, error) {
	if _, err := identity.Parse(user); err == nil {
		return []identity.ID{identity.ID(user)}, nil
	}
	u := stores.Users.Get(user)
	if u == nil {
		return nil, fmt.Errorf("unknown user %q", user)
	}
	var ids []identity.ID
	for platform, raw := range u.Identities {
		id, err := identity.Build(identity.Platform(platform), raw)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func requestTitle(r *models.MediaRequest) string {
	if r.Year != nil && *r.Year > 0 {
		return r.Title + " (" + strconv.Itoa(*r.Year) + ")"
	}
	return r.Title
}

func newRequestsPruneCmd() *cobra.Command {
	var (
		configPath string
		days       int
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove completed and failed requests older than the retention window",
		Long:  "Removes terminal requests older than --days (default: requests.retention_days). Refuses to run while mq serve holds the data directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequestsPrune(cmd, configPath, days)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Marquee config file")
	cmd.Flags().IntVar(&days, "days", 0, "retention window in days (0 uses the configured value)")
	return cmd
}

func runRequestsPrune(cmd *cobra.Command, configPath string, days int) error {
	out := cmd.OutOrStdout()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if days < 0 {
		return fmt.Errorf("--days must not be negative")
	}
	if days == 0 {
		days = cfg.Requests.RetentionDays
	}

	lock, err := app.Lock(cfg.DataDir)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	stores, err := app.OpenStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	n, err := stores.Ledger.Prune(days)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Pruned %d request(s) older than %d days; %d remain\n", n, days, stores.Ledger.Len())
	return nil
}
