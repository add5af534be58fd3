package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/carehub/pharmacy-portal/internal/listing"
	"github.com/carehub/pharmacy-portal/internal/platform/auth"
	"github.com/carehub/pharmacy-portal/internal/platform/db"
	"github.com/carehub/pharmacy-portal/internal/platform/tokenstore"
)

// ---------------------------------------------------------------------------
// Output helpers
// ---------------------------------------------------------------------------

// outputFormat is "table", "json" or "yaml". --json is shorthand for
// --format json.
func outputFormat(cmd *cobra.Command) string {
	if v, _ := cmd.Flags().GetBool("json"); v {
		return "json"
	}
	f, _ := cmd.Flags().GetString("format")
	switch f = strings.ToLower(f); f {
	case "json", "yaml":
		return f
	}
	return "table"
}

// wantData reports whether results should be printed as a document instead
// of table rows.
func wantData(cmd *cobra.Command) bool {
	return outputFormat(cmd) != "table"
}

func printData(cmd *cobra.Command, w io.Writer, v any) error {
	if outputFormat(cmd) == "yaml" {
		return printYAML(w, v)
	}
	return printJSON(w, v)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printYAML goes through JSON first so keys and decimal formatting match
// the JSON output.
func printYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// addListFlags registers the paging and filter flags every list command
// shares.
func addListFlags(cmd *cobra.Command) {
	cmd.Flags().Int("page", 1, "Page to fetch")
	cmd.Flags().String("search", "", "Search term")
	cmd.Flags().String("status", "", "Status filter")
}

func listOptions(cmd *cobra.Command, a *app) []listing.Option {
	page, _ := cmd.Flags().GetInt("page")
	search, _ := cmd.Flags().GetString("search")
	status, _ := cmd.Flags().GetString("status")
	return []listing.Option{
		listing.WithPage(page),
		listing.WithSearch(search),
		listing.WithStatus(status),
		listing.WithLogger(a.logger),
	}
}

// runList loads one page through a list controller and prints it. A failed
// load still prints the (empty) state before returning the error.
func runList[T any](ctx context.Context, cmd *cobra.Command, fetch listing.Fetcher[T], opts []listing.Option, row func(io.Writer, T)) error {
	ctrl := listing.NewController(fetch, opts...)
	loadErr := ctrl.Load(ctx)
	st := ctrl.State()
	out := cmd.OutOrStdout()

	if wantData(cmd) {
		if err := printData(cmd, out, st); err != nil {
			return err
		}
		return loadErr
	}
	printState(out, st, row)
	return loadErr
}

func printState[T any](out io.Writer, st listing.State[T], row func(io.Writer, T)) {
	switch st.Empty {
	case listing.EmptyNoMatch:
		fmt.Fprintln(out, "No results match the current filters.")
	case listing.EmptyNoData:
		fmt.Fprintln(out, "Nothing here yet.")
	}
	for _, it := range st.Items {
		row(out, it)
	}
	fmt.Fprintf(out, "-- page %d of %d, %d item(s)\n", st.CurrentPage, st.TotalPages, st.TotalItems)
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// ---------------------------------------------------------------------------
// Session commands
// ---------------------------------------------------------------------------

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login [token]",
		Short: "Store the pharmacy session token",
		Long:  "Store a bearer token issued by the marketplace. With no argument the token is read from stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCLI(cmd, func(ctx context.Context, a *app, _ *services) error {
				token := ""
				if len(args) == 1 {
					token = args[0]
				} else {
					line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
					if err != nil && !errors.Is(err, io.EOF) {
						return fmt.Errorf("read token: %w", err)
					}
					token = line
				}
				token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))

				claims, err := checkToken(token, a.cfg.Role, time.Now())
				if err != nil {
					return err
				}
				if err := a.tokens.Set(ctx, tokenstore.Key(a.cfg.Role), token); err != nil {
					return fmt.Errorf("store token: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (pharmacy %s), session ends %s\n",
					orDash(firstNonEmpty(claims.Name, claims.Email)), orDash(claims.PharmacyRef()), fmtTime(claims.ExpiresAtTime()))
				return nil
			})
		},
	}
	return cmd
}

// checkToken decodes a session token and rejects expired tokens and tokens
// issued for another role.
func checkToken(token, role string, now time.Time) (*auth.Claims, error) {
	claims, err := auth.ParseUnverified(token)
	if err != nil {
		return nil, err
	}
	if claims.Expired(now) {
		return nil, fmt.Errorf("token expired at %s", fmtTime(claims.ExpiresAtTime()))
	}
	if role != "" && claims.Role != "" && !strings.EqualFold(claims.Role, role) {
		return nil, fmt.Errorf("token is for role %q, not %q", claims.Role, role)
	}
	return claims, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCLI(cmd, func(ctx context.Context, a *app, _ *services) error {
				if err := a.tokens.Delete(ctx, tokenstore.Key(a.cfg.Role)); err != nil {
					return fmt.Errorf("delete token: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
				return nil
			})
		},
	}
}

func whoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in pharmacy",
		RunE: func(cmd *cobra.Command, args []string) error {
			remote, _ := cmd.Flags().GetBool("remote")
			return runCLI(cmd, func(ctx context.Context, a *app, s *services) error {
				token, err := a.tokens.Get(ctx, tokenstore.Key(a.cfg.Role))
				if errors.Is(err, tokenstore.ErrNotFound) {
					return errors.New("not signed in; run pharmacy-portal login")
				}
				if err != nil {
					return err
				}
				claims, err := auth.ParseUnverified(token)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				now := time.Now()
				if wantData(cmd) && !remote {
					return printData(cmd, out, claims)
				}
				fmt.Fprintf(out, "User:      %s\n", orDash(firstNonEmpty(claims.Name, claims.Email)))
				fmt.Fprintf(out, "Role:      %s\n", orDash(claims.Role))
				fmt.Fprintf(out, "Pharmacy:  %s\n", orDash(claims.PharmacyRef()))
				fmt.Fprintf(out, "Backend:   %s\n", a.api.BaseURL())
				switch {
				case claims.Expired(now):
					fmt.Fprintf(out, "Session:   expired %s\n", fmtTime(claims.ExpiresAtTime()))
				case claims.ExpiresWithin(now, time.Hour):
					fmt.Fprintf(out, "Session:   ends soon (%s)\n", fmtTime(claims.ExpiresAtTime()))
				default:
					fmt.Fprintf(out, "Session:   ends %s\n", fmtTime(claims.ExpiresAtTime()))
				}
				if !remote {
					return nil
				}
				p, err := s.profiles.Get(ctx)
				if err != nil {
					return err
				}
				if wantData(cmd) {
					return printData(cmd, out, p)
				}
				fmt.Fprintf(out, "Name:      %s\n", p.Name)
				fmt.Fprintf(out, "License:   %s\n", orDash(p.LicenseNumber))
				fmt.Fprintf(out, "Address:   %s\n", orDash(p.Address))
				return nil
			})
		},
	}
	cmd.Flags().Bool("remote", false, "Also fetch the pharmacy profile from the backend")
	return cmd
}

// ---------------------------------------------------------------------------
// Migrations
// ---------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the portal's own tables (tokens, notification log)",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})
	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrations")
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns}, logger)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, db.NewMigrator(pool, db.Migrations()))
}
