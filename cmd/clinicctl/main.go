// Command clinicctl runs operator tasks against the clinic database: schema
// migrations and issuing staff access tokens for scripting and smoke tests.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/medflow/medflow-clinic/internal/clinic/repository"
	"github.com/medflow/medflow-clinic/internal/migrations"
	"github.com/medflow/medflow-clinic/pkg/auth"
	"github.com/medflow/medflow-clinic/pkg/config"
	"github.com/medflow/medflow-clinic/pkg/database"
	"github.com/medflow/medflow-clinic/pkg/logger"
	"github.com/spf13/cobra"
)

// configName shares the service's config file so both see the same database
const configName = "clinic-service"

func main() {
	rootCmd := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Clinic service operator tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func open() (*config.Config, *database.DB, *logger.Logger, error) {
	cfg, err := config.Load(configName)
	if err != nil {
		return nil, nil, nil, err
	}
	log := logger.New("clinicctl", cfg.Server.Environment)

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, db, log, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the clinic schema",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, log, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			runner, err := migrations.NewRunner(db.DB, log)
			if err != nil {
				return err
			}

			applied, err := runner.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			if len(applied) == 0 {
				fmt.Println("Schema is up to date.")
				return nil
			}
			fmt.Printf("Applied %d migration(s): %v\n", len(applied), applied)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, log, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			runner, err := migrations.NewRunner(db.DB, log)
			if err != nil {
				return err
			}

			statuses, err := runner.Status(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED AT")
			for _, s := range statuses {
				applied := "pending"
				if s.Applied && s.AppliedAt != nil {
					applied = s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%04d\t%s\t%s\n", s.Version, s.Name, applied)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(upCmd, statusCmd)
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a staff member",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, _ := cmd.Flags().GetString("tenant")
			email, _ := cmd.Flags().GetString("email")
			if tenantID == "" || email == "" {
				return fmt.Errorf("--tenant and --email are required")
			}

			cfg, db, _, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			staff, err := repository.NewStaffRepository(db).GetByEmail(ctx, tenantID, email)
			if err != nil {
				return err
			}

			info := &auth.StaffInfo{
				ID:          staff.ID,
				Email:       staff.Email,
				Name:        staff.FullName(),
				Role:        staff.Role,
				Permissions: staff.Permissions,
				TenantID:    staff.TenantID,
			}
			if staff.FacilityID != nil {
				info.FacilityID = *staff.FacilityID
			}

			token, err := auth.NewManager(&cfg.JWT).GenerateAccessToken(info)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(token)
		},
	}

	cmd.Flags().String("tenant", "", "Tenant ID the staff member belongs to")
	cmd.Flags().String("email", "", "Staff member email")
	return cmd
}
