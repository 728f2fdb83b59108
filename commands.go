package main

import (
	"fmt"

	"github.com/billbatista/fieldmiles/config"
	"github.com/billbatista/fieldmiles/day"
	"github.com/billbatista/fieldmiles/storage"
	"github.com/billbatista/fieldmiles/user"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the Postgres schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Storage.Driver != config.DriverPostgres {
			fmt.Println("bolt storage creates its buckets on open, nothing to migrate")
			return nil
		}

		db, err := storage.OpenPostgres(cmd.Context(), cfg.Storage.DSN)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := storage.Migrate(cmd.Context(), db); err != nil {
			return err
		}
		fmt.Println("✓ schema up to date")
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Re-run trip reconciliation for a surveyor's day",
	RunE: func(cmd *cobra.Command, args []string) error {
		surveyorFlag, _ := cmd.Flags().GetString("surveyor")
		dateFlag, _ := cmd.Flags().GetString("date")

		surveyorID, err := uuid.Parse(surveyorFlag)
		if err != nil {
			return fmt.Errorf("invalid --surveyor: %w", err)
		}
		d, err := day.Parse(dateFlag)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		b, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer b.close()

		_, ingestSvc, _, stop, err := services(b, cfg)
		if err != nil {
			return err
		}
		defer stop()

		t, err := ingestSvc.Retrigger(cmd.Context(), surveyorID, d)
		if err != nil {
			return err
		}
		fmt.Printf("✓ trip %s reconciled\n", t.ID)
		fmt.Printf("  Morning:  %s\n", t.MorningReading.Decimal.String())
		fmt.Printf("  Evening:  %s\n", t.EveningReading.Decimal.String())
		if t.ComputedDistance.Valid {
			fmt.Printf("  Computed: %s\n", t.ComputedDistance.Decimal.String())
		}
		if t.FinalDistance.Valid {
			fmt.Printf("  Final:    %s\n", t.FinalDistance.Decimal.String())
		}
		return nil
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		var reg user.Registration
		reg.Email, _ = cmd.Flags().GetString("email")
		reg.Password, _ = cmd.Flags().GetString("password")
		reg.Name, _ = cmd.Flags().GetString("name")
		reg.Phone, _ = cmd.Flags().GetString("phone")
		reg.Project, _ = cmd.Flags().GetString("project")
		reg.Location, _ = cmd.Flags().GetString("location")
		role, _ := cmd.Flags().GetString("role")
		reg.Role = user.Role(role)

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		b, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer b.close()

		u, err := b.users.Register(cmd.Context(), reg)
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s %s registered (%s)\n", u.Role, u.Email, u.ID)
		return nil
	},
}

func init() {
	reconcileCmd.Flags().String("surveyor", "", "surveyor id")
	reconcileCmd.Flags().String("date", "", "day to reconcile (YYYY-MM-DD)")
	reconcileCmd.MarkFlagRequired("surveyor")
	reconcileCmd.MarkFlagRequired("date")

	userAddCmd.Flags().String("email", "", "login email")
	userAddCmd.Flags().String("password", "", "initial password")
	userAddCmd.Flags().String("name", "", "display name")
	userAddCmd.Flags().String("phone", "", "phone number")
	userAddCmd.Flags().String("role", string(user.RoleSurveyor), "admin or surveyor")
	userAddCmd.Flags().String("project", "", "project assignment")
	userAddCmd.Flags().String("location", "", "base location")
	userAddCmd.MarkFlagRequired("email")
	userAddCmd.MarkFlagRequired("password")

	userCmd.AddCommand(userAddCmd)
}
