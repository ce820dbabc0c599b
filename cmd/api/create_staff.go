package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/persistence"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	"github.com/spec-kit/ticket-tracker/internal/service"
)

var staffFlags struct {
	username string
	email    string
	password string
}

var createStaffCmd = &cobra.Command{
	Use:   "create-staff",
	Short: "Create a staff account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		if !pg.Enabled() {
			return errors.New("POSTGRES_DSN is required")
		}

		authService := service.NewAuthService(*cfg, service.AuthDependencies{
			UserRepo: repository.NewUserRepository(pg.PoolHandle()),
			Logger:   logger,
		})
		user, err := authService.CreateStaff(cmd.Context(), staffFlags.username, staffFlags.email, staffFlags.password)
		if err != nil {
			return err
		}
		logger.Info("staff account created", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
		return nil
	},
}

func init() {
	createStaffCmd.Flags().StringVar(&staffFlags.username, "username", "", "staff username")
	createStaffCmd.Flags().StringVar(&staffFlags.email, "email", "", "staff email")
	createStaffCmd.Flags().StringVar(&staffFlags.password, "password", "", "staff password")
	_ = createStaffCmd.MarkFlagRequired("username")
	_ = createStaffCmd.MarkFlagRequired("password")
}
