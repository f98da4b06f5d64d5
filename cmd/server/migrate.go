package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/clinic-queue-booking/internal/config"
	"github.com/iliyamo/clinic-queue-booking/internal/database"
	"github.com/iliyamo/clinic-queue-booking/internal/utils"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := database.NewMigrator(db).Up(cmd.Context())
			if err != nil {
				return err
			}
			log.Info().Int("applied", n).Msg("migrations up to date")
			return nil
		},
	}
}

// newTokenCmd mints an access token for a queue display screen or an
// operator, signed with JWT_SECRET.
func newTokenCmd() *cobra.Command {
	var (
		userID uint64
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tok, err := utils.NewAccessToken(cfg.JWTSecret, userID, role, ttl)
			if err != nil {
				return err
			}
			cmd.Println(tok.Token)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&userID, "user", 0, "user id (sub claim)")
	cmd.Flags().StringVar(&role, "role", "clinic_queue_admin", "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
