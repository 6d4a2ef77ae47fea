package main

import (
	"fmt"
	"log"

	"github.com/mohammad-safakhou/supportbot/config"
	"github.com/mohammad-safakhou/supportbot/internal/store"
	"github.com/spf13/cobra"
)

func migrateCMD() *cobra.Command {
	var direction string
	var steps int
	var cfgPath string

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if direction != "up" && direction != "down" {
				return fmt.Errorf("unknown direction: %s", direction)
			}
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			st, err := store.NewWithDSN(cmd.Context(), store.Dialect(cfg.Storage.Driver), cfg.Storage.DSN())
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(direction, steps); err != nil {
				return err
			}
			log.Printf("migrations %s applied (%s)", direction, st.Dialect())
			return nil
		},
	}
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	migrate.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")

	return migrate
}
