package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/suara/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token [widget-id]",
	Short: "Issue a widget token signed with JWT_SECRET",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

var tokenTTL time.Duration

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", auth.DefaultWidgetTokenTTL, "Token lifetime")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(zap.NewNop())
	if err != nil {
		return err
	}
	validator, err := auth.NewValidator(cfg.JWTSecret)
	if err != nil {
		return err
	}

	token, err := validator.GenerateWidgetToken(args[0], tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
