package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"task-tracker/tasks-service/models"
	"task-tracker/tasks-service/utils"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTokenCommand(envFile *string) *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing",
		Long: `Token signs an access token with JWT_SECRET for the given user and role.
Tokens are normally issued by the users service; this command exists for local runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Only JWT_SECRET is needed here, so the full config is not validated.
			if *envFile != "" {
				if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("failed to load %s: %w", *envFile, err)
				}
			}
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return errors.New("JWT_SECRET is required")
			}

			id := primitive.NewObjectID()
			if userID != "" {
				parsed, err := primitive.ObjectIDFromHex(userID)
				if err != nil {
					return fmt.Errorf("--user must be a 24 character hex id: %w", err)
				}
				id = parsed
			}
			r, err := models.ParseRole(role)
			if err != nil {
				return err
			}

			token, err := utils.NewTokenManager(secret, serviceName).GenerateToken(id, r, ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (hex); a new id is generated when empty")
	cmd.Flags().StringVar(&role, "role", string(models.RoleUser), "user or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
