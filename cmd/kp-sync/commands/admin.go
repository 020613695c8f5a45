package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackchen1941/knowledge-platform-sub000/internal/api"
	"github.com/jackchen1941/knowledge-platform-sub000/internal/syncdb"
)

func openStore(cmd *cobra.Command) (*syncdb.DB, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		cfg := api.LoadConfig()
		dbPath = cfg.DBPath
	}
	store, err := syncdb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return store, nil
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage sync users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user account",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		if email == "" {
			return fmt.Errorf("--email is required")
		}

		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		user, err := store.CreateUser(email)
		if err != nil {
			return err
		}
		fmt.Printf("created user %s (%s)\n", user.Email, user.ID)
		return nil
	},
}

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage API keys",
}

var keyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")
		expiresDays, _ := cmd.Flags().GetInt("expires-days")
		if email == "" {
			return fmt.Errorf("--email is required")
		}
		if name == "" {
			return fmt.Errorf("--name is required")
		}

		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		user, err := store.GetUserByEmail(email)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user not found: %s", email)
		}

		var expiresAt *time.Time
		if expiresDays > 0 {
			t := time.Now().UTC().AddDate(0, 0, expiresDays)
			expiresAt = &t
		}

		plaintext, ak, err := store.GenerateAPIKey(user.ID, name, expiresAt)
		if err != nil {
			return err
		}

		fmt.Printf("created API key for %s\n", user.Email)
		fmt.Printf("  name: %s\n", ak.Name)
		fmt.Printf("  key:  %s\n", plaintext)
		fmt.Println("\nSave this key now -- it will not be shown again.")
		return nil
	},
}

func init() {
	userCreateCmd.Flags().String("email", "", "user email address")
	userCreateCmd.Flags().String("db", "", "path to sync.db (default: from SYNC_DB_PATH or ./data/sync.db)")
	userCmd.AddCommand(userCreateCmd)

	keyCreateCmd.Flags().String("email", "", "user email address")
	keyCreateCmd.Flags().String("name", "", "key name (e.g. laptop)")
	keyCreateCmd.Flags().Int("expires-days", 0, "days until the key expires (0 = never)")
	keyCreateCmd.Flags().String("db", "", "path to sync.db (default: from SYNC_DB_PATH or ./data/sync.db)")
	keyCmd.AddCommand(keyCreateCmd)
}
