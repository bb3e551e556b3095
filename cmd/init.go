package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"syscall"

	"github.com/dezerx-spartan/Spartan-Bot/spartanbot"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gorm.io/gorm"
)

// passwordReader is a function type for reading passwords. It's really only
// here to make testing easier.
type passwordReader func() ([]byte, error)

var customPasswordReader passwordReader

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the database and set status API credentials",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		if cfg.DatabaseType == "" {
			log.Fatal("Environment variable SB_DATABASE_TYPE not set (must be one of: sqlite, postgres)")
		}
		if cfg.Database == "" {
			log.Fatal(
				"Environment variable SB_DATABASE not set (must be a valid " +
					"database connection string or sqlite file path)",
			)
		}
		// Run database migrations
		db, err := spartanbot.CreateDB(ctx, cfg.DatabaseType, cfg.Database)
		if err != nil {
			log.Fatalf("Error creating database: %v", err)
		}

		out := cmd.OutOrStdout()

		var credential spartanbot.APICredential
		rv := db.Last(&credential)
		if rv.Error != nil && !errors.Is(rv.Error, gorm.ErrRecordNotFound) {
			log.Fatalf("Error retrieving API credential: %s", rv.Error.Error())
		}

		if credential.Username == "" || credential.PasswordHash == "" {
			fmt.Fprintln(out, "API credentials are not set. Let's set them up.")

			username, password := promptCredentials(out)

			hashedPassword, err := spartanbot.HashPassword(password)
			if err != nil {
				log.Fatalf("Error hashing password: %v", err)
			}

			credential.Username = username
			credential.PasswordHash = hashedPassword
			if err := db.Save(&credential).Error; err != nil {
				log.Fatalf("Error saving API credentials: %v", err)
			}

			fmt.Fprintln(out, "API credentials set successfully.")
		} else {
			fmt.Fprintln(out, "API credentials are already set.")
		}

		fmt.Fprintln(
			out,
			"Initialization complete. You can now start the bot with the 'run' subcommand.",
		)
	},
}

func promptCredentials(out io.Writer) (string, string) {
	reader := bufio.NewReader(os.Stdin)

	fmt.Fprint(out, "Enter API username: ")
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)

	if customPasswordReader == nil {
		customPasswordReader = func() ([]byte, error) {
			return term.ReadPassword(int(syscall.Stdin))
		}
	}
	var password string
	for {
		fmt.Fprint(out, "Enter API password: ")
		passwordBytes, _ := customPasswordReader()
		password = string(passwordBytes)
		fmt.Fprintln(out)

		fmt.Fprint(out, "Confirm API password: ")
		confirmPasswordBytes, _ := customPasswordReader()
		confirmPassword := string(confirmPasswordBytes)
		fmt.Fprintln(out)

		if password == confirmPassword {
			break
		}
		fmt.Fprintln(out, "Passwords do not match. Please try again.")
	}
	return username, password
}

func init() {
	rootCmd.AddCommand(initCmd)
}
