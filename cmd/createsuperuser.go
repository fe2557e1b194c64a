/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/expense-track/apiserver/config"
	"github.com/expense-track/apiserver/internal/db"
	"github.com/expense-track/apiserver/internal/store"
	"github.com/expense-track/apiserver/types"
)

// createsuperuserCmd represents the createsuperuser command.
var createsuperuserCmd = &cobra.Command{
	Use:   "createsuperuser",
	Short: "Create a superuser account",
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		email, _ := cmd.Flags().GetString("email")
		if strings.TrimSpace(username) == "" || strings.TrimSpace(email) == "" {
			return errors.New("--username and --email are required")
		}

		fmt.Fprint(os.Stdout, "Password: ")
		password, err := readPassword(os.Stdin)
		fmt.Fprintln(os.Stdout)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		if strings.TrimSpace(password) == "" {
			return errors.New("password cannot be empty")
		}

		cfg := config.LoadConfig()
		dbConn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		users := store.NewUserRepository(dbConn)
		if _, err := users.GetByUsername(cmd.Context(), username); err == nil {
			return fmt.Errorf("user %s already exists", username)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		created, err := users.Create(cmd.Context(), types.User{
			Username:     username,
			Email:        email,
			PasswordHash: string(hashed),
			IsStaff:      true,
			IsSuperuser:  true,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Superuser %s created with ID %d\n", created.Username, created.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createsuperuserCmd)

	createsuperuserCmd.Flags().String("username", "", "Username for the new superuser")
	createsuperuserCmd.Flags().String("email", "", "Email for the new superuser")
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// Fallback for non-terminal input (pipes, CI).
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
