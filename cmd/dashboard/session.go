package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"aiworker/dashboard-go/internal/app"
	"aiworker/dashboard-go/internal/forms"
)

var (
	loginEmail    string
	loginPassword string

	regName     string
	regEmail    string
	regPassword string
	regConfirm  string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := app.New(cmd.Context(), cfg, logger)
		defer a.Close()

		pw, err := passwordOrPrompt(cmd, loginPassword, "Password: ")
		if err != nil {
			return err
		}
		f := &forms.LoginForm{Email: loginEmail, Password: pw}
		user, err := f.Submit(cmd.Context(), a.Client, a.Session, logger)
		if err != nil {
			return errors.New(f.Error)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s). Token stored in %s.\n",
			firstNonEmpty(user.Name, user.Email), user.Email, a.Session.StorageBackend())
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account on the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := app.New(cmd.Context(), cfg, logger)
		defer a.Close()

		pw, err := passwordOrPrompt(cmd, regPassword, "Password: ")
		if err != nil {
			return err
		}
		confirm := regConfirm
		if confirm == "" {
			if confirm, err = passwordOrPrompt(cmd, "", "Confirm password: "); err != nil {
				return err
			}
		}
		f := &forms.RegisterForm{Name: regName, Email: regEmail, Password: pw, ConfirmPassword: confirm}
		if _, err := a.Register(cmd.Context(), f); err != nil {
			return errors.New(f.Error)
		}
		fmt.Fprintln(cmd.OutOrStdout(), f.Notice)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := app.New(cmd.Context(), cfg, logger)
		defer a.Close()

		a.Session.Restore(cmd.Context())
		if err := a.Logout(cmd.Context()); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show whether a session token is stored",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := app.New(cmd.Context(), cfg, logger)
		defer a.Close()

		out := cmd.OutOrStdout()
		if !a.Session.Restore(cmd.Context()) {
			fmt.Fprintln(out, "Not logged in.")
			return nil
		}
		fmt.Fprintf(out, "Logged in (token in %s storage, backend %s).\n",
			a.Session.StorageBackend(), a.Client.BaseURL())
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Account password (prompted when empty)")

	registerCmd.Flags().StringVarP(&regName, "name", "n", "", "Display name")
	registerCmd.Flags().StringVarP(&regEmail, "email", "e", "", "Account email")
	registerCmd.Flags().StringVarP(&regPassword, "password", "p", "", "Password (prompted when empty)")
	registerCmd.Flags().StringVar(&regConfirm, "confirm", "", "Password confirmation (prompted when empty)")
}

var stdin *bufio.Reader

// passwordOrPrompt returns value, or reads one line from stdin.
func passwordOrPrompt(cmd *cobra.Command, value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	if stdin == nil {
		stdin = bufio.NewReader(cmd.InOrStdin())
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	line, err := stdin.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
