package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/marcus/tipbox/internal/catalogclient"
	"github.com/marcus/tipbox/internal/clientconfig"
	"github.com/marcus/tipbox/internal/favorites"
	"github.com/marcus/tipbox/internal/output"
)

const defaultPollInterval = 5 * time.Second

var authCmd = &cobra.Command{
	Use:     "auth",
	Short:   "Sign in to save favorites to your account",
	GroupID: "system",
}

func validateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("email required")
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return errors.New("not a valid email address")
	}
	return nil
}

func promptEmail() (string, error) {
	var email string
	err := huh.NewInput().
		Title("Email").
		Placeholder("you@example.com").
		Value(&email).
		Validate(validateEmail).
		Run()
	return strings.TrimSpace(email), err
}

type loginPoller interface {
	LoginPoll(ctx context.Context, deviceCode string) (*catalogclient.LoginPollResponse, error)
}

// pollLogin polls until the login completes, expires or ctx ends. tick is
// called after every pending answer.
func pollLogin(ctx context.Context, p loginPoller, deviceCode string, interval time.Duration, tick func()) (*catalogclient.LoginPollResponse, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		poll, err := p.LoginPoll(ctx, deviceCode)
		if err != nil {
			return nil, fmt.Errorf("login poll: %w", err)
		}
		switch poll.Status {
		case "pending":
			if tick != nil {
				tick()
			}
			timer.Reset(interval)
		case "complete":
			if poll.APIKey == nil || *poll.APIKey == "" {
				return nil, errors.New("login completed without an api key")
			}
			return poll, nil
		default:
			return nil, fmt.Errorf("unexpected poll status: %s", poll.Status)
		}
	}
}

func credentialsFrom(poll *catalogclient.LoginPollResponse, email, serverURL string) *clientconfig.AuthCredentials {
	creds := &clientconfig.AuthCredentials{ServerURL: serverURL, Email: email}
	if poll.APIKey != nil {
		creds.APIKey = *poll.APIKey
	}
	if poll.UserID != nil {
		creds.UserID = *poll.UserID
	}
	if poll.Email != nil {
		creds.Email = *poll.Email
	}
	if poll.ExpiresAt != nil {
		creds.ExpiresAt = *poll.ExpiresAt
	}
	return creds
}

func reportMerge(res favorites.MergeResult, err error) {
	if n := len(res.Merged); n > 0 {
		output.Info("Moved %d favorites from this device to your account.", n)
	}
	if n := len(res.Failed); n > 0 {
		output.Warning("%d favorites could not be moved: %s", n, strings.Join(res.Failed, ", "))
	}
	if err != nil {
		output.Warning("%s", output.FavoriteErrorMessage(err))
	}
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with a device code",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		email, _ := cmd.Flags().GetString("email")
		if email == "" {
			if !output.IsTerminal() {
				return &usageError{"--email is required when not running in a terminal"}
			}
			var err error
			if email, err = promptEmail(); err != nil {
				return err
			}
		}
		if err := validateEmail(email); err != nil {
			return &usageError{err.Error()}
		}
		email = strings.TrimSpace(email)

		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		// The identity before signing in; a merge runs only on the
		// anonymous to signed-in transition.
		s.merger.Observe(ctx, clientconfig.GetAPIKey())

		resp, err := s.client.LoginStart(ctx, email)
		if err != nil {
			return fmt.Errorf("login start: %w", err)
		}
		output.Info("Open %s and enter code: %s", resp.VerificationURI, resp.UserCode)

		interval := time.Duration(resp.Interval) * time.Second
		poll, err := pollLogin(ctx, s.client, resp.DeviceCode, interval, func() { fmt.Print(".") })
		if err != nil {
			return err
		}
		fmt.Println()

		creds := credentialsFrom(poll, email, s.client.BaseURL)
		if err := clientconfig.SaveAuth(creds); err != nil {
			return fmt.Errorf("save credentials: %w", err)
		}
		output.Success("Logged in as %s", creds.Email)

		res, _, err := s.merger.Observe(ctx, creds.APIKey)
		reportMerge(res, err)
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out; new favorites stay on this device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := clientconfig.ClearAuth(); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		output.Success("Logged out.")
		return nil
	},
}

// authStatus is the JSON shape of auth status.
type authStatus struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
	Server        string `json:"server"`
	Valid         *bool  `json:"valid,omitempty"`
	Favorites     int    `json:"favorites"`
	Limit         int    `json:"limit,omitempty"`
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		creds, err := clientconfig.LoadAuth()
		if err != nil {
			return fmt.Errorf("load auth: %w", err)
		}

		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		st := authStatus{Server: s.client.BaseURL}
		key := clientconfig.GetAPIKey()
		if key == "" {
			_ = s.state.Refresh(ctx)
			st.Favorites, st.Limit = s.state.Count(), s.limit
			if jsonOutput() {
				return output.JSON(st)
			}
			output.Info("Not logged in.")
			output.Info("%s saved on this device.", s.countLabel())
			return nil
		}

		st.Authenticated = true
		if creds != nil {
			st.Email = creds.Email
		}
		_, meErr := s.client.Me(ctx, key)
		valid := meErr == nil
		if meErr == nil || errors.Is(meErr, catalogclient.ErrUnauthorized) {
			st.Valid = &valid
		}
		if valid {
			_ = s.state.Refresh(ctx)
			st.Favorites = s.state.Count()
		}

		if jsonOutput() {
			return output.JSON(st)
		}
		keyPrefix := key
		if len(keyPrefix) > 12 {
			keyPrefix = keyPrefix[:12] + "..."
		}
		if st.Email != "" {
			output.Info("Email:     %s", st.Email)
		}
		output.Info("Server:    %s", st.Server)
		output.Info("Key:       %s", keyPrefix)
		switch {
		case valid:
			output.Info("Favorites: %d", st.Favorites)
		case st.Valid != nil:
			output.Warning("%s", output.FavoriteErrorMessage(&favorites.Error{Kind: favorites.KindAuthExpired}))
		default:
			output.Warning("Could not reach the server: %v", meErr)
		}
		return nil
	},
}

func init() {
	authLoginCmd.Flags().String("email", "", "account email (prompted when omitted)")
	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd)
	rootCmd.AddCommand(authCmd)
}
