package main

import (
	"context"
	"time"

	"github.com/jrsteele09/peek-plugin-user/session"
	"github.com/jrsteele09/peek-plugin-user/tuples"
	"github.com/jrsteele09/peek-plugin-user/ui"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const (
	userListTimeout = 10 * time.Second
	maxAttempts     = 3
)

func usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List the users that can log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), userListTimeout)
			defer cancel()
			sub, err := a.observer.SubscribeToSelector(ctx, tuples.UserListSelector())
			if err != nil {
				return err
			}
			defer sub.Unsubscribe()

			var update []tuples.Tuple
			select {
			case update = <-sub.Updates():
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "waiting for the user list")
			}

			items := make([]pterm.BulletListItem, 0, len(update))
			for _, t := range update {
				if u, ok := t.(*tuples.UserListItem); ok {
					items = append(items, pterm.BulletListItem{Level: 0, Text: u.DisplayText()})
				}
			}
			if len(items) == 0 {
				pterm.Info.Println("No users")
				return nil
			}
			return pterm.DefaultBulletList.WithItems(items).Render()
		},
	}
}

func loginCmd() *cobra.Command {
	var userName, vehicleID, password string
	var acceptWarnings bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log a user in on this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			form, err := ui.NewLoginForm(ctx, a.service, a.observer, a.notifier, a.navigator)
			if err != nil {
				return err
			}
			defer form.Close()

			if userName == "" {
				if userName, err = selectUser(ctx, form); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = pterm.DefaultInteractiveTextInput.WithMask("*").Show("Password"); err != nil {
					return err
				}
			}
			if vehicleID == "" {
				if vehicleID, err = pterm.DefaultInteractiveTextInput.Show("Vehicle"); err != nil {
					return err
				}
			}
			form.SelectUser(userName)
			form.SetPassword(password)
			form.SetVehicleID(vehicleID)
			if !form.IsLoginEnabled() {
				return errors.New("a user, password and vehicle are required")
			}

			for attempt := 1; attempt <= maxAttempts; attempt++ {
				if form.DoLogin(ctx) {
					return nil
				}
				if !confirmWarnings(form.Warnings(), acceptWarnings) {
					break
				}
			}
			return errors.New("login failed")
		},
	}
	cmd.Flags().StringVar(&userName, "user", "", "User name, prompted for when empty")
	cmd.Flags().StringVar(&vehicleID, "vehicle", "", "Vehicle id, prompted for when empty")
	cmd.Flags().StringVar(&password, "password", "", "Password, prompted for when empty")
	cmd.Flags().BoolVar(&acceptWarnings, "yes", false, "Accept login warnings without asking")
	return cmd
}

func selectUser(ctx context.Context, form *ui.LoginForm) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, userListTimeout)
	defer cancel()
	if err := waitUntil(ctx, func() bool { return len(form.Users()) > 1 }); err != nil {
		return "", errors.Wrap(err, "waiting for the user list")
	}

	users := form.Users()[1:]
	options := make([]string, len(users))
	byText := make(map[string]string, len(users))
	for i, u := range users {
		options[i] = form.WebDisplayText(u)
		byText[options[i]] = u.UserID
	}
	choice, err := pterm.DefaultInteractiveSelect.WithOptions(options).Show("Select a user")
	if err != nil {
		return "", err
	}
	return byText[choice], nil
}

// confirmWarnings shows the warnings and reports whether to submit again with
// them accepted.
func confirmWarnings(warnings []string, accept bool) bool {
	if len(warnings) == 0 {
		return false
	}
	for _, w := range warnings {
		pterm.Warning.Println(w)
	}
	if accept {
		return true
	}
	ok, err := pterm.DefaultInteractiveConfirm.Show("Continue anyway?")
	return err == nil && ok
}

func logoutCmd() *cobra.Command {
	var acceptWarnings bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Log the current user out of this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if !a.service.IsLoggedIn() {
				pterm.Info.Println("Nobody is logged in on this device")
				return nil
			}

			form := ui.NewLogoutForm(a.service, a.notifier, a.navigator)
			pterm.Info.Println("Logging out " + form.LoggedInUserText())
			for attempt := 1; attempt <= maxAttempts; attempt++ {
				if form.DoLogout(ctx) {
					return nil
				}
				if !confirmWarnings(form.Warnings(), acceptWarnings) {
					break
				}
			}
			return errors.New("logout failed")
		},
	}
	cmd.Flags().BoolVar(&acceptWarnings, "yes", false, "Accept logout warnings without asking")
	return cmd
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show who is logged in on this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			allowed, err := session.NewGuard(a.service, a.navigator).CanActivate(ctx)
			if err != nil {
				return err
			}
			if !allowed {
				pterm.Info.Println("Not logged in, run peekuser login")
				return nil
			}

			details, err := a.service.LoggedInUserDetails()
			if err != nil {
				return err
			}
			pterm.Success.Println("Logged in as " + details.DisplayText())

			token := a.service.AuthToken()
			if token == session.UnissuedToken {
				return nil
			}
			info, err := a.client.Session(ctx, token)
			if err != nil {
				pterm.Warning.Println("Could not check the session with the server: " + err.Error())
				return nil
			}
			if !info.Active {
				pterm.Warning.Println("The server no longer has this login")
				return nil
			}
			pterm.Info.Printfln("Vehicle %s, session expires %s", info.VehicleID, info.ExpiresAt.Local().Format(time.RFC1123))
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Report login changes until this device is logged out",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			status := a.service.SubscribeLoggedInStatus()
			defer status.Unsubscribe()

			wasLoggedIn := false
			for {
				select {
				case loggedIn, ok := <-status.C:
					if !ok {
						return nil
					}
					if loggedIn {
						wasLoggedIn = true
						if details := a.service.UserDetails(); details != nil {
							pterm.Success.Println("Logged in: " + details.DisplayText())
						}
						continue
					}
					if wasLoggedIn {
						pterm.Info.Println("Logged out")
						return nil
					}
					pterm.Info.Println("Nobody is logged in on this device")
					return nil
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
}
