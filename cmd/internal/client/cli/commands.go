package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	v1 "notebox/shared/contracts/auth/v1"
)

func (rt *runtime) registerCommand() *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if name, err = rt.prompt.orPrompt(name, "Name"); err != nil {
				return err
			}
			if email, err = rt.prompt.orPrompt(email, "Email"); err != nil {
				return err
			}
			pw, err := rt.newPassword("Password")
			if err != nil {
				return err
			}

			resp, err := rt.ctl.Register(cmd.Context(), name, email, pw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered and logged in as %s <%s>\n", resp.User.Name, resp.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

func (rt *runtime) loginCommand() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if email, err = rt.prompt.orPrompt(email, "Email"); err != nil {
				return err
			}
			pw, err := rt.prompt.Password("Password")
			if err != nil {
				return err
			}

			resp, err := rt.ctl.Login(cmd.Context(), email, pw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s <%s>\n", resp.User.Name, resp.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

func (rt *runtime) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session stored on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt.ctl.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func (rt *runtime) statusCommand() *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if verify && rt.ctl.Snapshot().IsAuthenticated {
				// Goes through the refreshing pipeline; a dead session logs out.
				if _, err := rt.api.Profile(cmd.Context()); err != nil && rt.ctl.Snapshot().IsAuthenticated {
					return err
				}
			}

			st := rt.ctl.Snapshot()
			if !st.IsAuthenticated {
				fmt.Fprintln(out, "not logged in")
				return nil
			}
			fmt.Fprintf(out, "logged in as %s <%s> (id %s)\n", st.User.Name, st.User.Email, st.User.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "check the session against the server")
	return cmd
}

func (rt *runtime) refreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the stored token for a fresh one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.requireSession(); err != nil {
				return err
			}
			if !rt.ctl.RefreshAuth(cmd.Context()) {
				if err := rt.ctl.Snapshot().Err; err != nil {
					return err
				}
				return errors.New("refresh failed")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "session refreshed")
			return nil
		},
	}
}

func (rt *runtime) profileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show the account profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.requireSession(); err != nil {
				return err
			}
			u, err := rt.api.Profile(cmd.Context())
			if err != nil {
				return err
			}
			if err := rt.ctl.UpdateUser(cmd.Context(), u); err != nil {
				rt.log.Warn("profile.cache.fail", "err", err)
			}
			printUser(cmd, u)
			return nil
		},
	}
	cmd.AddCommand(rt.profileUpdateCommand(), rt.profileDeleteCommand())
	return cmd
}

func (rt *runtime) profileUpdateCommand() *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change name or email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.requireSession(); err != nil {
				return err
			}
			if name == "" && email == "" {
				return errors.New("nothing to update; pass --name and/or --email")
			}
			cur := rt.ctl.Snapshot().User
			if name == "" {
				name = cur.Name
			}
			if email == "" {
				email = cur.Email
			}

			u, err := rt.ctl.UpdateProfile(cmd.Context(), name, email)
			if err != nil {
				return err
			}
			printUser(cmd, u)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new display name")
	cmd.Flags().StringVar(&email, "email", "", "new email")
	return cmd
}

func (rt *runtime) profileDeleteCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the account and everything it owns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.requireSession(); err != nil {
				return err
			}
			if !yes {
				return errors.New("refusing to delete without --yes")
			}
			if err := rt.ctl.DeleteAccount(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "account deleted")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func (rt *runtime) passwdCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the account password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.requireSession(); err != nil {
				return err
			}
			old, err := rt.prompt.Password("Current password")
			if err != nil {
				return err
			}
			pw, err := rt.newPassword("New password")
			if err != nil {
				return err
			}
			if err := rt.ctl.ChangePassword(cmd.Context(), old, pw); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "password changed")
			return nil
		},
	}
}

func (rt *runtime) foldersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folders",
		Short: "List folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.requireSession(); err != nil {
				return err
			}
			list, err := rt.api.Folders(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no folders")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCREATED")
			for _, f := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", f.ID, f.Name, f.CreatedAt)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "create <name>",
			Short: "Create a folder",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := rt.requireSession(); err != nil {
					return err
				}
				f, err := rt.api.CreateFolder(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", f.Name, f.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a folder",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := rt.requireSession(); err != nil {
					return err
				}
				if err := rt.api.DeleteFolder(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func (rt *runtime) newPassword(label string) (string, error) {
	pw, err := rt.prompt.Password(label)
	if err != nil {
		return "", err
	}
	again, err := rt.prompt.Password("Repeat password")
	if err != nil {
		return "", err
	}
	if pw != again {
		return "", errors.New("passwords do not match")
	}
	return pw, nil
}

func printUser(cmd *cobra.Command, u v1.User) {
	fmt.Fprintf(cmd.OutOrStdout(), "id:    %s\nname:  %s\nemail: %s\n", u.ID, u.Name, u.Email)
}
