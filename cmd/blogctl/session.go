package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func signinCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "signin",
		Short: "Sign in anonymously and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			state, err := app.session.AnonymousSignIn(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), state.Public())
		},
	}
}

func refreshCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the stored refresh token for a new token pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.session.RefreshToken(cmd.Context()); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), app.session.State().Public())
		},
	}
}

func logoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func stateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), app.session.State().Public())
		},
	}
}

func deviceIDCmd(opts *rootOptions) *cobra.Command {
	var clearID bool

	cmd := &cobra.Command{
		Use:   "device-id",
		Short: "Print the device id sent with anonymous sign-in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			if clearID {
				if err := app.devices.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "device id cleared")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), app.devices.DeviceID(cmd.Context()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearID, "clear", false, "remove the stored device id")
	return cmd
}
