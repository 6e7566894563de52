package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"git.0xdad.com/tblyler/meditime/db"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage patients",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add",
		Short: "Add a patient and their first pushover device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				p := newPrompter(cmd)

				username, err := p.require("username")
				if err != nil {
					return err
				}

				deviceToken, err := p.require("pushover device token")
				if err != nil {
					return err
				}

				deviceName := p.ask("pushover device name [default]")
				if deviceName == "" {
					deviceName = "default"
				}

				id := uuid.New()

				err = a.badger.AddUser(&db.User{
					ID:   id,
					Name: username,
					PushoverDeviceTokens: map[string]string{
						deviceName: deviceToken,
					},
					CreatedAt: time.Now(),
				})
				if err != nil {
					return fmt.Errorf("failed to insert username %s: %w", username, err)
				}

				fmt.Fprintln(cmd.OutOrStdout(), "created user id", id)

				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <username>",
		Short: "Show a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				user, err := a.user(args[0])
				if err != nil {
					return err
				}

				printUser(cmd, user)

				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				users, err := a.badger.ListUsers()
				if err != nil {
					return err
				}

				for _, user := range users {
					printUser(cmd, user)
				}

				return nil
			})
		},
	})

	return cmd
}

func printUser(cmd *cobra.Command, user *db.User) {
	devices := make([]string, 0, len(user.PushoverDeviceTokens))
	for name := range user.PushoverDeviceTokens {
		devices = append(devices, name)
	}

	sort.Strings(devices)

	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tdevices=%v\tcreated=%s\n",
		user.ID, user.Name, devices, user.CreatedAt.Format(time.RFC3339))
}
