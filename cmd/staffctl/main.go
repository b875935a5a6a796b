package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pharmeast/pharmeast-backend/internal/auth"
	"github.com/pharmeast/pharmeast-backend/internal/config"
	"github.com/pharmeast/pharmeast-backend/internal/database"
	"github.com/pharmeast/pharmeast-backend/internal/models"
	"github.com/pharmeast/pharmeast-backend/internal/repository"
)

// staffctl manages back-office accounts from the shell, mainly to seed the
// first admin before the HTTP panel is reachable.
func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "staffctl",
		Short:        "Manage staff accounts",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing config.yaml")

	newRepo := func() (*repository.StaffRepository, func(), error) {
		if err := config.Load(configPath); err != nil {
			return nil, nil, err
		}
		db, err := database.Connect(&config.Get().Database)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewStaffRepository(db), func() { db.Close() }, nil
	}

	var name, role, password string
	create := &cobra.Command{
		Use:   "create <email>",
		Short: "Create a staff account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !models.ValidRole(role) {
				return fmt.Errorf("role must be admin, superadmin or staff")
			}
			if len(password) < 8 {
				return fmt.Errorf("password must be at least 8 characters")
			}
			repo, closeDB, err := newRepo()
			if err != nil {
				return err
			}
			defer closeDB()

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			id, err := repo.Create(ctx, &models.Staff{
				Email:        args[0],
				Name:         name,
				PasswordHash: hash,
				Role:         role,
				Active:       true,
			})
			if err != nil {
				return err
			}
			fmt.Printf("created staff account %d (%s)\n", id, args[0])
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().StringVar(&role, "role", models.RoleStaff, "account role")
	create.Flags().StringVar(&password, "password", "", "initial password")

	list := &cobra.Command{
		Use:   "list",
		Short: "List staff accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, closeDB, err := newRepo()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			accounts, err := repo.List(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEMAIL\tNAME\tROLE\tACTIVE")
			for _, a := range accounts {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\n", a.ID, a.Email, a.Name, a.Role, a.Active)
			}
			return w.Flush()
		},
	}

	var newPassword string
	passwd := &cobra.Command{
		Use:   "passwd <email>",
		Short: "Reset an account password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(newPassword) < 8 {
				return fmt.Errorf("password must be at least 8 characters")
			}
			repo, closeDB, err := newRepo()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			account, err := repo.GetByEmail(ctx, args[0])
			if err != nil {
				return err
			}
			hash, err := auth.HashPassword(newPassword)
			if err != nil {
				return err
			}
			if err := repo.SetPassword(ctx, account.ID, hash); err != nil {
				return err
			}
			fmt.Printf("password updated for %s\n", args[0])
			return nil
		},
	}
	passwd.Flags().StringVar(&newPassword, "password", "", "new password")

	root.AddCommand(create, list, passwd)
	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}
