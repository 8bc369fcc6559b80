package main

import (
	"fmt"

	"github.com/lk2023060901/chatbot-rag/internal/pkg/database"
	"github.com/lk2023060901/chatbot-rag/internal/user/biz"
	"github.com/lk2023060901/chatbot-rag/internal/user/data"
	"github.com/spf13/cobra"
)

func UserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(userCreateCmd())
	return cmd
}

func userCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user (use --admin for the first administrator)",
		RunE:  runUserCreate,
	}
	cmd.Flags().String("username", "", "username (required)")
	cmd.Flags().String("password", "", "password, at least 8 characters (required)")
	cmd.Flags().String("department", biz.DefaultDepartment, "department name")
	cmd.Flags().Bool("admin", false, "grant administrator rights")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func runUserCreate(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	in := biz.CreateUserInput{}
	in.Username, _ = cmd.Flags().GetString("username")
	in.Password, _ = cmd.Flags().GetString("password")
	in.Department, _ = cmd.Flags().GetString("department")
	in.IsAdmin, _ = cmd.Flags().GetBool("admin")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(data.Models()...); err != nil {
		return err
	}

	uc := biz.NewUserUseCase(data.NewUserRepo(db), log)
	u, err := uc.CreateUser(cmd.Context(), in)
	if err != nil {
		return err
	}

	role := "user"
	if u.IsAdmin {
		role = "admin"
	}
	fmt.Fprintln(cmd.OutOrStdout(), boxStyle.Render(fmt.Sprintf(
		"%s\nid          %d\nusername    %s\nrole        %s\ndepartment  %s",
		titleStyle.Render("User created"), u.ID, u.Username, role, u.DepartmentName)))
	return nil
}
