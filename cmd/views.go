package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/pipescore/internal/views"
)

var viewName string

var viewsCmd = &cobra.Command{
	Use:   "views",
	Short: "Manage the analytic views",
}

var viewsDeployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Create or replace the analytic views",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		ps, err := requirePostgres(env.Store)
		if err != nil {
			return err
		}

		mgr := views.NewManager(ps.Pool())
		if viewName != "" {
			return mgr.DeployOne(ctx, viewName)
		}
		return mgr.Deploy(ctx)
	},
}

var viewsDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop the analytic views",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		ps, err := requirePostgres(env.Store)
		if err != nil {
			return err
		}

		return views.NewManager(ps.Pool()).Drop(ctx)
	},
}

var viewsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the analytic view definitions",
	Run: func(cmd *cobra.Command, args []string) {
		for _, v := range views.All() {
			fmt.Printf("%s\t%s\n", v.Name, v.Description)
		}
	},
}

func init() {
	viewsDeployCmd.Flags().StringVar(&viewName, "name", "", "deploy a single view by name")
	viewsCmd.AddCommand(viewsDeployCmd, viewsDropCmd, viewsListCmd)
	rootCmd.AddCommand(viewsCmd)
}
