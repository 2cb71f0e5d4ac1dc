package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pipescore/internal/integrity"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run data integrity checks over the scoring tables",
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

		report, err := integrity.NewChecker(ps.Pool()).Run(ctx)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal report")
		}
		fmt.Println(string(out))

		if report.Critical() {
			return eris.New("critical integrity issues found")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
