package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/dailyworker/newsroom/internal/api"
)

var tokenCmd = &cobra.Command{
	Use:   "token <editor>",
	Short: "Issue a bearer token for an editor on the roster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")
		editor := args[0]

		role := ""
		switch {
		case lo.Contains(cfg.Workflow.SeniorEditors, editor):
			role = api.RoleSeniorEditor
		case lo.Contains(cfg.Workflow.Editors, editor):
			role = api.RoleEditor
		default:
			return eris.Errorf("%s is not on the editor roster", editor)
		}

		tok, err := api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(editor, role, ttl)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Duration("ttl", 12*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
