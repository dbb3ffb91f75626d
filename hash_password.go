package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gluk-w/boxterm/internal/auth"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Print a bcrypt hash to use as BOXTERM_PASSWORD",
	RunE:  runHashPassword,
}

var passwordFlag string

func init() {
	hashPasswordCmd.Flags().StringVar(&passwordFlag, "password", "", "Password to hash")
	hashPasswordCmd.MarkFlagRequired("password")
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	hash, err := auth.HashPassword(passwordFlag)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}
