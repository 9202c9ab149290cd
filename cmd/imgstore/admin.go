package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"imgstore/internal/auth"
)

func newAdminCmd(jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands",
	}

	cmd.AddCommand(newAdminHashTokenCmd(jsonOutput))
	return cmd
}

type hashTokenResult struct {
	Token string `json:"token,omitempty"`
	Hash  string `json:"admin_token_hash"`
}

func newAdminHashTokenCmd(jsonOutput *bool) *cobra.Command {
	var (
		generate  bool
		fromStdin bool
	)

	cmd := &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Hash an admin token for admin_token_hash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := readAdminToken(args, generate, fromStdin, cmd.InOrStdin())
			if err != nil {
				return err
			}
			hash, err := auth.HashToken(token)
			if err != nil {
				return err
			}

			result := hashTokenResult{Hash: hash}
			if generate {
				result.Token = token
			}
			if *jsonOutput {
				return writeJSON(result)
			}
			if generate {
				fmt.Fprintf(os.Stderr, "token: %s\n", token)
			}
			return writePlain("%s\n", hash)
		},
	}

	cmd.Flags().BoolVar(&generate, "generate", false, "generate a random token and print it with its hash")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "read the token from stdin")
	return cmd
}

func readAdminToken(args []string, generate, fromStdin bool, stdin io.Reader) (string, error) {
	sources := 0
	for _, set := range []bool{len(args) == 1, generate, fromStdin} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return "", fmt.Errorf("pass exactly one of <token>, --generate or --stdin")
	}

	switch {
	case generate:
		return auth.GenerateToken()
	case fromStdin:
		data, err := io.ReadAll(io.LimitReader(stdin, 1024))
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	default:
		return args[0], nil
	}
}
