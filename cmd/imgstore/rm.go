package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"imgstore/internal/api"
	"imgstore/internal/config"
)

func newRmCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "rm [key]",
		Short: "Delete an image by key or owner",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (owner == "") {
				return fmt.Errorf("pass exactly one of <key> or --owner")
			}

			return withClient(cfg, func(client *api.Client) error {
				var (
					resp   api.DeleteResponse
					err    error
					target string
				)
				if owner != "" {
					resp, err = client.DeleteOwnerImage(cmd.Context(), owner)
					target = "owner " + owner
				} else {
					resp, err = client.DeleteImage(cmd.Context(), args[0])
					target = args[0]
				}
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				if !resp.Deleted {
					return writePlain("nothing to delete for %s\n", target)
				}
				return writePlain("deleted %s\n", target)
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "delete the owner's current image")
	return cmd
}
