package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"imgstore/internal/api"
	"imgstore/internal/config"
)

func newGetCmd(cfg *config.Config) *cobra.Command {
	var (
		owner  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "get [key]",
		Short: "Download an image by key or owner",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (owner == "") {
				return fmt.Errorf("pass exactly one of <key> or --owner")
			}

			return withClient(cfg, func(client *api.Client) error {
				var (
					img api.FetchedImage
					err error
				)
				if owner != "" {
					img, err = client.GetOwnerImage(cmd.Context(), owner)
				} else {
					img, err = client.GetImage(cmd.Context(), args[0])
				}
				if err != nil {
					return err
				}

				if output == "" || output == "-" {
					_, err = os.Stdout.Write(img.Data)
					return err
				}
				if err := os.WriteFile(output, img.Data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "wrote %d bytes (%s) to %s\n", len(img.Data), img.ContentType, output)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "fetch the owner's current image")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}
