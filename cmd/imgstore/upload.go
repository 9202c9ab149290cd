package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"imgstore/internal/api"
	"imgstore/internal/config"
)

func newUploadCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		owner       string
		contentType string
		name        string
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			if name == "" {
				name = filepath.Base(path)
			}
			if contentType == "" {
				contentType = mime.TypeByExtension(filepath.Ext(name))
			}
			if contentType == "" {
				return fmt.Errorf("cannot infer content type for %s; pass --content-type", name)
			}

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.UploadImage(cmd.Context(), name, contentType, f, owner)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writeUpload(resp)
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner id; replaces the owner's current image")
	cmd.Flags().StringVar(&contentType, "content-type", "", "declared content type (default: from extension)")
	cmd.Flags().StringVar(&name, "name", "", "filename sent to the server (default: base name of file)")
	return cmd
}
