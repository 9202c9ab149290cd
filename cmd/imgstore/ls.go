package main

import (
	"net/url"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"imgstore/internal/api"
	"imgstore/internal/config"
)

func newLsCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List stored images (requires IMGSTORE_ADMIN_TOKEN)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				query := url.Values{}
				if limit > 0 {
					query.Set("limit", strconv.Itoa(limit))
				}

				resp, err := client.ListImages(cmd.Context(), query)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				if err := writeImageList(resp.Images); err != nil {
					return err
				}

				var total int64
				for _, img := range resp.Images {
					total += img.SizeBytes
				}
				return writePlain("%d images, %s\n", resp.Count, humanize.IBytes(uint64(total)))
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "limit results")
	return cmd
}
