package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"imgstore/internal/api"
	"imgstore/internal/format"
	"imgstore/internal/models"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeUpload(resp api.UploadResponse) error {
	line := fmt.Sprintf("%s %s %s %s", resp.Key, humanize.IBytes(uint64(resp.SizeBytes)), resp.ContentType, resp.URL)
	if resp.Owner != "" {
		line += " owner=" + resp.Owner
	}
	return writePlain("%s\n", line)
}

func writeImageList(images []models.ImageInfo) error {
	for _, img := range images {
		if err := writePlain("%s\n", formatImageLine(img)); err != nil {
			return err
		}
	}
	return nil
}

func formatImageLine(img models.ImageInfo) string {
	line := fmt.Sprintf("%s  %9s  %-12s  %s", img.Key, humanize.IBytes(uint64(img.SizeBytes)), img.ContentType, formatTime(img.CreatedAt))
	if img.Owner != "" {
		line += "  owner=" + img.Owner
	}
	return line
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
