package cmd

import (
	"context"
	"fmt"
	"time"

	"djmix/storage"

	"github.com/spf13/cobra"
)

var minioPrefix string

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "List archived recordings",
	Long:  `Connects to the configured MinIO bucket and lists archived recordings with totals.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.MinioEnabled() {
			return fmt.Errorf("MINIO_ENDPOINT is not set")
		}
		fmt.Printf("MinIO: %s, bucket %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		archive, err := storage.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		objects, stats, err := archive.List(ctx, minioPrefix)
		if err != nil {
			return err
		}

		for _, obj := range objects {
			fmt.Printf("%-20s %10s  %s\n",
				obj.LastModified.Local().Format("2006-01-02 15:04:05"),
				storage.FormatSize(obj.Size),
				obj.Key)
		}
		fmt.Printf("\n%d objects, %s total\n", stats.TotalObjects, storage.FormatSize(stats.TotalSize))
		return nil
	},
}

func init() {
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", storage.RecordingPrefix, "object prefix to list")
	rootCmd.AddCommand(minioCmd)
}
