package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/draftboard/internal/app/pipeline"
	"github.com/okian/draftboard/internal/domain/model"
	"github.com/okian/draftboard/pkg/logger"
)

// newRefreshCmd runs one pipeline pass in-process and prints the report.
func newRefreshCmd() *cobra.Command {
	var (
		groups  []string
		formats []string
		force   bool
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run the ingestion pipeline once and print the report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			req, err := buildRequest(groups, formats, force, !noCache)
			if err != nil {
				return err
			}

			cfg, log, err := setup(ctx)
			if err != nil {
				return err
			}
			c, err := wire(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := c.Close(); err != nil {
					log.Error(ctx, "closing components failed", logger.Error(err))
				}
			}()

			rep, err := c.pipeline.Run(ctx, req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep); err != nil {
				return err
			}
			if !rep.Success {
				return fmt.Errorf("pipeline run %s produced no data", rep.ExecutionID)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&groups, "groups", "g", nil, "Groups to refresh (default all)")
	cmd.Flags().StringSliceVarP(&formats, "formats", "f", nil, "Formats to refresh (default all)")
	cmd.Flags().BoolVar(&force, "force", false, "Bypass fresh cache entries")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Do not write fetched data to the cache")
	return cmd
}

// buildRequest parses flag values into a pipeline request.
func buildRequest(groups, formats []string, force, updateCache bool) (pipeline.Request, error) {
	req := pipeline.Request{ForceRefresh: force, UpdateCache: updateCache}
	for _, s := range groups {
		g, err := model.ParseGroup(s)
		if err != nil {
			return pipeline.Request{}, err
		}
		req.Groups = append(req.Groups, g)
	}
	for _, s := range formats {
		f, err := model.ParseFormat(s)
		if err != nil {
			return pipeline.Request{}, err
		}
		req.Formats = append(req.Formats, f)
	}
	return req, nil
}
