package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/typescope/controller"
	"github.com/hazyhaar/typescope/endpoints"
	"github.com/hazyhaar/typescope/grouping"
	"github.com/hazyhaar/typescope/internal/pageurl"
	"github.com/hazyhaar/typescope/internal/report"
	"github.com/hazyhaar/typescope/page"
	"github.com/hazyhaar/typescope/page/memdom"
	"github.com/hazyhaar/typescope/page/rodhost"
)

var (
	detectFile    string
	detectURL     string
	detectSort    string
	detectJSON    bool
	detectSamples int
)

func newDetectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Report the style groups of a page",
		RunE:  runDetectCmd,
	}
	cmd.Flags().StringVar(&detectFile, "file", "", "local HTML file, laid out without a browser")
	cmd.Flags().StringVar(&detectURL, "url", "", "page to load in Chrome")
	cmd.Flags().StringVar(&detectSort, "sort", "", "order within a bucket: size or count (default from config)")
	cmd.Flags().BoolVar(&detectJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().IntVar(&detectSamples, "samples", 1, "samples shown per group")
	return cmd
}

func runDetectCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	sort := detectSort
	if sort == "" {
		sort = cfg.Session.SortMode
	}

	var (
		host    page.Host
		pageURL string
	)
	switch {
	case detectFile != "":
		src, err := pageurl.ReadFile(detectFile)
		if err != nil {
			return fmt.Errorf("read %s: %w", detectFile, err)
		}
		abs, _ := filepath.Abs(detectFile)
		pageURL = "file://" + abs
		d, err := memdom.Parse(string(src), memdom.WithURL(pageURL),
			memdom.WithViewport(float64(cfg.Browser.ViewportWidth), float64(cfg.Browser.ViewportHeight)))
		if err != nil {
			return fmt.Errorf("parse %s: %w", detectFile, err)
		}
		host = d

	case detectURL != "":
		u, err := pageurl.Normalize(detectURL)
		if err != nil {
			return err
		}
		mgr := newBrowserManager()
		if _, err := mgr.Start(ctx); err != nil {
			return err
		}
		defer mgr.Close()
		tab, err := mgr.OpenTab(ctx, u)
		if err != nil {
			return err
		}
		defer tab.Close()
		host, pageURL = rodhost.New(tab.Page, rodhost.WithLogger(logger)), u

	default:
		return errors.New("detect: one of --file or --url is required")
	}

	groups, err := detect(ctx, host, grouping.ParseSortMode(sort))
	if err != nil {
		return errors.New(endpoints.UserMessage(err))
	}
	if detectJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		buckets := grouping.Buckets(groups)
		if buckets == nil {
			buckets = []grouping.Bucket{}
		}
		return enc.Encode(endpoints.DetectResponse{URL: pageURL, Summary: grouping.Summarize(groups), Buckets: buckets})
	}
	return report.Render(cmd.OutOrStdout(), groups, report.Options{Samples: detectSamples})
}

// detect runs one Detect through a short-lived controller.
func detect(ctx context.Context, host page.Host, mode grouping.SortMode) ([]grouping.StyleGroup, error) {
	c := controller.New(host, controller.WithLogger(logger), controller.WithCleanupTimeout(cfg.Session.CleanupTimeout))
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		c.Run(runCtx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()
	return c.Detect(ctx, mode)
}
