package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/backmig/backmig/internal/backlog"
	"github.com/backmig/backmig/internal/gateway"
	"github.com/backmig/backmig/internal/guard"
	"github.com/backmig/backmig/internal/identity"
	"github.com/backmig/backmig/internal/replay"
)

func newImportCmd() *cobra.Command {
	var opts replay.Options

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replay the staged project into the target space",
		Long: `import recreates the staged project in the target space: the target
catalog is captured, missing categories/versions/milestones/issue types
are created by name, then every issue is recreated in source key order
(deleted keys become placeholder tombstones) and its comment history is
replayed as incremental updates. Parent links and wiki pages follow.

Unless --force-production is set, the target project key must start with
` + guard.TestProjectKeyPrefix + `.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := guard.CheckOverrides(opts.ForceProduction, opts.ForceImport); err != nil {
				return err
			}

			ctx := cmd.Context()
			cfg, store, log, err := setup(ctx, false, true)
			if err != nil {
				return err
			}
			defer store.Close()

			client := backlog.NewClient(cfg.Target.Space, cfg.Target.APIKey, cfg.Target.SiteJP)
			gw := gateway.New(cfg.APIInterval(), log)
			mapper := identity.NewMapper(store, log)
			pipe := replay.New(store, gw, client, cfg, log, mapper)

			if err := pipe.Prepare(ctx, opts); err != nil {
				return err
			}

			phases := []struct {
				name string
				run  func() error
			}{
				{"categories", func() error { return pipe.EnsureCategories(ctx, opts) }},
				{"versions", func() error { return pipe.EnsureVersions(ctx, opts) }},
				{"milestones", func() error { return pipe.EnsureMilestones(ctx, opts) }},
				{"issue types", func() error { return pipe.EnsureIssueTypes(ctx, opts) }},
				{"issues", func() error { return pipe.Issues(ctx, opts) }},
				{"parent links", func() error { return pipe.Parents(ctx, opts) }},
				{"wikis", func() error { return pipe.Wikis(ctx, opts) }},
			}
			for _, phase := range phases {
				log.Info("import: %s", phase.name)
				if err := phase.run(); err != nil {
					return fmt.Errorf("import %s: %w", phase.name, err)
				}
			}

			log.Info("import complete\n%s", store.Counters.Report())
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.ForceProduction, "force-production", false,
		"allow writing to a project whose key does not mark it as a migration test target")
	cmd.Flags().BoolVar(&opts.ForceImport, "force-import", false,
		"allow replaying into a target project that already contains issues")
	cmd.Flags().IntVar(&opts.SkipIssues, "skip-issues", 0,
		"resume a partial replay by skipping the first N staged issues")
	return cmd
}
