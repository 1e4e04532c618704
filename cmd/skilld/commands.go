package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/skilld/internal/reflection"
	"github.com/fyrsmithlabs/skilld/internal/skill"
	"github.com/fyrsmithlabs/skilld/internal/skillbook"
)

var (
	addSection  string
	addLevel    string
	skillsLimit int
	learnFailed bool
	promoteList bool
)

func init() {
	addCmd.Flags().StringVar(&addSection, "section", skill.SectionSuccess, "skill section (success or failure)")
	addCmd.Flags().StringVar(&addLevel, "level", "", "hierarchy level (global, language, framework, project; default global)")
	skillsCmd.Flags().IntVar(&skillsLimit, "limit", 0, "maximum number of skills to show (0 uses the configured top_k)")
	learnCmd.Flags().BoolVar(&learnFailed, "failed", false, "treat the report as describing a failed session")
	promoteCmd.Flags().BoolVar(&promoteList, "list", false, "list promotion candidates instead of promoting")
}

// addCmd records one skill directly.
var addCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Add a skill to the skillbook",
	Long: `Add a skill to the skillbook for the detected project context.

Near-duplicates of an existing skill refresh that skill instead of
creating a new one.

Examples:
  # Record a success pattern at the project level
  skilld add --level project "Run migrations before seeding fixtures"

  # Record a failure pattern
  skilld add --section failure "Do not mutate shared config in handlers"`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

// tagCmd votes on a skill.
var tagCmd = &cobra.Command{
	Use:   "tag <skill-id> <helpful|harmful|neutral>",
	Short: "Record a vote on a skill",
	Args:  cobra.ExactArgs(2),
	RunE:  runTag,
}

// removeCmd deletes a skill.
var removeCmd = &cobra.Command{
	Use:   "remove <skill-id>",
	Short: "Remove a skill from the skillbook",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

// skillsCmd lists the top-ranked skills for the current context.
var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "List the top-ranked skills for the current context",
	Args:  cobra.NoArgs,
	RunE:  runSkills,
}

// statsCmd prints aggregate skillbook counts.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show skillbook statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

// learnCmd applies a reflection report.
var learnCmd = &cobra.Command{
	Use:   "learn [file]",
	Short: "Apply a reflection report from a file or stdin",
	Long: `Parse a reflection report and apply the skill updates it implies.

The report is JSON, optionally surrounded by prose or a code fence, with
reasoning, keyInsights and patterns fields. Each pattern becomes one
skill add.

Examples:
  # Apply a report from a file
  skilld learn report.json

  # Apply a report from stdin, marking the session as failed
  cat report.json | skilld learn --failed -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLearn,
}

// promoteCmd relocates a skill to a broader level.
var promoteCmd = &cobra.Command{
	Use:   "promote [skill-id] [level]",
	Short: "Promote a skill to a broader hierarchy level",
	Long: `Promote a skill to a broader hierarchy level, or list candidates.

Examples:
  # List skills that qualify for promotion
  skilld promote --list

  # Move a project skill up to the language layer
  skilld promote success-00007 language`,
	Args: cobra.MaximumNArgs(2),
	RunE: runPromote,
}

func runAdd(cmd *cobra.Command, args []string) error {
	_, logger, svc, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	level := skill.Level(addLevel)
	if addLevel != "" && !level.Valid() {
		return fmt.Errorf("%w: %q", skill.ErrInvalidLevel, addLevel)
	}

	pctx := svc.Context()
	res, err := svc.Add(skillbook.AddRequest{
		Section:     addSection,
		Content:     args[0],
		Language:    pctx.Language,
		Framework:   pctx.Framework,
		ProjectType: pctx.ProjectType,
		Level:       level,
	})
	if err != nil {
		return fmt.Errorf("failed to add skill: %w", err)
	}

	if res.IsNew {
		fmt.Fprintf(os.Stderr, "Added %s to %s\n", res.Skill.ID, res.Path)
	} else {
		fmt.Fprintf(os.Stderr, "Merged into existing skill %s\n", res.Skill.ID)
	}
	return printJSON(res.Skill)
}

func runTag(cmd *cobra.Command, args []string) error {
	_, logger, svc, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	sk, err := svc.Score(args[0], skill.Vote(args[1]))
	if err != nil {
		return fmt.Errorf("failed to tag skill: %w", err)
	}
	return printJSON(sk)
}

func runRemove(cmd *cobra.Command, args []string) error {
	_, logger, svc, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := svc.Remove(args[0]); err != nil {
		return fmt.Errorf("failed to remove skill: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Removed %s\n", args[0])
	return nil
}

func runSkills(cmd *cobra.Command, args []string) error {
	cfg, logger, svc, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	limit := skillsLimit
	if limit <= 0 {
		limit = cfg.Skillbook.TopK
	}
	return printJSON(svc.TopSkills(limit))
}

func runStats(cmd *cobra.Command, args []string) error {
	_, logger, svc, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	return printJSON(svc.Stats())
}

func runLearn(cmd *cobra.Command, args []string) error {
	var raw []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		raw, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		raw, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
	}

	report, err := reflection.ParseReport(string(raw))
	if err != nil {
		return fmt.Errorf("failed to parse reflection report: %w", err)
	}

	_, logger, svc, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	batch := reflection.BuildUpdate(report, !learnFailed, svc.Context())
	results := svc.ApplyUpdate(batch)
	summary := skillbook.Summarize(results)

	fmt.Fprintf(os.Stderr, "Report %s: %d added, %d deduped, %d failed\n",
		report.ID, summary.Added, summary.Deduped, summary.Failures)
	return printJSON(results)
}

func runPromote(cmd *cobra.Command, args []string) error {
	cfg, logger, svc, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if promoteList {
		return printJSON(svc.PromotionCandidates(
			cfg.Skillbook.PromotionMinVotes,
			cfg.Skillbook.PromotionMinSuccessRate,
		))
	}

	if len(args) != 2 {
		return fmt.Errorf("promote requires <skill-id> and <level> (or --list)")
	}

	level := skill.Level(args[1])
	if !level.Valid() {
		return fmt.Errorf("%w: %q", skill.ErrInvalidLevel, args[1])
	}

	sk, err := svc.Promote(args[0], level)
	if err != nil {
		return fmt.Errorf("failed to promote skill: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Promoted %s to %s\n", sk.ID, sk.HierarchyLevel)
	return printJSON(sk)
}
