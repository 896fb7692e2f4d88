package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pressroom/internal/app"
	"pressroom/internal/config"
	"pressroom/internal/db"
	"pressroom/internal/domain"
	"pressroom/internal/engine"
	"pressroom/internal/events"
	"pressroom/internal/repo"
	"pressroom/internal/server"
	"pressroom/internal/status"
)

var rootCmd = &cobra.Command{
	Use:   "press",
	Short: "Pressroom CLI",
	Long: `Pressroom runs the production stage of an academic journal: accepted
articles cycle through rounds of typesetting and proofreading until
their galleys are final.

Concepts:
- Workspace: a directory with a .pressroom database and optional pressroom.yml.
- Article: the manuscript under production; moves typesetting -> proofing -> completed.
- Round: one iteration of the cycle; advancing closes the previous round.
- Typesetting assignment: the round's single task for a typesetter,
  finished by a manager review (accept / corrections / proofing).
- Correction: a galley fix request, tracked by content checksum.
- Proofing task: a proofreader works through the galleys and hands back notes.
- Event log: every workflow change, view with 'press log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PRESSROOM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("article", "", "article id (defaults to the workspace's only article)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("article", rootCmd.PersistentFlags().Lookup("article"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(articleCmd())
	rootCmd.AddCommand(galleyCmd())
	rootCmd.AddCommand(roundCmd())
	rootCmd.AddCommand(typesetCmd())
	rootCmd.AddCommand(correctionCmd())
	rootCmd.AddCommand(proofCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var journalID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialise a workspace with a default pressroom.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(journalID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&journalID, "journal", "journal", "journal id")
	return cmd
}

func articleCmd() *cobra.Command {
	article := &cobra.Command{Use: "article", Short: "Manage articles"}
	article.AddCommand(articleRegisterCmd())
	article.AddCommand(articleListCmd())
	article.AddCommand(articleShowCmd())
	article.AddCommand(articlePendingCmd())
	return article
}

func articleRegisterCmd() *cobra.Command {
	var id, title string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an article for production",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.RegisterArticle(ctx, id, title, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "article id (generated when empty)")
	cmd.Flags().StringVar(&title, "title", "", "article title")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func articleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListArticles(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Stage", "Created"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Title, a.Stage, a.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func articleShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show an article",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				articleID, err := app.ResolveArticle(ctx, e.Repo, viper.GetString("article"))
				if err != nil {
					return err
				}
				a, err := e.Repo.GetArticle(ctx, articleID)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func articlePendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Show what still blocks the article",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				articleID, err := app.ResolveArticle(ctx, e.Repo, viper.GetString("article"))
				if err != nil {
					return err
				}
				report, err := e.PendingTasks(ctx, articleID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				if !report.Blocked() {
					fmt.Println("Nothing pending.")
					return nil
				}
				if report.NoGalleys {
					fmt.Println("- no galleys uploaded")
				}
				for _, label := range report.GalleysMissingImages {
					fmt.Printf("- galley %s is missing images\n", label)
				}
				for _, task := range report.OpenTasks {
					fmt.Printf("- %s\n", task)
				}
				return nil
			})
		},
	}
}

func galleyCmd() *cobra.Command {
	galley := &cobra.Command{Use: "galley", Short: "Manage galleys"}
	galley.AddCommand(galleyAddCmd())
	galley.AddCommand(galleyListCmd())
	return galley
}

func galleyAddCmd() *cobra.Command {
	var id, label, path string
	var missing []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a galley file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				articleID, err := app.ResolveArticle(ctx, e.Repo, viper.GetString("article"))
				if err != nil {
					return err
				}
				g, err := e.AddGalley(ctx, engine.GalleyOptions{
					ID:            id,
					ArticleID:     articleID,
					Label:         label,
					Path:          path,
					MissingImages: missing,
					ActorID:       viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "galley id (generated when empty)")
	cmd.Flags().StringVar(&label, "label", "", "galley label, e.g. PDF")
	cmd.Flags().StringVar(&path, "path", "", "path to the galley file")
	cmd.Flags().StringSliceVar(&missing, "missing-image", nil, "referenced image the file store lacks (repeatable)")
	_ = cmd.MarkFlagRequired("label")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func galleyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the article's galleys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				articleID, err := app.ResolveArticle(ctx, e.Repo, viper.GetString("article"))
				if err != nil {
					return err
				}
				items, err := e.Repo.ListGalleys(ctx, articleID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Label", "Path", "Missing images"})
				for _, g := range items {
					tw.AppendRow(table.Row{g.ID, g.Label, g.Path, strings.Join(g.MissingImages, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func roundCmd() *cobra.Command {
	round := &cobra.Command{Use: "round", Short: "Manage production rounds"}
	round.AddCommand(roundAdvanceCmd())
	round.AddCommand(roundListCmd())
	round.AddCommand(roundCurrentCmd())
	round.AddCommand(roundCloseCmd())
	return round
}

func roundAdvanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance",
		Short: "Close the current round and open its successor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				articleID, err := app.ResolveArticle(ctx, e.Repo, viper.GetString("article"))
				if err != nil {
					return err
				}
				rd, err := e.AdvanceRound(ctx, articleID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(rd)
			})
		},
	}
}

func roundListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the article's rounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				articleID, err := app.ResolveArticle(ctx, e.Repo, viper.GetString("article"))
				if err != nil {
					return err
				}
				items, err := e.Repo.ListRounds(ctx, articleID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Round", "Created"})
				for _, rd := range items {
					tw.AppendRow(table.Row{rd.ID, rd.RoundNumber, rd.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func roundCurrentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Show the current round",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				articleID, err := app.ResolveArticle(ctx, e.Repo, viper.GetString("article"))
				if err != nil {
					return err
				}
				rd, err := e.CurrentRound(ctx, articleID)
				if err != nil {
					return err
				}
				return printJSONOrTable(rd)
			})
		},
	}
}

func roundCloseCmd() *cobra.Command {
	var roundID string
	cmd := &cobra.Command{
		Use:   "close",
		Short: "Cancel everything still open in a round",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := resolveRound(ctx, e, roundID)
				if err != nil {
					return err
				}
				if err := e.CloseRound(ctx, id, viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Printf("round %s closed\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&roundID, "round", "", "round id (defaults to the article's current round)")
	return cmd
}

func typesetCmd() *cobra.Command {
	typeset := &cobra.Command{Use: "typeset", Short: "Manage typesetting assignments"}
	typeset.AddCommand(typesetAssignCmd())
	typeset.AddCommand(typesetListCmd())
	typeset.AddCommand(typesetActionCmd("accept", "Accept a typesetting task",
		func(e engine.Engine) func(context.Context, string, string) (domain.Assignment, error) {
			return e.AcceptAssignment
		}))
	typeset.AddCommand(typesetActionCmd("decline", "Decline a typesetting task",
		func(e engine.Engine) func(context.Context, string, string) (domain.Assignment, error) {
			return e.DeclineAssignment
		}))
	typeset.AddCommand(typesetActionCmd("cancel", "Cancel a typesetting task",
		func(e engine.Engine) func(context.Context, string, string) (domain.Assignment, error) {
			return e.CancelAssignment
		}))
	typeset.AddCommand(typesetActionCmd("reopen", "Reopen a finished typesetting task",
		func(e engine.Engine) func(context.Context, string, string) (domain.Assignment, error) {
			return e.ReopenAssignment
		}))
	typeset.AddCommand(typesetCompleteCmd())
	typeset.AddCommand(typesetReviewCmd())
	typeset.AddCommand(typesetWorklistCmd())
	return typeset
}

func typesetWorklistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worklist <typesetter-id>",
		Short: "List a typesetter's assignments across all articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAssignmentsForTypesetter(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Round", "Status", "Due"})
				for _, a := range items {
					due := ""
					if a.Due != nil {
						due = *a.Due
					}
					tw.AppendRow(table.Row{a.ID, a.RoundID, status.Friendly(a.Status), due})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func typesetAssignCmd() *cobra.Command {
	var roundID, typesetter, manager, due, task string
	var notify bool
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign the round to a typesetter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := resolveRound(ctx, e, roundID)
				if err != nil {
					return err
				}
				a, err := e.AssignTypesetter(ctx, engine.AssignOptions{
					RoundID:      id,
					TypesetterID: typesetter,
					ManagerID:    manager,
					Due:          due,
					Task:         task,
					Notify:       notify,
					ActorID:      viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&roundID, "round", "", "round id (defaults to the article's current round)")
	cmd.Flags().StringVar(&typesetter, "typesetter", "", "typesetter id")
	cmd.Flags().StringVar(&manager, "manager", "", "production manager id")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&task, "task", "", "task description")
	cmd.Flags().BoolVar(&notify, "notify", false, "mark the typesetter as notified")
	_ = cmd.MarkFlagRequired("typesetter")
	return cmd
}

func typesetActionCmd(use, short string, pick func(engine.Engine) func(context.Context, string, string) (domain.Assignment, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <assignment-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := pick(e)(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func typesetCompleteCmd() *cobra.Command {
	var note string
	var galleys []string
	cmd := &cobra.Command{
		Use:   "complete <assignment-id>",
		Short: "Complete a typesetting task, linking produced galleys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CompleteAssignment(ctx, args[0], note, galleys, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "typesetter note")
	cmd.Flags().StringSliceVar(&galleys, "galley", nil, "produced galley id (repeatable)")
	return cmd
}

func typesetReviewCmd() *cobra.Command {
	var decision string
	cmd := &cobra.Command{
		Use:   "review <assignment-id>",
		Short: "Review a completed typesetting task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.ReviewAssignment(ctx, args[0], decision, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decision", "", "accept | corrections | proofing")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func typesetListCmd() *cobra.Command {
	var roundID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the round's typesetting assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := resolveRound(ctx, e, roundID)
				if err != nil {
					return err
				}
				items, err := e.Repo.ListAssignmentsByRound(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Typesetter", "Status", "Due", "Galleys"})
				now := time.Now()
				for _, a := range items {
					due := ""
					if a.Due != nil {
						due = *a.Due
						if status.Overdue(a.Due, now) && !status.AssignmentTerminal(a) {
							due += " (overdue)"
						}
					}
					typesetter := ""
					if a.TypesetterID != nil {
						typesetter = *a.TypesetterID
					}
					tw.AppendRow(table.Row{a.ID, typesetter, status.Friendly(a.Status), due, len(a.GalleyIDs)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&roundID, "round", "", "round id (defaults to the article's current round)")
	return cmd
}

func correctionCmd() *cobra.Command {
	correction := &cobra.Command{Use: "correction", Short: "Manage galley corrections"}
	correction.AddCommand(correctionRequestCmd())
	correction.AddCommand(correctionListCmd())
	correction.AddCommand(correctionCloseCmd("complete", "Mark a correction completed", false))
	correction.AddCommand(correctionCloseCmd("decline", "Mark a correction declined", true))
	correction.AddCommand(correctionStatusCmd())
	return correction
}

func correctionRequestCmd() *cobra.Command {
	var assignmentID, galleyID string
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request a correction on a galley",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.RequestCorrection(ctx, assignmentID, galleyID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&assignmentID, "assignment", "", "assignment id")
	cmd.Flags().StringVar(&galleyID, "galley", "", "galley id")
	_ = cmd.MarkFlagRequired("assignment")
	_ = cmd.MarkFlagRequired("galley")
	return cmd
}

func correctionListCmd() *cobra.Command {
	var assignmentID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an assignment's corrections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListCorrections(ctx, assignmentID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&assignmentID, "assignment", "", "assignment id")
	_ = cmd.MarkFlagRequired("assignment")
	return cmd
}

func correctionCloseCmd(use, short string, declined bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <correction-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var (
					c   domain.Correction
					err error
				)
				if declined {
					c, err = e.DeclineCorrection(ctx, args[0], viper.GetString("actor-id"))
				} else {
					c, err = e.CompleteCorrection(ctx, args[0], viper.GetString("actor-id"))
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func correctionStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <correction-id>",
		Short: "Report whether the galley changed since the request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				corrected, err := e.IsCorrected(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]bool{"corrected": corrected})
				}
				if corrected {
					fmt.Println("galley has changed since the correction was requested")
				} else {
					fmt.Println("galley unchanged")
				}
				return nil
			})
		},
	}
}

func proofCmd() *cobra.Command {
	proof := &cobra.Command{Use: "proof", Short: "Manage proofreading tasks"}
	proof.AddCommand(proofAssignCmd())
	proof.AddCommand(proofListCmd())
	proof.AddCommand(proofActionCmd("accept", "Accept a proofing task",
		func(e engine.Engine) func(context.Context, string, string) (domain.ProofingTask, error) {
			return e.AcceptProofing
		}))
	proof.AddCommand(proofActionCmd("decline", "Decline a proofing task",
		func(e engine.Engine) func(context.Context, string, string) (domain.ProofingTask, error) {
			return e.DeclineProofing
		}))
	proof.AddCommand(proofActionCmd("cancel", "Cancel a proofing task",
		func(e engine.Engine) func(context.Context, string, string) (domain.ProofingTask, error) {
			return e.CancelProofing
		}))
	proof.AddCommand(proofActionCmd("reset", "Reset a finished proofing task",
		func(e engine.Engine) func(context.Context, string, string) (domain.ProofingTask, error) {
			return e.ResetProofing
		}))
	proof.AddCommand(proofCompleteCmd())
	proof.AddCommand(proofGalleyCmd())
	proof.AddCommand(proofAnnotateCmd())
	proof.AddCommand(proofUnproofedCmd())
	proof.AddCommand(proofWorklistCmd())
	return proof
}

func proofWorklistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worklist <proofreader-id>",
		Short: "List a proofreader's tasks across all articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProofingForProofreader(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Round", "Status", "Due"})
				for _, p := range items {
					due := ""
					if p.Due != nil {
						due = *p.Due
					}
					tw.AppendRow(table.Row{p.ID, p.RoundID, status.Friendly(p.Status), due})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func proofAssignCmd() *cobra.Command {
	var roundID, proofreader, manager, due, task string
	var notify bool
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign a proofreader to the round",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := resolveRound(ctx, e, roundID)
				if err != nil {
					return err
				}
				p, err := e.AssignProofreader(ctx, engine.ProofingOptions{
					RoundID:       id,
					ProofreaderID: proofreader,
					ManagerID:     manager,
					Due:           due,
					Task:          task,
					Notify:        notify,
					ActorID:       viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&roundID, "round", "", "round id (defaults to the article's current round)")
	cmd.Flags().StringVar(&proofreader, "proofreader", "", "proofreader id")
	cmd.Flags().StringVar(&manager, "manager", "", "production manager id")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&task, "task", "", "task description")
	cmd.Flags().BoolVar(&notify, "notify", false, "mark the proofreader as notified")
	_ = cmd.MarkFlagRequired("proofreader")
	return cmd
}

func proofActionCmd(use, short string, pick func(engine.Engine) func(context.Context, string, string) (domain.ProofingTask, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := pick(e)(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func proofCompleteCmd() *cobra.Command {
	var notes string
	var force bool
	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Complete a proofing task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if !force {
					left, err := e.UnproofedGalleys(ctx, args[0])
					if err != nil {
						return err
					}
					if len(left) > 0 {
						labels := make([]string, 0, len(left))
						for _, g := range left {
							labels = append(labels, g.Label)
						}
						return fmt.Errorf("galleys remain unproofed (%s); use --force to complete anyway", strings.Join(labels, ", "))
					}
				}
				p, err := e.CompleteProofing(ctx, args[0], notes, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "proofreader notes")
	cmd.Flags().BoolVar(&force, "force", false, "complete even with unproofed galleys")
	return cmd
}

func proofGalleyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "galley <task-id> <galley-id>",
		Short: "Mark a galley proofed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.MarkGalleyProofed(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func proofAnnotateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "annotate <task-id>",
		Short: "Attach an annotated proof file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.AddAnnotatedFile(ctx, args[0], path, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "path to the annotated file")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func proofUnproofedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unproofed <task-id>",
		Short: "List galleys the task has not yet proofed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.UnproofedGalleys(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func proofListCmd() *cobra.Command {
	var roundID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the round's proofing tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := resolveRound(ctx, e, roundID)
				if err != nil {
					return err
				}
				items, err := e.Repo.ListProofingTasksByRound(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Proofreader", "Status", "Due", "Proofed"})
				for _, p := range items {
					proofreader := ""
					if p.ProofreaderID != nil {
						proofreader = *p.ProofreaderID
					}
					due := ""
					if p.Due != nil {
						due = *p.Due
					}
					tw.AppendRow(table.Row{p.ID, proofreader, status.Friendly(p.Status), due, len(p.ProofedGalleyIDs)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&roundID, "round", "", "round id (defaults to the article's current round)")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.LatestEvents(ctx, n, viper.GetString("article"), evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor"})
				for _, ev := range items {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.EntityKind + "/" + ev.EntityID, ev.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func auditCmd() *cobra.Command {
	var n int
	var targetKind, targetID string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAuditEntries(ctx, n, targetKind, targetID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Level", "Description", "Actor"})
				for _, entry := range items {
					tw.AppendRow(table.Row{entry.TS, entry.Level, entry.Description, entry.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 50, "number of entries")
	cmd.Flags().StringVar(&targetKind, "target-kind", "", "target kind filter")
	cmd.Flags().StringVar(&targetID, "target-id", "", "target id filter")
	return cmd
}

func apikeyCmd() *cobra.Command {
	apikey := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	apikey.AddCommand(apikeyCreateCmd())
	apikey.AddCommand(apikeyListCmd())
	apikey.AddCommand(apikeyDeleteCmd())
	return apikey
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				raw, key, err := createAPIKey(ctx, e, actorID, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "key": raw})
				}
				fmt.Printf("API key created for %s. Store it now; it is not shown again:\n%s\n", key.ActorID, raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key name")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyActor bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			env, err := app.Open(viper.GetString("workspace"), events.LogBus{Log: log}, log)
			if err != nil {
				return err
			}
			defer env.Close()

			secret := os.Getenv("PRESSROOM_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("PRESSROOM_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   env.Engine,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:              secret,
					AllowLegacyActorHeader: allowLegacyActor,
					Log:                    log,
				},
				Log: log,
			})
			if err != nil {
				return err
			}
			server.StartWebhookNotifier(cmd.Context(), env.Engine, log)

			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info().Str("addr", addr).Str("base_path", basePath).Msg("serving Pressroom API")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacyActor, "allow-legacy-actor-header", false, "accept unauthenticated X-Actor-Id (deprecated)")
	return cmd
}

// --- helpers ---

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	log := newLogger()
	env, err := app.Open(viper.GetString("workspace"), events.LogBus{Log: log}, log)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env.Engine)
}

// resolveRound prefers an explicit id and falls back to the resolved
// article's current round.
func resolveRound(ctx context.Context, e engine.Engine, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	articleID, err := app.ResolveArticle(ctx, e.Repo, viper.GetString("article"))
	if err != nil {
		return "", err
	}
	rd, err := e.CurrentRound(ctx, articleID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", fmt.Errorf("article %s has no rounds; run: press round advance", articleID)
	}
	if err != nil {
		return "", err
	}
	return rd.ID, nil
}

func createAPIKey(ctx context.Context, e engine.Engine, actorID, name string) (string, domain.APIKey, error) {
	raw := uuid.New().String() + uuid.New().String()
	key := domain.APIKey{
		ID:      uuid.New().String(),
		ActorID: actorID,
		Name:    name,
		KeyHash: repo.HashAPIKey(raw),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return "", domain.APIKey{}, err
	}
	return raw, key, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
