package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"quorum/internal/history"
	"quorum/internal/synthesis"
)

var (
	histDomain  string
	histMode    string
	histSearch  string
	histOrderBy string
	histLimit   int
	histSince   string
	histTags    []string
	histNotes   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse past consultations",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd.Root(), args); err != nil {
			return err
		}
		return openHistory()
	},
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List consultations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := history.Filters{
			Domain:    histDomain,
			Mode:      histMode,
			TextQuery: histSearch,
			OrderBy:   histOrderBy,
			Limit:     histLimit,
		}
		if histSince != "" {
			d, err := time.ParseDuration(histSince)
			if err != nil {
				return fmt.Errorf("invalid --since duration: %w", err)
			}
			f.From = time.Now().Add(-d)
		}

		results, err := historyStore.List(f)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("no consultations found")
			return nil
		}
		for _, r := range results {
			query := r.Request.Query
			if len(query) > 60 {
				query = query[:57] + "..."
			}
			fmt.Printf("%s  %s  %-10s  %s\n",
				r.ID[:8], r.Timestamp.Local().Format("2006-01-02 15:04"), r.Request.Mode, query)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a consultation in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := historyStore.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("id:        %s\n", r.ID)
		fmt.Printf("time:      %s\n", r.Timestamp.Local().Format(time.RFC1123))
		fmt.Printf("mode:      %s\n", r.Request.Mode)
		if r.Request.Domain != "" {
			fmt.Printf("domain:    %s\n", r.Request.Domain)
		}
		if r.SessionID != "" {
			fmt.Printf("session:   %s\n", r.SessionID)
		}
		fmt.Printf("query:     %s\n\n", r.Request.Query)

		for _, m := range r.Responses {
			fmt.Printf("--- %s", m.PersonaID)
			if m.Provider != "" {
				fmt.Printf(" (%s/%s)", m.Provider, m.Model)
			}
			fmt.Println(" ---")
			if m.Err != "" {
				fmt.Printf("error: %s\n\n", m.Err)
				continue
			}
			fmt.Printf("%s\n\n", m.Content)
		}

		if r.Synthesis != "" {
			fmt.Printf("--- synthesis ---\n%s\n\n", r.Synthesis)
		}
		if r.Analysis != nil {
			fmt.Println(synthesis.FormatAnalysis(r.Analysis))
		}
		return nil
	},
}

var historyTagCmd = &cobra.Command{
	Use:   "tag [id]",
	Short: "Patch tags and notes on a consultation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var tags []string
		if cmd.Flags().Changed("tags") {
			tags = histTags
		}
		var notes *string
		if cmd.Flags().Changed("notes") {
			notes = &histNotes
		}
		if tags == nil && notes == nil {
			return fmt.Errorf("nothing to update, pass --tags and/or --notes")
		}
		if err := historyStore.UpdateMetadata(args[0], tags, notes); err != nil {
			return err
		}
		fmt.Println("updated", args[0])
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a consultation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := historyStore.Delete(args[0]); err != nil {
			return err
		}
		fmt.Println("deleted", args[0])
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage consultation sessions",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd.Root(), args); err != nil {
			return err
		}
		return openHistory()
	},
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := historyStore.ListSessions(false)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			state := "ended"
			if s.Active {
				state = "active"
			}
			line := fmt.Sprintf("%s  %s  %s", s.ID[:8], s.CreatedAt.Local().Format("2006-01-02 15:04"), state)
			if len(s.Tags) > 0 {
				line += "  [" + strings.Join(s.Tags, ", ") + "]"
			}
			fmt.Println(line)
		}
		return nil
	},
}

var sessionsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new session",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := historyStore.CreateSession(histTags)
		if err != nil {
			return err
		}
		fmt.Println(sess.ID)
		return nil
	},
}

var sessionsEndCmd = &cobra.Command{
	Use:   "end [id]",
	Short: "Mark a session inactive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := historyStore.EndSession(args[0]); err != nil {
			return err
		}
		fmt.Println("ended", args[0])
		return nil
	},
}

func init() {
	historyListCmd.Flags().StringVar(&histDomain, "domain", "", "filter by domain")
	historyListCmd.Flags().StringVar(&histMode, "mode", "", "filter by mode")
	historyListCmd.Flags().StringVar(&histSearch, "search", "", "substring match on query and synthesis")
	historyListCmd.Flags().StringVar(&histOrderBy, "order-by", "", "sort key: timestamp, query, mode, id")
	historyListCmd.Flags().IntVar(&histLimit, "limit", 20, "max rows")
	historyListCmd.Flags().StringVar(&histSince, "since", "", "only consultations newer than this duration (e.g. 72h)")

	historyTagCmd.Flags().StringSliceVar(&histTags, "tags", nil, "replacement tag list")
	historyTagCmd.Flags().StringVar(&histNotes, "notes", "", "replacement notes")

	sessionsNewCmd.Flags().StringSliceVar(&histTags, "tags", nil, "session tags")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyTagCmd, historyDeleteCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsNewCmd, sessionsEndCmd)
}
