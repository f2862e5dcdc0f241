package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/xiaot623/gogo/convstore/internal/app"
	"github.com/xiaot623/gogo/convstore/internal/domain"
	"github.com/xiaot623/gogo/convstore/internal/history"
	"github.com/xiaot623/gogo/convstore/internal/service"
)

var (
	listUserID  string
	listAgentID string
	listLimit   int
	showPage    int
	showSize    int
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionShowCmd, sessionDeleteCmd)

	sessionListCmd.Flags().StringVar(&listUserID, "user", "", "only sessions of this user")
	sessionListCmd.Flags().StringVar(&listAgentID, "agent", "", "only sessions bound to this agent")
	sessionListCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum number of sessions")

	sessionShowCmd.Flags().IntVar(&showPage, "page", 1, "page to show")
	sessionShowCmd.Flags().IntVar(&showSize, "page-size", 0, "messages per page (default from config)")
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sessions",
}

func openService(cmd *cobra.Command) (*service.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := setupLogging(cfg)
	return app.NewService(cmd.Context(), cfg, logger)
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		list, err := svc.ListSessions(cmd.Context(), domain.ListSessionsOptions{
			UserID:  listUserID,
			AgentID: listAgentID,
			Limit:   listLimit,
		})
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}

		if len(list) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tUSER\tAGENT\tUPDATED")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				s.ID,
				s.Name,
				s.UserID,
				s.AgentID,
				s.UpdatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a page of a session's messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		view := svc.GetPaginatedMessages(cmd.Context(), args[0], showPage, showSize, false)
		if view.Err() != nil {
			return fmt.Errorf("show session: %w", view.Err())
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"session_id":  view.SessionID,
			"total":       view.Total,
			"page":        view.Page,
			"total_pages": view.TotalPages,
			"messages":    history.ProjectAll(view.Messages, history.ProjectOptions{}),
		})
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session and its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.DeleteSession(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Session %s deleted.\n", args[0])
		return nil
	},
}
