package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/MolForge/internal/application/generation"
	"github.com/turtacn/MolForge/pkg/errors"
	gentypes "github.com/turtacn/MolForge/pkg/types/generation"
)

// NewHistoryCmd creates the history command group.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse your saved generations",
		Long:  "List, show and export the generations saved for the user identified by --token.",
	}
	cmd.AddCommand(newHistoryListCmd(), newHistoryShowCmd(), newHistoryExportCmd())
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved generations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := authenticatedContext(cmd)
			if err != nil {
				return err
			}
			orch := generation.NewOrchestrator(cc.Generator, cc.History, cc.Logger)
			if err := orch.LoadHistory(cmd.Context(), cc.Session); err != nil {
				return err
			}
			list := HistoryListResult(orch.View().History)
			if len(list) == 0 && strings.ToLower(cc.OutputFormat) == "text" {
				fmt.Fprintln(cmd.OutOrStdout(), "No saved generations.")
				return nil
			}
			return PrintResult(cmd, list)
		},
	}
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|#index>",
		Short: "Show the molecules of a saved generation",
		Long: "Show the molecules of a saved generation, selected by record id or by its\n" +
			"position in the list (#0 is the newest).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := authenticatedContext(cmd)
			if err != nil {
				return err
			}
			orch := generation.NewOrchestrator(cc.Generator, cc.History, cc.Logger)
			if err := orch.LoadHistory(cmd.Context(), cc.Session); err != nil {
				return err
			}
			if err := selectHistory(orch, args[0]); err != nil {
				return err
			}
			return writeView(cmd, cc, orch.View())
		},
	}
}

// selectHistory picks an entry by "#<index>" or by id.
func selectHistory(orch *generation.Orchestrator, ref string) error {
	if strings.HasPrefix(ref, "#") {
		i, err := strconv.Atoi(strings.TrimPrefix(ref, "#"))
		if err != nil {
			return errors.InvalidParam("history index must be a number").WithDetail(ref)
		}
		return orch.SelectHistoryIndex(i)
	}
	return orch.SelectHistory(ref)
}

func newHistoryExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <id>",
		Short: "Archive a saved generation and print a download link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := authenticatedContext(cmd)
			if err != nil {
				return err
			}
			out, err := cc.Client.WithToken(cc.Session.Token).History().Export(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, ExportResult(*out))
		},
	}
}

func authenticatedContext(cmd *cobra.Command) (*CLIContext, error) {
	cc, err := GetCLIContext(cmd)
	if err != nil {
		return nil, err
	}
	if !cc.Session.Authenticated() {
		return nil, errors.Unauthorized("history requires a token with a subject; pass --token or set MOLFORGE_TOKEN")
	}
	return cc, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Result types
// ─────────────────────────────────────────────────────────────────────────────

// HistoryListResult prints as one line per record.
type HistoryListResult []gentypes.HistoryRecord

func (l HistoryListResult) String() string {
	return FormatTable(l.TableHeaders(), l.TableRows())
}

// TableHeaders implements tableProvider.
func (l HistoryListResult) TableHeaders() []string {
	return []string{"#", "ID", "CREATED", "SEED", "MOLECULES"}
}

// TableRows implements tableProvider.
func (l HistoryListResult) TableRows() [][]string {
	rows := make([][]string, 0, len(l))
	for i, r := range l {
		rows = append(rows, []string{
			"#" + strconv.Itoa(i),
			r.ID,
			r.CreatedAt.Local().Format(time.DateTime),
			truncate(r.Smiles, 40),
			strconv.Itoa(len(r.GeneratedMolecules)),
		})
	}
	return rows
}

// ExportResult prints the download link of an exported record.
type ExportResult gentypes.ExportResponse

func (e ExportResult) String() string {
	return fmt.Sprintf("%s\n(expires %s)", e.URL, e.ExpiresAt.Local().Format(time.DateTime))
}

// TableHeaders implements tableProvider.
func (e ExportResult) TableHeaders() []string {
	return []string{"RECORD", "OBJECT", "EXPIRES", "URL"}
}

// TableRows implements tableProvider.
func (e ExportResult) TableRows() [][]string {
	return [][]string{{e.RecordID, e.ObjectKey, e.ExpiresAt.Local().Format(time.DateTime), e.URL}}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
