package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/MolForge/internal/application/generation"
	domain "github.com/turtacn/MolForge/internal/domain/generation"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/pkg/errors"
	gentypes "github.com/turtacn/MolForge/pkg/types/generation"
)

// NewGenerateCmd creates the generate command.  Numeric flags are taken as
// text and coerced the same way the generation form is, so a malformed
// value travels to the service as null instead of failing here.
func NewGenerateCmd() *cobra.Command {
	form := domain.DefaultForm()

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate candidate molecules from a seed structure",
		Long: "Generate candidate molecules similar to a seed SMILES with the CMA-ES sampler,\n" +
			"optimising QED.  With a token the generation is saved to your history.",
		Example: `  molforge generate --smiles "CCO" --num 5
  molforge generate --smiles "c1ccccc1" --min-similarity 0.5 -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, form)
		},
	}

	f := cmd.Flags()
	f.StringVar(&form.Seed, "smiles", form.Seed, "seed structure (SMILES)")
	f.StringVarP(&form.NumMolecules, "num", "n", form.NumMolecules, "number of molecules to generate")
	f.StringVar(&form.MinSimilarity, "min-similarity", form.MinSimilarity, "minimum similarity to the seed")
	f.StringVar(&form.Particles, "particles", form.Particles, "CMA-ES particle count")
	f.StringVar(&form.Iterations, "iterations", form.Iterations, "CMA-ES iteration count")
	return cmd
}

func runGenerate(cmd *cobra.Command, form domain.Form) error {
	cc, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	if strings.TrimSpace(form.Seed) == "" {
		return errors.New(errors.ErrCodeGenerationEmptySeed, "seed structure must not be empty")
	}

	orch := generation.NewOrchestrator(cc.Generator, cc.History, cc.Logger)
	cc.Logger.Debug("submitting generation",
		logging.String("smiles", form.Seed),
		logging.Bool("authenticated", cc.Session.Authenticated()))

	submitErr := orch.Submit(cmd.Context(), cc.Session, form)
	view := orch.View()
	if err := writeView(cmd, cc, view); err != nil {
		return err
	}
	return submitErr
}

// GenerateResult is the machine-readable outcome of a generation.
type GenerateResult struct {
	Candidates []CandidateView `json:"candidates"`
	Saved      bool            `json:"saved"`
	Warning    string          `json:"warning,omitempty"`
	Alert      string          `json:"alert,omitempty"`
}

// CandidateView is a candidate with its depiction.
type CandidateView struct {
	gentypes.Candidate
	DepictionURL string `json:"depictionUrl,omitempty"`
}

// TableHeaders implements tableProvider.
func (r GenerateResult) TableHeaders() []string {
	return []string{"#", "SMILES", "SCORE", "DEPICTION"}
}

// TableRows implements tableProvider.
func (r GenerateResult) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Candidates))
	for i, c := range r.Candidates {
		rows = append(rows, []string{strconv.Itoa(i + 1), c.Structure, FormatNumber(c.Score), c.DepictionURL})
	}
	return rows
}

func newCandidateViews(candidates []gentypes.Candidate, r StructureRenderer) []CandidateView {
	out := make([]CandidateView, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, CandidateView{Candidate: c, DepictionURL: r.Depict(c.Structure).URL})
	}
	return out
}

// writeView prints the orchestrator view in the selected output format.
func writeView(cmd *cobra.Command, cc *CLIContext, view generation.View) error {
	result := GenerateResult{
		Candidates: newCandidateViews(view.Candidates, cc.Renderer),
		Saved:      cc.Session.Authenticated() && view.Alert == "" && view.Warning != generation.WarningHistoryNotSaved,
		Warning:    view.Warning,
		Alert:      view.Alert,
	}

	switch strings.ToLower(cc.OutputFormat) {
	case "json", "table":
		return PrintResult(cmd, result)
	}

	cw := NewCardWriter(cmd.OutOrStdout(), cc.Renderer, cc.NoColor)
	if view.Alert != "" {
		cw.WriteAlert(view.Alert)
		return nil
	}
	cw.WriteCandidates(view.Candidates)
	cw.WriteWarning(view.Warning)
	return nil
}
