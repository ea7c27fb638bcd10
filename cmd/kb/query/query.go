// Package querycmder provides the query command for semantic search against a
// running kb server.
package querycmder

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/kb/pkg/cliui"
	"github.com/papercomputeco/kb/pkg/client"
	"github.com/papercomputeco/kb/pkg/config"
)

var (
	rankStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	previewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
)

type queryCommander struct {
	query     string
	topK      int
	format    string
	apiTarget string

	viper *viper.Viper
}

const queryLongDesc string = `Query a running kb server.

Embeds the query text and returns the stored documents most similar to it,
ranked by cosine similarity. Ties keep ingestion order.

Output formats:
  text       Ranked list with score and preview (default)
  markdown   Full documents rendered as markdown
  json       The raw results, one object per hit
  ids        Document ids only, one per line

Examples:
  kb query "how is logging configured"
  kb query "error handling" --top 10
  kb query "snapshot format" --format markdown
  kb query "retry" --format ids | xargs -n1 echo`

const queryShortDesc string = "Query the knowledge base"

func NewQueryCmd() *cobra.Command {
	cmder := &queryCommander{}

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: queryShortDesc,
		Long:  queryLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Registry, []string{config.FlagAPITarget})
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]
			return cmder.run(cmd, cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Registry, config.FlagAPITarget, &cmder.apiTarget)
	cmd.Flags().IntVarP(&cmder.topK, "top", "k", 5, "Number of results to return")
	cmd.Flags().StringVarP(&cmder.format, "format", "f", "text", "Output format (text, markdown, json, ids)")

	return cmd
}

func (c *queryCommander) run(cmd *cobra.Command, w io.Writer) error {
	kb, err := client.New(c.viper.GetString("client.api_target"))
	if err != nil {
		return err
	}

	hits, err := kb.Query(cmd.Context(), c.query, c.topK)
	if err != nil {
		return err
	}

	switch c.format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	case "ids":
		for _, h := range hits {
			fmt.Fprintln(w, h.ID)
		}
		return nil
	case "markdown":
		rendered, err := cliui.RenderMarkdown(Markdown(c.query, hits))
		if err != nil {
			return err
		}
		fmt.Fprint(w, rendered)
		return nil
	case "text":
		c.printText(w, hits)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text, markdown, json or ids)", c.format)
	}
}

func (c *queryCommander) printText(w io.Writer, hits []client.Hit) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "\n%s %s\n\n",
		headerStyle.Render("Results for:"),
		idStyle.Render(fmt.Sprintf("%q", c.query)),
	)

	for i, h := range hits {
		fmt.Fprintf(w, "  %s  %s  %s\n",
			rankStyle.Render(fmt.Sprintf("#%d", i+1)),
			scoreStyle.Render(fmt.Sprintf("score: %.4f", h.Score)),
			idStyle.Render(h.ID),
		)

		preview := strings.Join(strings.Fields(h.Document), " ")
		width := cliui.TerminalWidth(os.Stdout) - 2
		fmt.Fprintf(w, "  %s\n\n", previewStyle.Render(ansi.Truncate(preview, width, "…")))
	}
}

// Markdown formats hits as a markdown document, one section per hit with
// the document text fenced by its file extension.
func Markdown(query string, hits []client.Hit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Results for %q\n\n", query)

	if len(hits) == 0 {
		b.WriteString("_No results found._\n")
		return b.String()
	}

	for i, h := range hits {
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, h.ID)
		fmt.Fprintf(&b, "score: `%.4f`\n\n", h.Score)

		lang := ""
		if t, ok := h.Metadata["type"].(string); ok {
			lang = strings.TrimPrefix(t, ".")
		}
		if lang == "md" {
			b.WriteString(h.Document)
			b.WriteString("\n\n")
			continue
		}
		fmt.Fprintf(&b, "```%s\n%s\n```\n\n", lang, h.Document)
	}

	return b.String()
}
