package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/spf13/cobra"

	"github.com/noah-isme/cloudblog-api/internal/models"
)

func articlesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "articles",
		Short: "Read blog posts",
	}
	cmd.AddCommand(articlesListCmd(opts), articlesGetCmd(opts))
	return cmd
}

func articlesListCmd(opts *rootOptions) *cobra.Command {
	var (
		req     models.ArticleListRequest
		rawJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List posts as cards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			page, err := app.articles.Summaries(cmd.Context(), req)
			if err != nil {
				return err
			}
			if rawJSON {
				return printJSON(cmd.OutOrStdout(), page)
			}
			return printSummaries(cmd.OutOrStdout(), page)
		},
	}

	cmd.Flags().IntVar(&req.PageSize, "size", 10, "posts per page")
	cmd.Flags().IntVar(&req.PageNumber, "page", 1, "page number")
	cmd.Flags().StringVar(&req.Category, "category", "", "filter by category")
	cmd.Flags().StringVar(&req.Tag, "tag", "", "filter by tag")
	cmd.Flags().StringVar(&req.Keyword, "keyword", "", "filter by keyword")
	cmd.Flags().StringVar(&req.Status, "status", "", "filter by status (published, draft, archived)")
	cmd.Flags().BoolVar(&rawJSON, "json", false, "print the page as JSON")
	return cmd
}

func articlesGetCmd(opts *rootOptions) *cobra.Command {
	var markdown bool

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			article, err := app.articles.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !markdown {
				return printJSON(cmd.OutOrStdout(), article)
			}
			out, err := articleMarkdown(article)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.Flags().BoolVar(&markdown, "markdown", false, "render the post body as Markdown")
	return cmd
}

func printSummaries(w io.Writer, page *models.ArticleSummaryPage) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tDATE\tREAD\tTAGS")
	for _, item := range page.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d min\t%s\n", item.ID, item.Title, item.Date, item.ReadTime, strings.Join(item.Tags, ","))
	}
	fmt.Fprintf(tw, "\npage %d, %d of %d posts\n", page.PageNumber, len(page.Items), page.Total)
	return tw.Flush()
}

func articleMarkdown(a *models.Article) (string, error) {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	body, err := converter.ConvertString(a.Content)
	if err != nil {
		return "", fmt.Errorf("convert article %s: %w", a.ID, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", a.Title)
	if a.Author != "" || a.PublishTime != "" {
		fmt.Fprintf(&b, "_%s_\n\n", strings.TrimSpace(a.Author+" "+a.PublishTime))
	}
	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n")
	return b.String(), nil
}
