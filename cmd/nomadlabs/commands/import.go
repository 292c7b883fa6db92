package commands

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/nomadlabs/nomadlabs"
	"github.com/nomadlabs/nomadlabs/internal/printer"
)

var importAuthor string

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Import markdown files as posts",
	Long: `Import every .md file in a directory as a post by the given author.

Frontmatter keys title, subtitle, slug, type, status, tags, abstract,
version, citations and cover set the post's metadata.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importAuthor, "author", "", "email of the posts' author (required)")
	_ = importCmd.MarkFlagRequired("author")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	files, err := filepath.Glob(filepath.Join(args[0], "*.md"))
	if err != nil {
		return printer.Error("Invalid directory", err.Error())
	}
	if len(files) == 0 {
		printer.Warning("no markdown files in %s", args[0])
		return nil
	}
	sort.Strings(files)

	store, err := openStore()
	if err != nil {
		return printer.Error("Cannot open database", err.Error())
	}
	defer store.Close()

	author, err := store.GetUserByEmail(importAuthor)
	if err != nil {
		return printer.Error("Unknown author", importAuthor+": "+err.Error())
	}
	if !author.Role.Satisfies(nomadlabs.RoleAuthor) {
		printer.Warning("%s has role %s; importing anyway", author.Email, author.Role)
	}

	imported := 0
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			printer.Warning("skip %s: %v", f, err)
			continue
		}
		p, err := store.CreatePost(author.ID, nomadlabs.PostInputFromMarkdown(f, string(data)))
		if err != nil {
			printer.Warning("skip %s: %v", f, err)
			continue
		}
		printer.Step("%s -> /posts/%s (%s)", filepath.Base(f), p.Slug, p.Status)
		imported++
	}
	printer.Success("imported %d of %d files", imported, len(files))
	return nil
}
