package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/starford/luzzle/internal"
	"github.com/starford/luzzle/internal/apperr"
	"github.com/starford/luzzle/internal/markdown"
	"github.com/starford/luzzle/internal/mcpserver"
	"github.com/starford/luzzle/internal/models"
	"github.com/starford/luzzle/internal/piece"
)

func commands(stdout io.Writer) []*cli.Command {
	dryRun := &cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "Report what would change without writing"}
	verbose := &cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Also list skipped items"}

	return []*cli.Command{
		{
			Name:   "serve",
			Usage:  "Serve the HTTP API and keep the index in sync with the storage root",
			Action: serve,
		},
		{
			Name:  "sync",
			Usage: "Sync piece types and every piece into the index, then prune what is gone",
			Flags: []cli.Flag{
				dryRun,
				verbose,
				&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Rewrite items even when unchanged"},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				ws, _, cleanup, err := openWorkspace(cmd)
				if err != nil {
					return err
				}
				defer cleanup()

				pr := newPrinter(stdout, cmd.Bool("verbose"))
				opts := piece.SyncOptions{DryRun: cmd.Bool("dry-run"), Force: cmd.Bool("force")}
				internal.Reconcile(ctx, ws, opts, pr.result)
				pr.summary()
				return pr.err()
			},
		},
		{
			Name:  "prune",
			Usage: "Remove index entries whose file or schema no longer exists",
			Flags: []cli.Flag{dryRun, verbose},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				ws, _, cleanup, err := openWorkspace(cmd)
				if err != nil {
					return err
				}
				defer cleanup()

				pr := newPrinter(stdout, cmd.Bool("verbose"))
				opts := piece.SyncOptions{DryRun: cmd.Bool("dry-run")}
				for res := range ws.Registry.PruneItems(ctx, ws.DB, opts) {
					pr.result(res)
				}
				for res := range ws.Registry.Prune(ctx, ws.DB, opts) {
					pr.result(res)
				}
				pr.summary()
				return pr.err()
			},
		},
		{
			Name:      "create",
			Usage:     "Create a piece from a title",
			ArgsUsage: "<type> <title>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "Root-relative directory for the new file"},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				if cmd.NArg() != 2 {
					return fmt.Errorf("usage: luzzle create <type> <title>")
				}
				ws, _, cleanup, err := openWorkspace(cmd)
				if err != nil {
					return err
				}
				defer cleanup()

				p, err := ws.Registry.GetPiece(cmd.Args().Get(0))
				if err != nil {
					return err
				}
				doc, err := p.Create(cmd.String("dir"), cmd.Args().Get(1))
				if err != nil {
					return err
				}
				return save(ctx, ws, stdout, p, doc)
			},
		},
		{
			Name:  "field",
			Usage: "Edit frontmatter fields",
			Commands: []*cli.Command{
				{
					Name:      "set",
					Usage:     "Set a field; array fields append every value given",
					ArgsUsage: "<path> <field> <value>...",
					Action: func(ctx context.Context, cmd *cli.Command) error {
						if cmd.NArg() < 3 {
							return fmt.Errorf("usage: luzzle field set <path> <field> <value>...")
						}
						args := cmd.Args().Slice()
						var raw any = args[2]
						if len(args) > 3 {
							raw = args[2:]
						}
						return editField(ctx, cmd, stdout, args[0], func(p *piece.Piece, doc *markdown.Document) (*markdown.Document, error) {
							return p.SetField(ctx, doc, args[1], raw)
						})
					},
				},
				{
					Name:      "remove",
					Usage:     "Remove a field, or only the matching value of an array field",
					ArgsUsage: "<path> <field> [value]",
					Action: func(ctx context.Context, cmd *cli.Command) error {
						if cmd.NArg() < 2 || cmd.NArg() > 3 {
							return fmt.Errorf("usage: luzzle field remove <path> <field> [value]")
						}
						args := cmd.Args().Slice()
						var match []any
						if len(args) == 3 {
							match = append(match, args[2])
						}
						return editField(ctx, cmd, stdout, args[0], func(p *piece.Piece, doc *markdown.Document) (*markdown.Document, error) {
							return p.RemoveField(doc, args[1], match...)
						})
					},
				},
			},
		},
		{
			Name:      "validate",
			Usage:     "Validate pieces against their schema (all pieces when no path is given)",
			ArgsUsage: "[path]...",
			Action: func(_ context.Context, cmd *cli.Command) error {
				ws, _, cleanup, err := openWorkspace(cmd)
				if err != nil {
					return err
				}
				defer cleanup()

				paths, err := piecePaths(ws, cmd.Args().Slice())
				if err != nil {
					return err
				}
				pr := newPrinter(stdout, false)
				for _, path := range paths {
					if err := validateOne(ws, path); err != nil {
						pr.result(models.Result{File: path, Err: err})
					}
				}
				fmt.Fprintf(stdout, "%d piece(s) checked, %d invalid\n", len(paths), pr.failed)
				return pr.err()
			},
		},
		{
			Name:  "outdated",
			Usage: "List pieces modified since they were last synced",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				ws, _, cleanup, err := openWorkspace(cmd)
				if err != nil {
					return err
				}
				defer cleanup()

				paths, err := piecePaths(ws, nil)
				if err != nil {
					return err
				}
				for _, path := range paths {
					p, err := ws.Registry.PieceFor(path)
					if err != nil {
						return err
					}
					outdated, err := p.IsOutdated(ctx, ws.DB, path)
					if err != nil {
						return err
					}
					if outdated {
						fmt.Fprintln(stdout, path)
					}
				}
				return nil
			},
		},
		{
			Name:  "mcp",
			Usage: "Serve the MCP tools over stdio",
			Action: func(_ context.Context, cmd *cli.Command) error {
				ws, logger, cleanup, err := openWorkspace(cmd)
				if err != nil {
					return err
				}
				defer cleanup()
				return mcpserver.New(ws.Registry, ws.DB, logger).ServeStdio()
			},
		},
	}
}

// editField loads a piece, applies fn and saves the result.
func editField(ctx context.Context, cmd *cli.Command, stdout io.Writer, path string,
	fn func(*piece.Piece, *markdown.Document) (*markdown.Document, error)) error {
	ws, _, cleanup, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	p, err := ws.Registry.PieceFor(path)
	if err != nil {
		return err
	}
	doc, err := p.Get(path)
	if err != nil {
		return err
	}
	doc, err = fn(p, doc)
	if err != nil {
		return err
	}
	return save(ctx, ws, stdout, p, doc)
}

// save writes doc and syncs it into the index.
func save(ctx context.Context, ws *internal.Workspace, stdout io.Writer, p *piece.Piece, doc *markdown.Document) error {
	if err := p.Write(doc); err != nil {
		return err
	}
	pr := newPrinter(stdout, true)
	if res, ok := ws.Registry.SyncFile(ctx, ws.DB, doc.FilePath); ok {
		pr.result(res)
	}
	return pr.err()
}

func piecePaths(ws *internal.Workspace, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	files, err := ws.Registry.GetFilesIn("", true)
	if err != nil {
		return nil, err
	}
	return files.Pieces, nil
}

func validateOne(ws *internal.Workspace, path string) error {
	p, err := ws.Registry.PieceFor(path)
	if err != nil {
		return err
	}
	doc, err := p.Get(path)
	if err != nil {
		return err
	}
	if err := p.Validate(doc); err != nil {
		var verr *apperr.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("%d error(s): %v", len(verr.Errors), verr.Messages())
		}
		return err
	}
	return nil
}
