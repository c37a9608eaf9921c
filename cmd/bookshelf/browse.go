package main

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/goliatone/go-book-catalog/catalog"
)

const browsePrompt = "[n]ext [p]rev [g]oto N [f]avorite ID [r]efresh [q]uit > "

func browseCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "browse",
		Usage: "list pages of books, optionally searched, filtered and sorted",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "page", Aliases: []string{"p"}, Value: 1, Usage: "1-based page number"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: catalog.DefaultLimit, Usage: "books per page"},
			&cli.StringFlag{Name: "search", Aliases: []string{"q"}, Usage: "free text search"},
			&cli.StringFlag{Name: "genre", Aliases: []string{"g"}, Value: catalog.AllGenres, Usage: "genre filter"},
			&cli.StringFlag{Name: "sort", Aliases: []string{"s"}, Value: string(catalog.SortTitle), Usage: "title, author, rating or reviews"},
			&cli.StringFlag{Name: "order", Aliases: []string{"o"}, Usage: "asc or desc, defaults by sort key"},
			&cli.IntFlag{Name: "pages", Value: 1, Usage: "number of consecutive pages to print"},
			&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}, Usage: "page through results with commands read from stdin"},
		},
		Action: func(c *cli.Context) error {
			req, err := pageRequest(c)
			if err != nil {
				return err
			}
			if c.Bool("interactive") {
				return rt.browseInteractive(c, req)
			}
			return rt.browsePages(c, req, c.Int("pages"))
		},
	}
}

func pageRequest(c *cli.Context) (catalog.PageRequest, error) {
	sort, ok := catalog.ParseSortKey(c.String("sort"))
	if !ok {
		return catalog.PageRequest{}, fmt.Errorf("unknown sort %q", c.String("sort"))
	}
	var order catalog.SortOrder
	if raw := c.String("order"); raw != "" {
		if order, ok = catalog.ParseSortOrder(raw); !ok {
			return catalog.PageRequest{}, fmt.Errorf("unknown order %q", raw)
		}
	}

	return catalog.PageRequest{
		Page:   max(c.Int("page"), 1),
		Limit:  c.Int("limit"),
		Search: c.String("search"),
		Genre:  c.String("genre"),
		Sort:   sort,
		Order:  order,
	}, nil
}

// browsePages prints up to count pages starting at req.Page, stopping after the last page.
func (rt *runtime) browsePages(c *cli.Context, req catalog.PageRequest, count int) error {
	for i := 0; i < max(count, 1); i++ {
		res, err := rt.container.Catalog().FetchBooksPage(c.Context, req)
		if err != nil {
			return err
		}
		if err := rt.printPage(c, res); err != nil {
			return err
		}
		if req.Page >= res.TotalPages {
			return nil
		}
		req.Page++
	}
	return nil
}

// browseInteractive shows req and then follows navigation commands from the app's
// reader until it is exhausted or the user quits.
func (rt *runtime) browseInteractive(c *cli.Context, req catalog.PageRequest) error {
	out := c.App.Writer
	scanner := bufio.NewScanner(c.App.Reader)

	for {
		res, err := rt.container.Catalog().FetchBooksPage(c.Context, req)
		if err != nil {
			return err
		}
		if err := rt.printPage(c, res); err != nil {
			return err
		}

		fmt.Fprint(out, browsePrompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		fmt.Fprintln(out)

		cmd, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		arg = strings.TrimSpace(arg)
		switch strings.ToLower(cmd) {
		case "", "n", "next":
			if req.Page < res.TotalPages {
				req.Page++
			}
		case "p", "prev":
			if req.Page > 1 {
				req.Page--
			}
		case "g", "goto":
			n, err := strconv.Atoi(arg)
			if err != nil || n < 1 || n > res.TotalPages {
				fmt.Fprintf(out, "No page %q, choose 1-%d\n", arg, res.TotalPages)
				continue
			}
			req.Page = n
		case "f", "favorite":
			if arg == "" {
				fmt.Fprintln(out, "Usage: favorite <book-id>")
				continue
			}
			msg, err := rt.container.Mutations().ToggleFavorite(c.Context, arg)
			if err != nil {
				fmt.Fprintf(out, "Could not update favorites: %v\n", err)
				continue
			}
			fmt.Fprintln(out, msg)
		case "r", "refresh":
			rt.container.Catalog().Invalidate()
		case "q", "quit", "exit":
			return nil
		default:
			fmt.Fprintf(out, "Unknown command %q\n", cmd)
		}
	}
}

func (rt *runtime) printPage(c *cli.Context, res catalog.PageResult) error {
	if rt.json {
		return writeJSON(c.App.Writer, res)
	}
	return renderPage(c.App.Writer, res)
}
