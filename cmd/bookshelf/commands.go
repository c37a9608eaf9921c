package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/goliatone/go-book-catalog/catalog"
)

func bookCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "book",
		Usage:     "show a book and its reviews",
		ArgsUsage: "<book-id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, 0, "book id")
			if err != nil {
				return err
			}

			client := rt.container.Client()
			book, err := client.GetBook(c.Context, id)
			if err != nil {
				return err
			}
			reviews, err := client.ListReviews(c.Context, id)
			if err != nil {
				return err
			}

			if rt.json {
				return writeJSON(c.App.Writer, struct {
					catalog.Book
					Reviews []catalog.Review `json:"reviews"`
				}{book, reviews})
			}
			return renderBook(c.App.Writer, book, reviews)
		},
	}
}

func reviewsCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "reviews",
		Usage:     "list the reviews of a book",
		ArgsUsage: "<book-id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, 0, "book id")
			if err != nil {
				return err
			}
			reviews, err := rt.container.Client().ListReviews(c.Context, id)
			if err != nil {
				return err
			}
			if rt.json {
				return writeJSON(c.App.Writer, reviews)
			}
			return renderReviews(c.App.Writer, reviews)
		},
	}
}

func favoritesCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "favorites",
		Usage: "list the signed-in user's favorite books",
		Action: func(c *cli.Context) error {
			books, err := rt.container.Client().ListFavorites(c.Context)
			if err != nil {
				return err
			}
			if rt.json {
				return writeJSON(c.App.Writer, books)
			}
			return renderBooks(c.App.Writer, books)
		},
	}
}

func myReviewsCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "my-reviews",
		Usage: "list the reviews written by the signed-in user",
		Action: func(c *cli.Context) error {
			reviews, err := rt.container.Client().ListUserReviews(c.Context)
			if err != nil {
				return err
			}
			if rt.json {
				return writeJSON(c.App.Writer, reviews)
			}
			return renderUserReviews(c.App.Writer, reviews)
		},
	}
}

func favoriteCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "favorite",
		Usage:     "add or remove a book from favorites",
		ArgsUsage: "<book-id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, 0, "book id")
			if err != nil {
				return err
			}
			msg, err := rt.container.Mutations().ToggleFavorite(c.Context, id)
			if err != nil {
				return err
			}
			if msg == "" {
				msg = "Favorites updated"
			}
			_, err = fmt.Fprintln(c.App.Writer, msg)
			return err
		},
	}
}

func reviewCommand(rt *runtime) *cli.Command {
	inputFlags := []cli.Flag{
		&cli.IntFlag{Name: "rating", Aliases: []string{"r"}, Usage: "1 to 5", Required: true},
		&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "review body", Required: true},
	}
	input := func(c *cli.Context) catalog.ReviewInput {
		return catalog.ReviewInput{Rating: c.Int("rating"), Text: c.String("text")}
	}

	return &cli.Command{
		Name:  "review",
		Usage: "write, edit or delete your reviews",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "review a book",
				ArgsUsage: "<book-id>",
				Flags:     inputFlags,
				Action: func(c *cli.Context) error {
					id, err := requireArg(c, 0, "book id")
					if err != nil {
						return err
					}
					review, err := rt.container.Mutations().CreateReview(c.Context, id, input(c))
					if err != nil {
						return err
					}
					return rt.printReview(c, "Created", review)
				},
			},
			{
				Name:      "edit",
				Usage:     "change one of your reviews",
				ArgsUsage: "<review-id>",
				Flags:     inputFlags,
				Action: func(c *cli.Context) error {
					id, err := requireArg(c, 0, "review id")
					if err != nil {
						return err
					}
					review, err := rt.container.Mutations().UpdateReview(c.Context, id, input(c))
					if err != nil {
						return err
					}
					return rt.printReview(c, "Updated", review)
				},
			},
			{
				Name:      "delete",
				Usage:     "delete one of your reviews",
				ArgsUsage: "<review-id>",
				Action: func(c *cli.Context) error {
					id, err := requireArg(c, 0, "review id")
					if err != nil {
						return err
					}
					if err := rt.container.Mutations().DeleteReview(c.Context, id); err != nil {
						return err
					}
					_, err = fmt.Fprintf(c.App.Writer, "Deleted review %s\n", id)
					return err
				},
			},
		},
	}
}

func (rt *runtime) printReview(c *cli.Context, verb string, review catalog.Review) error {
	if rt.json {
		return writeJSON(c.App.Writer, review)
	}
	_, err := fmt.Fprintf(c.App.Writer, "%s review %s (%d/5)\n", verb, review.ID, review.Rating)
	return err
}

func requireArg(c *cli.Context, i int, name string) (string, error) {
	if v := c.Args().Get(i); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("missing %s, usage: %s %s", name, c.Command.FullName(), c.Command.ArgsUsage)
}
