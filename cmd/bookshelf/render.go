package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/goliatone/go-book-catalog/catalog"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderPage(w io.Writer, res catalog.PageResult) error {
	if err := renderBooks(w, res.Books); err != nil {
		return err
	}

	source := "api"
	if res.FromCache {
		source = "cache"
	}
	fmt.Fprintf(w, "\nPage %d of %d, %d books (%s)\n", res.Page, res.TotalPages, res.Total, source)
	if len(res.AvailableGenres) > 0 {
		fmt.Fprintf(w, "Genres: %s\n", strings.Join(res.AvailableGenres, ", "))
	}
	return nil
}

func renderBooks(w io.Writer, books []catalog.Book) error {
	if len(books) == 0 {
		_, err := fmt.Fprintln(w, "No books found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tRATING\tREVIEWS\t")
	for _, b := range books {
		fmt.Fprintf(tw, "%s\t%s%s\t%s\t%s\t%s\t\n", b.ID, b.Title, favoriteMark(b), b.Author, rating(b.AverageRating), count(b.ReviewCount))
	}
	return tw.Flush()
}

func renderBook(w io.Writer, b catalog.Book, reviews []catalog.Review) error {
	fmt.Fprintf(w, "%s%s\nby %s\n", b.Title, favoriteMark(b), b.Author)
	if len(b.Genres) > 0 {
		fmt.Fprintf(w, "Genres: %s\n", strings.Join(b.Genres, ", "))
	}
	fmt.Fprintf(w, "Rating: %s (%s reviews)\n", rating(b.AverageRating), count(b.ReviewCount))
	if b.Description != "" {
		fmt.Fprintf(w, "\n%s\n", b.Description)
	}
	fmt.Fprintln(w)
	return renderReviews(w, reviews)
}

func renderReviews(w io.Writer, reviews []catalog.Review) error {
	if len(reviews) == 0 {
		_, err := fmt.Fprintln(w, "No reviews yet.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRATING\tTEXT\t")
	for _, r := range reviews {
		fmt.Fprintf(tw, "%s\t%d/5\t%s\t\n", r.ID, r.Rating, r.Text)
	}
	return tw.Flush()
}

func renderUserReviews(w io.Writer, reviews []catalog.Review) error {
	if len(reviews) == 0 {
		_, err := fmt.Fprintln(w, "You have not written any reviews.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tBOOK\tRATING\tTEXT\t")
	for _, r := range reviews {
		fmt.Fprintf(tw, "%s\t%s\t%d/5\t%s\t\n", r.ID, r.BookID, r.Rating, r.Text)
	}
	return tw.Flush()
}

func favoriteMark(b catalog.Book) string {
	if b.IsFavorite != nil && *b.IsFavorite {
		return " *"
	}
	return ""
}

func rating(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

func count(v *int) string {
	if v == nil {
		return "0"
	}
	return strconv.Itoa(*v)
}
