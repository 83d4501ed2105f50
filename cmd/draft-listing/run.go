package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/raine/listing-draft-bot/config"
	"github.com/raine/listing-draft-bot/internal/backend"
	"github.com/raine/listing-draft-bot/internal/listing"
	"github.com/raine/listing-draft-bot/internal/llm"
	"github.com/raine/listing-draft-bot/internal/pipeline"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once and print the draft",
	Long:  "Run market research, comparables search and drafting for one item. The item is given as --description and --category, or identified from --image files.",
	RunE:  runDraft,
}

var (
	runDescription string
	runCategory    string
	runImages      []string
	runJSON        bool
)

func init() {
	runCmd.Flags().StringVarP(&runDescription, "description", "d", "", "Item description")
	runCmd.Flags().StringVarP(&runCategory, "category", "c", "", "Item category")
	runCmd.Flags().StringSliceVarP(&runImages, "image", "i", nil, "Photo of the item (repeatable); identifies description and category")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the draft as JSON")

	rootCmd.AddCommand(runCmd)
}

func runDraft(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	cfg := config.FromEnv()
	backends := backend.NewFactory(backend.Options{
		Defaults:      cfg.Credentials,
		MarketplaceID: cfg.MarketplaceID,
		EbayBaseURL:   cfg.EbayBaseURL,
	})

	store, history, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ident := listing.ItemIdentification{Description: runDescription, Category: runCategory}
	if len(runImages) > 0 {
		gemini := backends.Gemini(cfg.Credentials)
		if gemini == nil {
			return errors.New("GEMINI_API_KEY is required to identify images")
		}
		identified, err := identifyImages(ctx, llm.NewCachedIdentifier(gemini, store), runImages)
		if err != nil {
			return err
		}
		// Flags override what the photos suggest
		if ident.Description == "" {
			ident.Description = identified.Description
		}
		if ident.Category == "" {
			ident.Category = identified.Category
		}
		fmt.Fprintf(os.Stderr, "Identified: %s (%s)\n", ident.Description, ident.Category)
	}

	orchestrator := pipeline.New(pipeline.Options{
		Backends: backends,
		History:  history,
		OnProgress: func(event pipeline.ProgressEvent) {
			if !event.State.Terminal() {
				fmt.Fprintf(os.Stderr, "... %s\n", event.State)
			}
		},
	})
	orchestrator.SetCredentials(ctx, cfg.Credentials)

	d, err := orchestrator.Run(ctx, ident)
	if errors.Is(err, pipeline.ErrIncompleteIdentification) {
		return errors.New("--description and --category (or --image) are required")
	}
	if err != nil {
		return err
	}

	if runJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}
	printDraft(cmd, *d)
	return nil
}

func identifyImages(ctx context.Context, identifier llm.Identifier, paths []string) (*listing.ItemIdentification, error) {
	if len(paths) > llm.MaxImages {
		return nil, fmt.Errorf("at most %d images are supported", llm.MaxImages)
	}

	images := make([][]byte, len(paths))
	g, _ := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}
			images[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return identifier.Identify(ctx, images)
}

func printDraft(cmd *cobra.Command, d listing.ListingDraft) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, d.SuggestedTitle)
	fmt.Fprintln(out, strings.Repeat("=", len([]rune(d.SuggestedTitle))))
	fmt.Fprintf(out, "Price:     %s\n", d.SuggestedPriceRange)
	fmt.Fprintf(out, "Condition: %s\n", d.SuggestedCondition)
	fmt.Fprintf(out, "Category:  %s\n\n", d.SuggestedCategory)
	fmt.Fprintln(out, d.ItemDescription)

	if len(d.ExampleSoldListings) > 0 {
		fmt.Fprintln(out, "\nComparables:")
		for _, c := range d.ExampleSoldListings {
			fmt.Fprintf(out, "  %s - %s\n", c.Price, c.Title)
		}
	}
	if len(d.GroundingSources) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for _, s := range d.GroundingSources {
			fmt.Fprintf(out, "  %s\n", s.URI)
		}
	}
}
