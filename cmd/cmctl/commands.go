package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tendant/content-core/pkg/contentcore"
)

// NewGetCommand creates the get command
func NewGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id> [id...]",
		Short: "Get items by id",
		Long:  `Get one item, or several with a single bulkGet call. Missing ids are skipped in bulk mode.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contentType, err := contentTypeFlag(cmd)
			if err != nil {
				return err
			}
			client := NewClientFromFlags(cmd)

			if len(args) == 1 {
				item, err := client.Get(cmd.Context(), contentType, args[0])
				if err != nil {
					return fmt.Errorf("get failed: %w", err)
				}
				if item == nil {
					return fmt.Errorf("get failed: %s %s: %w", contentType, args[0], contentcore.ErrNotFound)
				}
				return printResult(cmd, item, func(w io.Writer) { printItems(w, []*contentcore.RawItem{item}) })
			}

			items, err := client.BulkGet(cmd.Context(), contentType, args)
			if err != nil {
				return fmt.Errorf("bulk get failed: %w", err)
			}
			return printResult(cmd, items, func(w io.Writer) { printItems(w, items) })
		},
	}
}

// NewCreateCommand creates the create command
func NewCreateCommand() *cobra.Command {
	var data, id string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			contentType, err := contentTypeFlag(cmd)
			if err != nil {
				return err
			}
			attrs, err := parseData(data)
			if err != nil {
				return err
			}

			item, err := NewClientFromFlags(cmd).Create(cmd.Context(), contentType, attrs, contentcore.CreateOptions{ID: id, Overwrite: overwrite})
			if err != nil {
				return fmt.Errorf("create failed: %w", err)
			}
			return printResult(cmd, item, func(w io.Writer) {
				fmt.Fprintf(w, "Created %s %s (version %d)\n", item.Type, item.ID, item.Version)
			})
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "attributes as a JSON object")
	cmd.Flags().StringVar(&id, "id", "", "explicit item id")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing item with the same id")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

// NewUpdateCommand creates the update command
func NewUpdateCommand() *cobra.Command {
	var data string
	var version int64

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Partially update an item",
		Long:  `Merge the given attributes into an item. With --version the update fails if the item changed since.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contentType, err := contentTypeFlag(cmd)
			if err != nil {
				return err
			}
			attrs, err := parseData(data)
			if err != nil {
				return err
			}

			res, err := NewClientFromFlags(cmd).Update(cmd.Context(), contentType, args[0], attrs, contentcore.UpdateOptions{Version: version})
			if err != nil {
				return fmt.Errorf("update failed: %w", err)
			}
			return printResult(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "Updated %s %s (version %d)\n", res.Type, res.ID, res.Version)
			})
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "attributes to merge as a JSON object")
	cmd.Flags().Int64Var(&version, "version", 0, "expected current version")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

// NewDeleteCommand creates the delete command
func NewDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contentType, err := contentTypeFlag(cmd)
			if err != nil {
				return err
			}
			if err := NewClientFromFlags(cmd).Delete(cmd.Context(), contentType, args[0]); err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}
			return printResult(cmd, map[string]bool{"success": true}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %s %s\n", contentType, args[0])
			})
		},
	}
}

// NewSearchCommand creates the search command
func NewSearchCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search items of one content type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contentType, err := contentTypeFlag(cmd)
			if err != nil {
				return err
			}
			query := contentcore.SearchQuery{Limit: limit, Offset: offset}
			if len(args) == 1 {
				query.Text = args[0]
			}

			res, err := NewClientFromFlags(cmd).Search(cmd.Context(), contentType, query)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			return printResult(cmd, res, func(w io.Writer) {
				printItems(w, res.Hits)
				fmt.Fprintf(w, "%d of %d\n", len(res.Hits), res.Total)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "page size (server default when 0)")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of hits to skip")

	return cmd
}

// NewMSearchCommand creates the msearch command
func NewMSearchCommand() *cobra.Command {
	var types []string
	var limit int

	cmd := &cobra.Command{
		Use:   "msearch <text>",
		Short: "Search across content types through the search index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := NewClientFromFlags(cmd).MSearch(cmd.Context(), contentcore.MultiSearchQuery{
				Text:  args[0],
				Types: types,
				Limit: limit,
			})
			if err != nil {
				return fmt.Errorf("msearch failed: %w", err)
			}
			return printResult(cmd, res, func(w io.Writer) {
				for _, hit := range res.Hits {
					fmt.Fprintf(w, "%s\t%s\n", hit.Type, hit.ID)
				}
				fmt.Fprintf(w, "%d of %d\n", len(res.Hits), res.Total)
			})
		},
	}

	cmd.Flags().StringSliceVar(&types, "types", nil, "restrict to these content types")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum hits")

	return cmd
}

// NewCallCommand creates the call command
func NewCallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "call <fn> [arg-json]",
		Short: "Call any RPC function",
		Long:  `Call an RPC function by name. The argument defaults to an empty object. The raw result is printed.`,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := json.RawMessage(`{}`)
			if len(args) == 2 {
				parsed, err := parseData(args[1])
				if err != nil {
					return err
				}
				arg = parsed
			}

			var out json.RawMessage
			if err := NewClientFromFlags(cmd).Call(cmd.Context(), args[0], arg, &out); err != nil {
				return fmt.Errorf("call failed: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), out, true)
		},
	}
}

func parseData(data string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		return nil, errors.New("data is required")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, fmt.Errorf("data must be a JSON object: %w", err)
	}
	return json.RawMessage(trimmed), nil
}

// printResult writes v as JSON when --json is set and calls human otherwise
func printResult(cmd *cobra.Command, v any, human func(w io.Writer)) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), v, false)
	}
	human(cmd.OutOrStdout())
	return nil
}

func writeJSON(w io.Writer, v any, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func printItems(w io.Writer, items []*contentcore.RawItem) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tVERSION\tUPDATED\tATTRIBUTES")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			item.ID, item.Type, item.Version, item.UpdatedAt.Format("2006-01-02 15:04:05"), string(item.Attributes))
	}
	tw.Flush()
}
