package main

import (
	"context"
	"io"
	"os"

	"github.com/autom8ter/dockit/errors"
	"github.com/autom8ter/dockit/wire"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func collectionsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "list collections and their document counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, v, false, func(ctx context.Context, sess *session) error {
				for _, name := range sess.db.Collections() {
					if err := printValue(cmd.OutOrStdout(), sess.settings.Output, map[string]any{
						"collection": name,
						"count":      sess.db.Collection(name).Count(ctx),
						"indexes":    len(sess.db.Collection(name).ListIndexes(ctx)),
					}); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func insertCmd(v *viper.Viper) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "insert <collection>",
		Short: "insert a yaml or json array of documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				bits []byte
				err  error
			)
			if file == "-" {
				bits, err = io.ReadAll(cmd.InOrStdin())
			} else {
				bits, err = os.ReadFile(file)
			}
			if err != nil {
				return errors.Wrap(err, errors.Validation, "failed to read documents")
			}
			docs, err := wire.ParseDocuments(bits)
			if err != nil {
				return err
			}
			return run(cmd, v, true, func(ctx context.Context, sess *session) error {
				ids, err := sess.db.Collection(args[0]).InsertMany(ctx, docs...)
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), sess.settings.Output, map[string]any{"inserted": ids})
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "file holding the documents, - reads stdin")
	return cmd
}

func updateCmd(v *viper.Viper) *cobra.Command {
	var filter, update string
	cmd := &cobra.Command{
		Use:     "update <collection>",
		Short:   "update the first document matching a filter",
		Example: `dockit update books --filter '{"title": "The Hobbit"}' --update '{"$set": {"price": 16.99}}'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := wire.ParseFilter([]byte(filter))
			if err != nil {
				return err
			}
			mutation, err := wire.ParseUpdate([]byte(update))
			if err != nil {
				return err
			}
			return run(cmd, v, true, func(ctx context.Context, sess *session) error {
				result, err := sess.db.Collection(args[0]).UpdateOne(ctx, f, mutation)
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), sess.settings.Output, result)
			})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "{}", "filter document")
	cmd.Flags().StringVar(&update, "update", "", "update document using $set, $unset and $inc")
	_ = cmd.MarkFlagRequired("update")
	return cmd
}

func deleteCmd(v *viper.Viper) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:     "delete <collection>",
		Short:   "delete the first document matching a filter",
		Example: `dockit delete books --filter '{"title": "Moby Dick"}'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := wire.ParseFilter([]byte(filter))
			if err != nil {
				return err
			}
			return run(cmd, v, true, func(ctx context.Context, sess *session) error {
				result, err := sess.db.Collection(args[0]).DeleteOne(ctx, f)
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), sess.settings.Output, result)
			})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "{}", "filter document")
	return cmd
}
