package main

import (
	"context"

	"github.com/autom8ter/dockit/wire"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func indexesCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indexes",
		Short: "list, create and drop indexes",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <collection>",
			Short: "list the indexes of a collection in creation order",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, v, false, func(ctx context.Context, sess *session) error {
					for _, index := range sess.db.Collection(args[0]).ListIndexes(ctx) {
						if err := printValue(cmd.OutOrStdout(), sess.settings.Output, map[string]any{
							"name":   index.Name(),
							"fields": index.Fields,
							"dense":  index.Dense,
						}); err != nil {
							return err
						}
					}
					return nil
				})
			},
		},
		createIndexCmd(v),
		dropIndexCmd(v),
	)
	return cmd
}

func createIndexCmd(v *viper.Viper) *cobra.Command {
	var (
		keys  string
		dense bool
	)
	cmd := &cobra.Command{
		Use:     "create <collection>",
		Short:   "create an index",
		Example: `dockit indexes create books --keys '{"author": 1, "published_year": -1}'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descriptor, err := wire.ParseIndex([]byte(keys), dense)
			if err != nil {
				return err
			}
			return run(cmd, v, true, func(ctx context.Context, sess *session) error {
				index, err := sess.db.Collection(args[0]).CreateIndex(ctx, descriptor)
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), sess.settings.Output, map[string]any{"created": index.Name()})
			})
		},
	}
	cmd.Flags().StringVar(&keys, "keys", "", "ordered index keys, ex: {\"title\": 1}")
	cmd.Flags().BoolVar(&dense, "dense", false, "index documents missing every indexed field")
	_ = cmd.MarkFlagRequired("keys")
	return cmd
}

func dropIndexCmd(v *viper.Viper) *cobra.Command {
	var keys string
	cmd := &cobra.Command{
		Use:   "drop <collection>",
		Short: "drop an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descriptor, err := wire.ParseIndex([]byte(keys), false)
			if err != nil {
				return err
			}
			return run(cmd, v, true, func(ctx context.Context, sess *session) error {
				if err := sess.db.Collection(args[0]).DropIndex(ctx, descriptor); err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), sess.settings.Output, map[string]any{"dropped": descriptor.Name()})
			})
		},
	}
	cmd.Flags().StringVar(&keys, "keys", "", "ordered index keys, ex: {\"title\": 1}")
	_ = cmd.MarkFlagRequired("keys")
	return cmd
}
