package main

import (
	"context"

	"github.com/autom8ter/dockit"
	"github.com/autom8ter/dockit/wire"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type findFlags struct {
	filter     string
	sort       string
	projection string
	skip       int
	limit      int
	explain    bool
}

func (f findFlags) options() (dockit.Filter, []dockit.FindOption, error) {
	filter, err := wire.ParseFilter([]byte(f.filter))
	if err != nil {
		return nil, nil, err
	}
	sort, err := wire.ParseSort([]byte(f.sort))
	if err != nil {
		return nil, nil, err
	}
	projection, err := wire.ParseProjection([]byte(f.projection))
	if err != nil {
		return nil, nil, err
	}
	return filter, []dockit.FindOption{
		dockit.WithSort(sort...),
		dockit.WithProjection(projection),
		dockit.WithSkip(f.skip),
		dockit.WithLimit(f.limit),
	}, nil
}

func findCmd(v *viper.Viper) *cobra.Command {
	var flags findFlags
	cmd := &cobra.Command{
		Use:     "find <collection>",
		Short:   "find documents matching a filter",
		Example: `dockit find books --filter '{"published_year": {"$gt": 1950}}' --sort '{"price": -1}' --projection '{"title": 1, "_id": 0}' --limit 5`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, opts, err := flags.options()
			if err != nil {
				return err
			}
			return run(cmd, v, false, func(ctx context.Context, sess *session) error {
				c := sess.db.Collection(args[0])
				if flags.explain {
					result, err := c.Explain(ctx, filter, opts...)
					if err != nil {
						return err
					}
					return printValue(cmd.OutOrStdout(), sess.settings.Output, result)
				}
				cursor, err := c.Find(ctx, filter, opts...)
				if err != nil {
					return err
				}
				docs, err := cursor.All(ctx)
				if err != nil {
					return err
				}
				return printDocuments(cmd.OutOrStdout(), sess.settings.Output, docs)
			})
		},
	}
	cmd.Flags().StringVar(&flags.filter, "filter", "{}", "filter document")
	cmd.Flags().StringVar(&flags.sort, "sort", "{}", "sort document, ex: {\"price\": -1}")
	cmd.Flags().StringVar(&flags.projection, "projection", "{}", "projection document, ex: {\"title\": 1}")
	cmd.Flags().IntVar(&flags.skip, "skip", 0, "number of documents to skip")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "max number of documents to return (0 returns every document)")
	cmd.Flags().BoolVar(&flags.explain, "explain", false, "report the query plan instead of the documents")
	return cmd
}

func aggregateCmd(v *viper.Viper) *cobra.Command {
	var pipeline string
	cmd := &cobra.Command{
		Use:     "aggregate <collection>",
		Short:   "run an aggregation pipeline",
		Example: `dockit aggregate books --pipeline '[{"$group": {"_id": "$genre", "averagePrice": {"$avg": "$price"}}}, {"$sort": {"averagePrice": -1}}]'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stages, err := wire.ParsePipeline([]byte(pipeline))
			if err != nil {
				return err
			}
			return run(cmd, v, false, func(ctx context.Context, sess *session) error {
				docs, err := sess.db.Collection(args[0]).AggregateAll(ctx, stages)
				if err != nil {
					return err
				}
				return printDocuments(cmd.OutOrStdout(), sess.settings.Output, docs)
			})
		},
	}
	cmd.Flags().StringVarP(&pipeline, "pipeline", "p", "[]", "pipeline of $match, $group, $sort, $limit, $skip and $project stages")
	return cmd
}
