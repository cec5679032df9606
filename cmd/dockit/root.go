package main

import (
	"context"
	"os"

	"github.com/autom8ter/dockit"
	"github.com/autom8ter/dockit/errors"
	"github.com/autom8ter/dockit/kv"
	_ "github.com/autom8ter/dockit/kv/badger"
	"github.com/autom8ter/dockit/kv/registry"
	"github.com/autom8ter/dockit/persist"
	"github.com/autom8ter/dockit/util"
	"github.com/autom8ter/dockit/wire"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// settings are loaded from flags, DOCKIT_* environment variables and an optional yaml config file, in
// that order of precedence
type settings struct {
	dockit.Config `mapstructure:",squash"`
	// Provider is the registered key value provider databases are persisted to
	Provider string `mapstructure:"provider"`
	// StoragePath enables persistence. The database is loaded from it on start and saved to it after writes.
	StoragePath string `mapstructure:"storagePath"`
	// Fixtures maps collection names to yaml or json files of documents loaded on start
	Fixtures map[string]string `mapstructure:"fixtures"`
	// Output is the output format: json or yaml
	Output string `mapstructure:"output" validate:"omitempty,oneof=json yaml"`
}

var envKeys = map[string]string{
	"logLevel":         "DOCKIT_LOG_LEVEL",
	"maxSortDocuments": "DOCKIT_MAX_SORT_DOCUMENTS",
	"indexDegree":      "DOCKIT_INDEX_DEGREE",
	"metrics":          "DOCKIT_METRICS",
	"provider":         "DOCKIT_PROVIDER",
	"storagePath":      "DOCKIT_STORAGE_PATH",
	"output":           "DOCKIT_OUTPUT",
}

func rootCmd() *cobra.Command {
	v := viper.New()
	var configFile string
	cmd := &cobra.Command{
		Use:           "dockit",
		Short:         "query, aggregate and index json documents",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	defaults := dockit.DefaultConfig()
	flags := cmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "path to a yaml config file")
	flags.String("log-level", defaults.LogLevel, "log level: debug, info, warn or error")
	flags.Int("max-sort-documents", defaults.MaxSortDocuments, "max documents buffered by a sort no index covers (0 disables the cap)")
	flags.Int("index-degree", defaults.IndexDegree, "degree of the btrees backing collections and indexes")
	flags.String("provider", "badger", "key value provider used for persistence")
	flags.String("storage-path", "", "path the database is persisted to (empty disables persistence)")
	flags.StringToString("fixture", map[string]string{}, "collection=path of a yaml or json document array loaded on start")
	flags.StringP("output", "o", "json", "output format: json or yaml")

	for key, flag := range map[string]string{
		"logLevel":         "log-level",
		"maxSortDocuments": "max-sort-documents",
		"indexDegree":      "index-degree",
		"provider":         "provider",
		"storagePath":      "storage-path",
		"fixtures":         "fixture",
		"output":           "output",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}
	for key, env := range envKeys {
		_ = v.BindEnv(key, env)
	}
	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if configFile == "" {
			return nil
		}
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrap(err, errors.Validation, "failed to read config file %s", configFile)
		}
		return nil
	}
	cmd.AddCommand(
		initCmd(),
		collectionsCmd(v),
		insertCmd(v),
		updateCmd(v),
		deleteCmd(v),
		findCmd(v),
		aggregateCmd(v),
		indexesCmd(v),
		bookstoreCmd(v),
	)
	return cmd
}

func loadSettings(v *viper.Viper) (settings, error) {
	s := settings{Config: dockit.DefaultConfig(), Provider: "badger", Output: "json"}
	if err := v.Unmarshal(&s); err != nil {
		return s, errors.Wrap(err, errors.Validation, "failed to decode settings")
	}
	if err := util.ValidateStruct(&s); err != nil {
		return s, errors.Wrap(err, errors.Validation, "invalid settings")
	}
	return s, nil
}

// session is an open database along with the store it is persisted to, if any
type session struct {
	settings settings
	db       *dockit.DB
	store    kv.DB
}

func openSession(ctx context.Context, v *viper.Viper) (*session, error) {
	s, err := loadSettings(v)
	if err != nil {
		return nil, err
	}
	db, err := dockit.Open(ctx, dockit.WithConfig(s.Config))
	if err != nil {
		return nil, err
	}
	sess := &session{settings: s, db: db}
	if s.StoragePath != "" {
		store, err := registry.Open(s.Provider, map[string]any{"storage_path": s.StoragePath})
		if err != nil {
			_ = db.Close(ctx)
			return nil, err
		}
		sess.store = store
		if err := persist.Load(ctx, db, store); err != nil {
			_ = sess.close(ctx, false)
			return nil, err
		}
	}
	if err := loadFixtures(ctx, db, s.Fixtures); err != nil {
		_ = sess.close(ctx, false)
		return nil, err
	}
	return sess, nil
}

// loadFixtures seeds the fixture collections. Collections restored from the store are left as saved.
func loadFixtures(ctx context.Context, db *dockit.DB, fixtures map[string]string) error {
	for collection, path := range fixtures {
		if db.HasCollection(collection) {
			continue
		}
		bits, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, errors.NotFound, "failed to read fixture %s", path)
		}
		docs, err := wire.ParseDocuments(bits)
		if err != nil {
			return errors.Wrap(err, 0, "fixture %s", path)
		}
		if _, err := db.Collection(collection).InsertMany(ctx, docs...); err != nil {
			return err
		}
	}
	return nil
}

// close saves the database when it was written to and persistence is enabled
func (s *session) close(ctx context.Context, save bool) error {
	defer s.db.Close(ctx)
	if s.store == nil {
		return nil
	}
	if save {
		if err := persist.Save(ctx, s.db, s.store); err != nil {
			_ = s.store.Close()
			return err
		}
	}
	return s.store.Close()
}

// run opens a session, calls fn and closes the session
func run(cmd *cobra.Command, v *viper.Viper, save bool, fn func(ctx context.Context, sess *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	sess, err := openSession(ctx, v)
	if err != nil {
		return err
	}
	if err := fn(ctx, sess); err != nil {
		sess.db.Logger().Error(ctx, "command failed", err, map[string]any{"command": cmd.Name()})
		_ = sess.close(ctx, false)
		return err
	}
	return sess.close(ctx, save)
}
