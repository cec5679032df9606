package main

import (
	"os"
	"path/filepath"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/autom8ter/dockit"
	"github.com/autom8ter/dockit/errors"
	"github.com/autom8ter/dockit/testutil"
	"github.com/spf13/cobra"
)

var configTemplate = `# {{ .name }} dockit config, generated {{ now | date "2006-01-02" }}
logLevel: {{ .logLevel | lower | quote }}
maxSortDocuments: {{ .maxSortDocuments }}
indexDegree: {{ .indexDegree }}
metrics: false
output: json
{{- if .storagePath }}
provider: badger
storagePath: {{ .storagePath | quote }}
{{- end }}
fixtures:
  {{ .collection }}: {{ list .path "fixtures" (printf "%s.yaml" .collection) | join "/" | clean | quote }}
`

func initCmd() *cobra.Command {
	var (
		projectPath string
		name        string
		collection  string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "create a dockit config and a books fixture to run queries against",
		Long: `init writes dockit.yaml and a books fixture to the project directory. The config enables
persistence when --storage-path is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			storagePath, err := cmd.Flags().GetString("storage-path")
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Join(projectPath, "fixtures"), 0755); err != nil {
				return errors.Wrap(err, errors.Internal, "failed to create project")
			}
			if err := os.WriteFile(filepath.Join(projectPath, "fixtures", collection+".yaml"), testutil.BooksYAML(), 0644); err != nil {
				return errors.Wrap(err, errors.Internal, "failed to write fixture")
			}
			tmpl, err := template.New("config").Funcs(sprig.TxtFuncMap()).Parse(configTemplate)
			if err != nil {
				return errors.Wrap(err, errors.Internal, "failed to parse config template")
			}
			defaults := dockit.DefaultConfig()
			f, err := os.Create(filepath.Join(projectPath, "dockit.yaml"))
			if err != nil {
				return errors.Wrap(err, errors.Internal, "failed to create config")
			}
			defer f.Close()
			if err := tmpl.Execute(f, map[string]any{
				"name":             name,
				"path":             projectPath,
				"collection":       collection,
				"logLevel":         defaults.LogLevel,
				"storagePath":      storagePath,
				"maxSortDocuments": defaults.MaxSortDocuments,
				"indexDegree":      defaults.IndexDegree,
			}); err != nil {
				return errors.Wrap(err, errors.Internal, "failed to render config")
			}
			cmd.Printf("new project created: %v\n", projectPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&projectPath, "path", "p", ".", "path to project directory")
	cmd.Flags().StringVarP(&name, "name", "n", "bookstore", "name of the project")
	cmd.Flags().StringVar(&collection, "collection", testutil.BooksCollection, "collection the fixture is loaded into")
	return cmd
}
