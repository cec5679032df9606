package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/autom8ter/dockit"
	"github.com/autom8ter/dockit/errors"
	"github.com/autom8ter/dockit/util"
)

func printDocuments(w io.Writer, format string, docs dockit.Documents) error {
	for _, doc := range docs {
		if err := printBytes(w, format, doc.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func printValue(w io.Writer, format string, value any) error {
	bits, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, errors.Internal, "failed to encode output")
	}
	return printBytes(w, format, bits)
}

func printBytes(w io.Writer, format string, bits []byte) error {
	if format == "yaml" {
		yml, err := util.JSONToYAML(bits)
		if err != nil {
			return errors.Wrap(err, errors.Internal, "failed to encode output")
		}
		_, err = fmt.Fprintf(w, "---\n%s", yml)
		return err
	}
	_, err := fmt.Fprintln(w, string(bits))
	return err
}
