package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/windmill-io/windmill/internal/cli/ui"
	"github.com/windmill-io/windmill/internal/handler"
	"github.com/windmill-io/windmill/internal/metadata"
)

func newValidateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file|->",
		Short: "Check descriptor dicts against the schema and a round trip",
		Long: `Validate a JSON file holding one descriptor dict or a list of them.
Gzipped files are detected and decompressed. Each descriptor must match the
descriptor schema and survive being reconstructed and dumped unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			dicts, err := decodeDescriptors(raw)
			if err != nil {
				fmt.Fprint(cmd.ErrOrStderr(), ui.ValidationError(args[0], []string{err.Error()}, opts.noColor))
				return errReported
			}

			validator, err := metadata.DefaultValidator()
			if err != nil {
				return err
			}
			builder, err := handler.NewBuilder(handler.Options{Validator: validator})
			if err != nil {
				return err
			}

			var problems []string
			for i, dict := range dicts {
				for _, err := range checkDescriptor(builder, validator, dict) {
					problems = append(problems, fmt.Sprintf("entry %d (%s): %v", i, typeOf(dict), err))
				}
			}
			if len(problems) > 0 {
				fmt.Fprint(cmd.ErrOrStderr(), ui.ValidationError(args[0], problems, opts.noColor))
				return errReported
			}

			ui.WriteSuccess(cmd.OutOrStdout(),
				fmt.Sprintf("%d descriptor(s) in %s are valid", len(dicts), args[0]), opts.noColor)
			return nil
		},
	}
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if metadata.IsGzip(raw) {
		return metadata.Decompress(raw)
	}
	return raw, nil
}

// decodeDescriptors accepts a single object or an array of objects.
func decodeDescriptors(raw []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var dict map[string]any
		if err := json.Unmarshal(trimmed, &dict); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		return []map[string]any{dict}, nil
	}

	var list []map[string]any
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, fmt.Errorf("expected a descriptor object or a list of them: %w", err)
	}
	return list, nil
}

func checkDescriptor(b *handler.Builder, v metadata.Validator, dict map[string]any) []error {
	if dict == nil {
		return []error{errors.New("descriptor is null")}
	}
	if err := v.Validate(dict); err != nil {
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			return joined.Unwrap()
		}
		return []error{err}
	}

	h, err := b.FromMarsh(dict)
	if err != nil {
		return []error{err}
	}
	dumped, err := h.Dump()
	if err != nil {
		return []error{err}
	}
	want, err := metadata.Serialize(dict)
	if err != nil {
		return []error{err}
	}
	got, err := metadata.Serialize(dumped)
	if err != nil {
		return []error{err}
	}
	if !bytes.Equal(want, got) {
		return []error{errors.New("descriptor does not survive a round trip")}
	}
	return nil
}

func typeOf(dict map[string]any) string {
	if t, ok := dict["type"].(string); ok && t != "" {
		return t
	}
	return "?"
}
