package main

import (
	"github.com/brianvoe/gofakeit/v7"
	"github.com/effective-security/nanomcp/encoding"
	"github.com/effective-security/nanomcp/internal/sampletools"
	"github.com/effective-security/nanomcp/schema"
	"github.com/spf13/cobra"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the manifest of the served tools",
		Args:  cobra.NoArgs,
		RunE:  runTools,
	}
	cmd.Flags().String("format", encoding.ModePlainText, "Output format: json | yaml | toml | plain_text")
	cmd.Flags().Uint64("examples", 0, "Seed of example arguments, 0 disables them")
	return cmd
}

func runTools(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	seed, _ := cmd.Flags().GetUint64("examples")

	var faker *gofakeit.Faker
	if seed != 0 {
		faker = gofakeit.New(seed)
	}
	list := make([]*schema.Tool, len(sampletools.Tools))
	for i, d := range sampletools.Tools {
		list[i] = d.Schema
	}
	m, err := encoding.NewManifest("github.com/effective-security/nanomcp/internal/sampletools", "Tools", list, faker)
	if err != nil {
		return err
	}
	data, err := m.Marshal(format)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
