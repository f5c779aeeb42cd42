package main

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

type outputFormat int

const (
	outputTable outputFormat = iota
	outputJSON
	outputYAML
)

func (c *commandContext) outputFormat() outputFormat {
	switch {
	case c.jsonFlag != nil && *c.jsonFlag:
		return outputJSON
	case c.yamlFlag != nil && *c.yamlFlag:
		return outputYAML
	default:
		return outputTable
	}
}

// render prints v as JSON or YAML when requested, otherwise calls human.
func (c *commandContext) render(cmd *cobra.Command, v any, human func() error) error {
	switch c.outputFormat() {
	case outputJSON:
		return writeJSON(cmd, v)
	case outputYAML:
		return writeYAML(cmd, v)
	default:
		return human()
	}
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(cmd *cobra.Command, v any) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

var amountPrinter = message.NewPrinter(language.Korean)

// formatAmount renders whole currency units with thousands separators.
func formatAmount(value int64) string {
	return amountPrinter.Sprintf("%d", value)
}

func formatDecimal(value decimal.Decimal) string {
	if value.Equal(value.Truncate(0)) {
		return formatAmount(value.IntPart())
	}
	return amountPrinter.Sprintf("%.2f", value.InexactFloat64())
}
