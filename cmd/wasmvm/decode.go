package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vertexdlt/wasmvm/wasm"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <file.wasm>",
		Short: "Decode a module and print its section summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("wasmvm: %w", err)
			}
			logrus.WithField("bytes", len(b)).Debug("wasmvm: read module")

			m, err := wasm.Decode(b)
			if err != nil {
				return fmt.Errorf("wasmvm: decode: %w", err)
			}

			fmt.Printf("types:    %d\n", len(m.TypeSec))
			fmt.Printf("imports:  %d\n", len(m.ImportSec))
			fmt.Printf("funcs:    %d\n", len(m.Funcs))
			fmt.Printf("tables:   %d\n", len(m.TableSec))
			fmt.Printf("memories: %d\n", len(m.MemSec))
			fmt.Printf("globals:  %d\n", len(m.GlobalSec))
			fmt.Printf("elements: %d\n", len(m.ElemSec))
			fmt.Printf("data:     %d\n", len(m.DataSec))
			fmt.Printf("exports:\n")
			for _, exp := range m.ExportSec {
				fmt.Printf("  %-20s kind=%d idx=%d\n", exp.Name, exp.Desc.Kind, exp.Desc.Idx)
			}
			if m.StartSec != nil {
				fmt.Printf("start:    func %d\n", *m.StartSec)
			}
			return nil
		},
	}
}
