package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vertexdlt/wasmvm/vm"
	"github.com/vertexdlt/wasmvm/wasm"
)

func newInvokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invoke <file.wasm> <export> [args...]",
		Short: "Decode a module, instantiate it, and invoke an exported function",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("wasmvm: %w", err)
			}
			m, err := wasm.Decode(b)
			if err != nil {
				return fmt.Errorf("wasmvm: decode: %w", err)
			}

			store := vm.NewStore()
			if _, err := store.Instantiate(m); err != nil {
				return fmt.Errorf("wasmvm: instantiate: %w", err)
			}

			export := args[1]
			ft, err := store.ExportFuncType(export)
			if err != nil {
				return fmt.Errorf("wasmvm: %s: %w", export, err)
			}

			rawArgs := args[2:]
			if len(rawArgs) != len(ft.Params) {
				return fmt.Errorf("wasmvm: %s expects %d argument(s), got %d", export, len(ft.Params), len(rawArgs))
			}
			callArgs := make([]vm.Value, len(rawArgs))
			for i, raw := range rawArgs {
				v, err := parseArg(ft.Params[i], raw)
				if err != nil {
					return fmt.Errorf("wasmvm: argument %d: %w", i, err)
				}
				callArgs[i] = v
			}

			logrus.WithField("export", export).Debug("wasmvm: invoking")
			results, err := store.Invoke(export, callArgs)
			if err != nil {
				return fmt.Errorf("wasmvm: trap: %w", err)
			}
			for _, r := range results {
				fmt.Println(r.String())
			}
			return nil
		},
	}
}

func parseArg(ty wasm.ValueType, raw string) (vm.Value, error) {
	switch ty {
	case wasm.ValueTypeI32:
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.NewI32(int32(n)), nil
	case wasm.ValueTypeI64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.NewI64(n), nil
	case wasm.ValueTypeF32:
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.NewF32(float32(f)), nil
	case wasm.ValueTypeF64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.NewF64(f), nil
	}
	return vm.Value{}, fmt.Errorf("unsupported parameter type %s", ty)
}
