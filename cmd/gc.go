// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cdetrio/wasm-gc/internal/wasm/encoding"
	"github.com/cdetrio/wasm-gc/internal/wasm/gc"
	"github.com/cdetrio/wasm-gc/internal/wasm/module"
	"github.com/cdetrio/wasm-gc/logging"
)

type gcParams struct {
	output   string
	demangle bool
	dump     bool
	logLevel string
}

func init() {
	var params gcParams

	RootCommand.Args = cobra.RangeArgs(1, 2)
	RootCommand.RunE = func(_ *cobra.Command, args []string) error {
		return doGC(params, args)
	}

	RootCommand.Flags().StringVarP(&params.output, "output", "o", "", "set the output path (default: rewrite the input in place)")
	RootCommand.Flags().BoolVar(&params.demangle, "demangle", false, "demangle function symbol names in the name section")
	RootCommand.Flags().BoolVar(&params.dump, "dump", false, "print a summary of the collected module to stderr")
	RootCommand.Flags().StringVarP(&params.logLevel, "log-level", "l", "info", "set log level {debug, info, warn, error}")
}

func doGC(params gcParams, args []string) error {
	logger, err := newLogger(params.logLevel)
	if err != nil {
		return err
	}

	output := params.output
	if len(args) == 2 {
		if output != "" {
			return fmt.Errorf("output path given both as flag and as argument")
		}
		output = args[1]
	}
	if output == "" {
		output = args[0]
	}

	bs, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	m, err := encoding.ReadModule(bytes.NewReader(bs))
	if err != nil {
		return fmt.Errorf("read module: %w", err)
	}

	if err := gc.Run(gc.Config{Demangle: params.demangle, Logger: logger}, m); err != nil {
		return fmt.Errorf("collect module: %w", err)
	}

	if params.dump {
		module.Pretty(os.Stderr, m)
	}

	var buf bytes.Buffer
	if err := encoding.WriteModule(&buf, m); err != nil {
		return fmt.Errorf("write module: %w", err)
	}

	if err := os.WriteFile(output, buf.Bytes(), 0644); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"input":  len(bs),
		"output": buf.Len(),
	}).Info("wrote collected module")
	return nil
}

func newLogger(level string) (logging.Logger, error) {
	logger := logging.New()
	switch level {
	case "debug":
		logger.SetLevel(logging.Debug)
	case "", "info":
		logger.SetLevel(logging.Info)
	case "warn":
		logger.SetLevel(logging.Warn)
	case "error":
		logger.SetLevel(logging.Error)
	default:
		return nil, fmt.Errorf("invalid log level: %v", level)
	}
	return logger, nil
}
