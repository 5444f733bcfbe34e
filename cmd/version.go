// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cdetrio/wasm-gc/internal/version"
)

func init() {
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Print the version of wasm-gc",
		Run: func(*cobra.Command, []string) {
			fmt.Println("Version:", version.Version)
		},
	}
	RootCommand.AddCommand(versionCommand)
}
