// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/jcodagnone/nemchi/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}
