// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/urbanlogistics/depot/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}
