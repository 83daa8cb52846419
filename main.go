// bamShrink: a tool for shrinking and de-identifying SAM/BAM files.
// Copyright (c) 2017-2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/exascience/bamshrink/blob/master/LICENSE.txt>.

// bamshrink reduces coordinate-sorted, paired-end SAM/BAM files in
// size, and removes information that could identify the sequenced
// individual, so that the result can be shared as test data.
//
// Please see https://github.com/exascience/bamshrink for a
// documentation of the tool.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/exascience/bamshrink/cmd"
)

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.ShrinkHelp)
		os.Exit(1)
	}
	switch os.Args[1] {
	case "help", "-help", "--help", "-h", "--h":
		fmt.Fprint(os.Stderr, cmd.ShrinkHelp)
		return
	}
	if err := cmd.Shrink(); err != nil {
		log.Fatal(err)
	}
}
