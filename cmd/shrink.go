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

package cmd

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/exascience/bamshrink/filters"
	"github.com/exascience/bamshrink/internal"
	"github.com/exascience/bamshrink/intervals"
	"github.com/exascience/bamshrink/sam"
)

// ShrinkHelp is the help string for bamshrink.
const ShrinkHelp = "bamshrink sam-file sam-output-file max-fragment-length keep-map-quality(Y/N) min-matches avg-coverage-by-read-length\n" +
	"[bai-file interval-file]\n" +
	"[--quality-clip-window nr]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

func shrinkPipeline(fileIn, fileOut, indexFile, intervalFile string, opts filters.Options, timed bool, profile string) (err error) {
	var regions []intervals.Region
	if intervalFile != "" {
		err = runPhase(1, "Reading interval file.", timed, profile, func() (err error) {
			regions, err = intervals.ReadRegions(intervalFile, opts.MaxFragmentLength)
			return err
		})
		if err != nil {
			return err
		}
	}
	return runPhase(2, "Shrinking alignments.", timed, profile, func() (err error) {
		pathname, err := filepath.Abs(fileIn)
		if err != nil {
			return err
		}
		input, err := sam.Open(pathname)
		if err != nil {
			return err
		}
		defer func() {
			nerr := input.Close()
			if err == nil {
				err = nerr
			}
		}()
		if indexFile != "" {
			if err = input.LoadIndex(indexFile); err != nil {
				return err
			}
		}
		header, err := sam.ShrinkHeader(input.Header(),
			strconv.FormatInt(int64(opts.MaxFragmentLength), 10),
			yesNo(opts.KeepMapQuality),
			strconv.FormatInt(int64(opts.MinMatches), 10),
			strconv.FormatFloat(opts.AvgCoverage, 'g', -1, 64))
		if err != nil {
			return err
		}
		pathname, err = filepath.Abs(fileOut)
		if err != nil {
			return err
		}
		if err = os.MkdirAll(filepath.Dir(pathname), 0700); err != nil {
			return err
		}
		output, err := sam.Create(pathname, header)
		if err != nil {
			return err
		}
		defer func() {
			nerr := output.Close()
			if err == nil {
				err = nerr
			}
		}()
		var stats filters.RunStats
		if regions == nil {
			stats, err = filters.ShrinkFile(input, output, opts)
		} else {
			stats, err = filters.ShrinkRegions(input, output, opts, regions)
		}
		if err != nil {
			return err
		}
		var report strings.Builder
		_ = stats.Report(&report)
		log.Print("Completed run.\n", report.String())
		return nil
	})
}

func yesNo(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

// Shrink implements the bamshrink command.
func Shrink() error {
	var (
		qualityClipWindow int
		timed             bool
		profile, logPath  string
	)

	var flags flag.FlagSet

	flags.IntVar(&qualityClipWindow, "quality-clip-window", 0, "window size for clipping low quality bases, 0 disables quality clipping")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	args := parseCommandLine(&flags, ShrinkHelp, 6, 8)
	input, output := args[0], args[1]
	var indexFile, intervalFile string
	if len(args) == 8 {
		indexFile, intervalFile = args[6], args[7]
	}

	setLogOutput(logPath)

	// sanity checks

	sanityChecksFailed := false

	var opts filters.Options
	var ok bool

	if opts.MaxFragmentLength, ok = checkNonNegative("max-fragment-length", args[2]); !ok {
		sanityChecksFailed = true
	}
	if opts.KeepMapQuality, ok = checkYesNo("keep-map-quality", args[3]); !ok {
		sanityChecksFailed = true
	}
	if opts.MinMatches, ok = checkNonNegative("min-matches", args[4]); !ok {
		sanityChecksFailed = true
	}
	if opts.AvgCoverage, ok = checkPositive("avg-coverage-by-read-length", args[5]); !ok {
		sanityChecksFailed = true
	}
	if qualityClipWindow < 0 {
		invalidParameter("--quality-clip-window", strconv.Itoa(qualityClipWindow), "a non-negative integer")
		sanityChecksFailed = true
	}
	opts.QualityClipWindow = int32(qualityClipWindow)

	if !checkInput(input) {
		sanityChecksFailed = true
	}
	if !checkOutput(output) {
		sanityChecksFailed = true
	}
	if fullInput, err := internal.FullPathname(input); err == nil {
		if fullOutput, err := internal.FullPathname(output); err == nil && fullInput == fullOutput {
			log.Println("Error: Input and output file must be different.")
			sanityChecksFailed = true
		}
	}

	if indexFile != "" {
		if !checkInput(indexFile) {
			sanityChecksFailed = true
		}
		if !checkInput(intervalFile) {
			sanityChecksFailed = true
		}
		if filepath.Ext(input) != sam.BamExt {
			log.Println("Error: Interval mode requires a BAM input file.")
			sanityChecksFailed = true
		}
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, ShrinkHelp)
		os.Exit(1)
	}

	// command line

	var command strings.Builder
	fmt.Fprint(&command, os.Args[0], " ", input, " ", output, " ", opts.MaxFragmentLength, " ", yesNo(opts.KeepMapQuality), " ", opts.MinMatches, " ", args[5])
	if indexFile != "" {
		fmt.Fprint(&command, " ", indexFile, " ", intervalFile)
	}
	if qualityClipWindow > 0 {
		fmt.Fprint(&command, " --quality-clip-window ", qualityClipWindow)
	}
	if timed {
		fmt.Fprint(&command, " --timed")
	}
	if profile != "" {
		fmt.Fprint(&command, " --profile ", profile)
	}
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}

	fmt.Fprintln(os.Stderr, "Executing command:\n", command.String())

	return shrinkPipeline(input, output, indexFile, intervalFile, opts, timed, profile)
}
