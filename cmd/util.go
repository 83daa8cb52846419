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
	"errors"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/exascience/bamshrink/internal"
	"github.com/exascience/bamshrink/utils"
)

// ProgramMessage is the first line printed when the bamshrink binary
// is called.
var ProgramMessage = fmt.Sprint(
	"\n", utils.ProgramName, " version ", utils.ProgramVersion,
	" compiled with ", runtime.Version(), " - see ", utils.ProgramURL, " for more information.\n",
)

var errParameterCount = errors.New("incorrect number of parameters")

// splitCommandLine parses the flags that follow the positional
// arguments of a command line, and returns the positional arguments.
// Their number must be one of counts.
func splitCommandLine(args []string, flags *flag.FlagSet, counts ...int) ([]string, error) {
	n := 0
	for n < len(args) && !strings.HasPrefix(args[n], "-") {
		n++
	}
	flags.SetOutput(ioutil.Discard)
	if err := flags.Parse(args[n:]); err != nil {
		return nil, err
	}
	if flags.NArg() > 0 {
		return nil, fmt.Errorf("cannot parse remaining parameters %v", flags.Args())
	}
	for _, count := range counts {
		if n == count {
			return args[:n], nil
		}
	}
	return nil, errParameterCount
}

// parseCommandLine is splitCommandLine for os.Args. On errors, it
// prints the help text and exits.
func parseCommandLine(flags *flag.FlagSet, help string, counts ...int) []string {
	args, err := splitCommandLine(os.Args[1:], flags, counts...)
	switch {
	case err == nil:
		return args
	case err == flag.ErrHelp:
		fmt.Fprint(os.Stderr, help)
		os.Exit(0)
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
	return nil
}

func logFileError(err error, action, filename string) {
	switch {
	case os.IsNotExist(err):
		log.Printf("Error: File %v does not exist.\n", filename)
	case os.IsPermission(err):
		log.Printf("Error: No permission to %v file %v.\n", action, filename)
	default:
		log.Printf("Error %v when trying to %v file %v.\n", err, action, filename)
	}
}

// checkInput logs an error and returns false if filename cannot be
// accessed.
func checkInput(filename string) bool {
	if _, err := os.Stat(filename); err != nil {
		logFileError(err, "read", filename)
		return false
	}
	return true
}

// checkOutput logs an error and returns false if filename cannot be
// created. Existing files are overwritten.
func checkOutput(filename string) bool {
	if _, err := os.Stat(filename); err == nil {
		return true
	}
	err := os.MkdirAll(filepath.Dir(filename), 0700)
	if err == nil {
		var f *os.File
		if f, err = os.Create(filename); err == nil {
			_ = f.Close()
			_ = os.Remove(filename)
		}
	}
	if err != nil {
		logFileError(err, "create", filename)
		return false
	}
	return true
}

func invalidParameter(parameter, value, expected string) {
	log.Printf("Error: Invalid value %v for command line parameter %v, expected %v.\n", value, parameter, expected)
}

func checkNonNegative(parameter, value string) (int32, bool) {
	n, err := strconv.ParseInt(value, 10, 32)
	if err != nil || n < 0 {
		invalidParameter(parameter, value, "a non-negative integer")
		return 0, false
	}
	return int32(n), true
}

func checkPositive(parameter, value string) (float64, bool) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || !(f > 0) {
		invalidParameter(parameter, value, "a positive number")
		return 0, false
	}
	return f, true
}

func checkYesNo(parameter, value string) (bool, bool) {
	switch value {
	case "Y", "y":
		return true, true
	case "N", "n":
		return false, true
	}
	invalidParameter(parameter, value, "Y or N")
	return false, false
}

// logFilename returns the name of the log file of a run started at t.
// Log files are stored under $HOME unless dir is given.
func logFilename(dir string, t time.Time) string {
	if dir == "" {
		dir = os.Getenv("HOME")
	}
	return filepath.Join(dir, "logs", "bamshrink", "bamshrink-"+t.Format("2006-01-02-15-04-05.000000000-MST")+".log")
}

// setLogOutput sends the log and stderr to a fresh log file, and
// keeps a copy of the log on the original stderr.
func setLogOutput(dir string) {
	name := logFilename(dir, time.Now())
	internal.MkdirAll(filepath.Dir(name), 0700)
	f := internal.FileCreate(name)
	fmt.Fprintln(f, ProgramMessage)
	stderr, err := unix.Dup(unix.Stderr)
	if err != nil {
		log.Panic(err)
	}
	if err := unix.Dup2(int(f.Fd()), unix.Stderr); err != nil {
		log.Panic(err)
	}
	log.SetOutput(io.MultiWriter(f, os.NewFile(uintptr(stderr), "/dev/stderr")))
	log.Println("Created log file at", name)
	log.Println("Command line:", os.Args)
}

func startProfile(name string) (stop func(), err error) {
	file, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	if err := pprof.StartCPUProfile(file); err != nil {
		_ = file.Close()
		return nil, err
	}
	return func() {
		pprof.StopCPUProfile()
		internal.Close(file)
	}, nil
}

// runPhase runs f as phase n of a command. A CPU profile of the phase
// is written to <profile>n.prof if profile is set, and the phase is
// logged with its elapsed time if timed is set.
func runPhase(n int, name string, timed bool, profile string, f func() error) error {
	if profile != "" {
		stop, err := startProfile(profile + strconv.Itoa(n) + ".prof")
		if err != nil {
			return err
		}
		defer stop()
	}
	if timed {
		log.Println(name)
		defer func(start time.Time) {
			log.Println("Elapsed time:", time.Since(start))
		}(time.Now())
	}
	return f()
}
