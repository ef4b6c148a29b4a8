// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"

	"github.com/spf13/pflag"
	"github.com/tillitis/gccverify/internal/handshake"
)

const progname = "gccverify"

const defaultConfigFile = "./gccverify.yaml"

var version string

// Use when printing err/diag msgs
var le = log.New(os.Stderr, "", 0)

type Device struct {
	Path     string
	Speed    int
	Platform handshake.Platform
}

func main() {
	if version == "" {
		version = readBuildInfo()
	}

	var dev Device
	var platform, configFile, libDir string
	var attempts uint
	var preferRemote, verbose, versionOnly, helpOnly bool

	pflag.CommandLine.SetOutput(os.Stderr)
	pflag.CommandLine.SortFlags = false
	pflag.StringVar(&dev.Path, "port", "",
		"Set serial port device `PATH`. If this is not passed, auto-detection will be attempted.")
	pflag.IntVarP(&dev.Speed, "speed", "s", handshake.DefaultSpeed,
		"Set serial port `speed` in bits per second.")
	pflag.StringVar(&platform, "platform", string(handshake.Arduino),
		"Controller board `PLATFORM`, \"arduino\" or \"generic\". Arduino boards are reset before asking for parameters.")
	pflag.StringVar(&configFile, "config", defaultConfigFile,
		"`PATH` to configuration file. A missing default file is not an error.")
	pflag.StringVar(&libDir, "lib-dir", "",
		"Reference library `DIRECTORY` holding the manifest and firmware images (default \"lib\").")
	pflag.BoolVarP(&preferRemote, "remote", "r", false,
		"Verify against the published manifest instead of the local copy, falling back to the local one if it can't be loaded (commands: verify, verify-params).")
	pflag.UintVar(&attempts, "attempts", 0,
		"Number of times to ask the controller before giving up (default 3).")
	pflag.BoolVar(&verbose, "verbose", false,
		"Enable verbose output.")
	pflag.BoolVar(&versionOnly, "version", false, "Output version information.")
	pflag.BoolVar(&helpOnly, "help", false, "Output this help.")
	pflag.Usage = usage
	pflag.Parse()

	if helpOnly {
		pflag.Usage()
		os.Exit(0)
	}
	if versionOnly {
		fmt.Printf("%s %s\n", progname, version)
		os.Exit(0)
	}

	if pflag.NArg() != 1 {
		if pflag.NArg() > 1 {
			le.Printf("Unexpected argument: %s\n\n", strings.Join(pflag.Args()[1:], " "))
		} else {
			le.Printf("Please pass a command: verify, verify-params, update-lib, update-manifest, or list-ports\n\n")
		}
		pflag.Usage()
		os.Exit(2)
	}

	p, err := handshake.ParsePlatform(platform)
	if err != nil {
		le.Printf("%v\n", err)
		os.Exit(2)
	}
	dev.Platform = p

	conf, err := loadConfig(configFile, pflag.CommandLine.Lookup("config").Changed)
	if err != nil {
		le.Printf("Couldn't load config: %v\n", err)
		os.Exit(1)
	}

	// Flags win over the config file
	if libDir != "" {
		conf.LibDir = libDir
	}
	if attempts != 0 {
		conf.Attempts = attempts
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := pflag.Args()[0]

	if preferRemote && cmd != "verify" && cmd != "verify-params" {
		le.Printf("Cannot use --remote with this command.\n")
		os.Exit(2)
	}

	var ok bool

	switch cmd {
	case "verify":
		ok = verify(ctx, conf, dev, preferRemote, verbose, true)

	case "verify-params":
		ok = verify(ctx, conf, dev, preferRemote, verbose, false)

	case "update-lib":
		ok = updateLib(ctx, conf, verbose)

	case "update-manifest":
		ok = updateManifest(conf, verbose)

	case "list-ports":
		ok = listPorts()

	default:
		le.Printf("%s is not a valid command.\n", cmd)
		pflag.Usage()
		os.Exit(2)
	}

	if !ok {
		stop()
		os.Exit(1)
	}
}

func usage() {
	desc := fmt.Sprintf(`Usage: %s command [flags...]

Commands:
  verify           Ask the controller for its firmware parameters and check
                   them against the manifest. Then read its program memory
                   and compare it to the reference image of the firmware it
                   reported.

  verify-params    Only check the firmware parameters.

  update-lib       Download missing reference images and the ones that don't
                   match the manifest.

  update-manifest  Replace the local manifest with the published one if the
                   published one is newer. The previous one is kept as a
                   backup.

  list-ports       List USB serial ports and mark the ones that look like
                   controller boards.`, progname)

	le.Printf("%s\n\nFlags:\n%s\n", desc, pflag.CommandLine.FlagUsagesWrapped(86))
}

func readBuildInfo() string {
	version := "devel without BuildInfo"
	if info, ok := debug.ReadBuildInfo(); ok {
		sb := strings.Builder{}
		sb.WriteString("devel")
		for _, setting := range info.Settings {
			if strings.HasPrefix(setting.Key, "vcs") {
				sb.WriteString(fmt.Sprintf(" %s=%s", setting.Key, setting.Value))
			}
		}
		version = sb.String()
	}
	return version
}
