// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/mattn/go-isatty"
	"github.com/tillitis/gccverify/internal/data"
	"github.com/tillitis/gccverify/internal/util"
)

func updateLib(ctx context.Context, conf Config, verbose bool) bool {
	sources, err := manifests(conf)
	if err != nil {
		parseFailure(fmt.Sprintf("sigsum configuration: %v", err))
		return false
	}

	m, err := sources.Local()
	if err != nil {
		explain(err, verbose)
		return false
	}

	lib := sources.Library
	lib.Progress = isatty.IsTerminal(os.Stderr.Fd())

	summary, err := lib.Update(ctx, &m)
	for _, name := range summary.Verified {
		fmt.Printf("%s verified.\n", name)
	}
	for _, name := range summary.Downloaded {
		fmt.Printf("%s downloaded and verified.\n", name)
	}

	failed := make([]string, 0, len(summary.Failed))
	for name := range summary.Failed {
		failed = append(failed, name)
	}
	sort.Strings(failed)

	for _, name := range failed {
		fmt.Printf("%s: ", name)
		explain(summary.Failed[name], verbose)
	}

	if err != nil {
		le.Printf("%v\n", err)
		return false
	}

	return true
}

func updateManifest(conf Config, verbose bool) bool {
	sources, err := manifests(conf)
	if err != nil {
		parseFailure(fmt.Sprintf("sigsum configuration: %v", err))
		return false
	}

	m, updated, err := sources.Update()
	if err != nil {
		explain(err, verbose)
		return false
	}

	if updated {
		fmt.Printf("Manifest updated, published %d.\n", m.Timestamp)
	} else {
		fmt.Printf("Local manifest is up to date, published %d.\n", m.Timestamp)
	}

	return true
}

func listPorts() bool {
	ports, err := util.GetSerialPorts(false)
	if err != nil {
		commFailed(err.Error())
		return false
	}

	known, err := util.ParseBridges(data.SerialBridges)
	if err != nil {
		missing(err.Error())
		return false
	}

	for _, p := range ports {
		mark := " "
		if util.IsBridge(known, p.VID, p.PID) {
			mark = "*"
		}
		fmt.Printf("%s %s %s:%s %s %s\n", mark, p.DevPath, p.VID, p.PID, p.SerialNumber, p.Product)
	}

	return true
}
