// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package data

//////////////////////////////////////////////////////////////////////
/// Manifest
//////////////////////////////////////////////////////////////////////

// Where the official manifest is published.
const ManifestURL = "https://raw.githubusercontent.com/kaysond/GCCVerify/master/build/lib/manifest.json"

// Reference library layout, relative to the library directory.
const (
	ManifestFile    = "manifest.json"
	OldManifestFile = "manifest_old.json"
	ImageSuffix     = ".hex"
)

// Largest reference image we are willing to download.
const MaxImageSize = 1000000

//////////////////////////////////////////////////////////////////////
/// Device
//////////////////////////////////////////////////////////////////////

// Token written to the controller to ask for its parameters.
const MagicToken = "GCCVerify"

// USB VID:PID pairs of the serial bridges found on controller boards.
// One pair per line, comments and empty lines allowed.
const SerialBridges = `
# Arduino LLC
2341 0043
2341 0001
2341 0010
# Arduino SRL
2a03 0043
# CH340, common on Nano clones
1a86 7523
# FTDI FT232R, older Nano boards
0403 6001
# Silicon Labs CP210x
10c4 ea60
`
