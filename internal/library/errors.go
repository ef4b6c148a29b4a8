// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package library

import (
	"fmt"
)

type IOError struct {
	path string
	err  error
}

func (e IOError) Error() string {
	return fmt.Sprintf("I/O error on %v: %v", e.path, e.err)
}

func (e IOError) Unwrap() error {
	return e.err
}

type DownloadError struct {
	url string
	err error
}

func (e DownloadError) Error() string {
	return fmt.Sprintf("couldn't download %v: %v", e.url, e.err)
}

func (e DownloadError) Unwrap() error {
	return e.err
}
