// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"errors"
	"os"

	"github.com/tillitis/gccverify/internal/data"
	"github.com/tillitis/gccverify/internal/dump"
	"gopkg.in/yaml.v2"
)

type AvrdudeConfig struct {
	Bin        string `yaml:"bin"`
	Conf       string `yaml:"conf"`
	Part       string `yaml:"part"`
	Programmer string `yaml:"programmer"`
	Baud       int    `yaml:"baud"`
}

type SigsumConfig struct {
	SubmitKeys string `yaml:"submitkeys"`
	Policy     string `yaml:"policy"`
}

type Config struct {
	LibDir      string        `yaml:"libdir"`
	ManifestURL string        `yaml:"manifesturl"`
	Attempts    uint          `yaml:"attempts"`
	Avrdude     AvrdudeConfig `yaml:"avrdude"`
	Sigsum      SigsumConfig  `yaml:"sigsum"`
}

func defaultConfig() Config {
	a := dump.DefaultAvrdude()

	return Config{
		LibDir:      "lib",
		ManifestURL: data.ManifestURL,
		Attempts:    3,
		Avrdude: AvrdudeConfig{
			Bin:        a.Bin,
			Conf:       a.Conf,
			Part:       a.Part,
			Programmer: a.Programmer,
			Baud:       a.Baud,
		},
	}
}

// loadConfig reads fn on top of the defaults. A missing file is only
// an error if the user asked for it.
func loadConfig(fn string, required bool) (Config, error) {
	conf := defaultConfig()

	rawConfig, err := os.ReadFile(fn)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return conf, nil
		}
		return conf, IOError{path: fn, err: err}
	}

	err = yaml.UnmarshalStrict(rawConfig, &conf)
	if err != nil {
		return conf, ParseError{what: "config", err: err}
	}

	if (conf.Sigsum.SubmitKeys == "") != (conf.Sigsum.Policy == "") {
		return conf, ParseError{what: "config", err: errors.New("sigsum needs both submitkeys and policy")}
	}

	return conf, nil
}

func (c Config) avrdude(verbose bool) dump.Avrdude {
	return dump.Avrdude{
		Bin:        c.Avrdude.Bin,
		Conf:       c.Avrdude.Conf,
		Part:       c.Avrdude.Part,
		Programmer: c.Avrdude.Programmer,
		Baud:       c.Avrdude.Baud,
		Verbose:    verbose,
	}
}
