// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package params

import (
	"fmt"
	"strings"
)

type Classification int

const (
	NoMods Classification = iota
	UnknownMod
	IllegalMod
	IllegalValue
	UnknownValue
	Permitted
)

func (c Classification) String() string {
	switch c {
	case NoMods:
		return "no mods"
	case UnknownMod:
		return "unknown mod"
	case IllegalMod:
		return "illegal mod"
	case IllegalValue:
		return "illegal value"
	case UnknownValue:
		return "unknown value"
	case Permitted:
		return "permitted"
	default:
		return fmt.Sprintf("classification(%d)", int(c))
	}
}

func (c Classification) Failed() bool {
	switch c {
	case UnknownMod, IllegalMod, IllegalValue, UnknownValue:
		return true
	default:
		return false
	}
}

func (c Classification) err() error {
	switch c {
	case UnknownMod:
		return ErrUnknownMod
	case IllegalMod:
		return ErrIllegalMod
	case IllegalValue:
		return ErrIllegalValue
	case UnknownValue:
		return ErrUnknownValue
	default:
		return nil
	}
}

const rule = "--------------------------------\n"

const NoModsBanner = rule +
	"|   --Firmware has no mods--   |\n" +
	rule

var banners = map[Classification]string{
	UnknownMod:   "|     **Unknown Mod Found**    |\n",
	IllegalMod:   "|     **Illegal Mod Found**    |\n",
	UnknownValue: "| **Unknown Mod Value Found**  |\n",
	IllegalValue: "| **Illegal Mod Values Found** |\n",
	Permitted:    "|         --Mod Info--         |\n",
}

type ClassifiedMod struct {
	Class Classification
	Mod   Mod

	// Value that caused an UnknownValue or IllegalValue.
	Value string
}

// Render draws the mod as a 32 column box headed by its
// classification banner.
func (c ClassifiedMod) Render() string {
	if c.Class == NoMods {
		return NoModsBanner
	}

	var sb strings.Builder

	sb.WriteString(rule)
	sb.WriteString(banners[c.Class])
	sb.WriteString(rule)
	fmt.Fprintf(&sb, "|  Name:                       |\n")
	fmt.Fprintf(&sb, "|    %-20s      |\n", c.Mod.Name)
	fmt.Fprintf(&sb, "|%30s|\n", "")
	fmt.Fprintf(&sb, "|  Enabled: %-19s|\n", yesNo(c.Mod.Enabled))
	fmt.Fprintf(&sb, "|%30s|\n", "")
	fmt.Fprintf(&sb, "|  Values:                     |\n")
	for _, v := range c.Mod.Values {
		fmt.Fprintf(&sb, "|    %-26s|\n", fmt.Sprintf("%s: %d", v.Name, v.Value))
	}
	sb.WriteString(rule)
	sb.WriteString("\n")

	return sb.String()
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}

	return "No"
}
