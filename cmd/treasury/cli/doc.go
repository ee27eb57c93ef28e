// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework of the treasury binary.
//
// A [Command] tree dispatches on the first positional argument, parses
// flags with pflag, and prints structured help. Parameter structs bind
// their flags from struct tags via [FlagsFromParams]; embedding
// [JSONOutput] adds --json. Unknown commands and flags get an
// edit-distance suggestion.
//
// [NewCommandLogger] picks a text handler on a terminal and JSON
// otherwise. [ExitError] lets a command exit non-zero without an extra
// error line.
package cli
