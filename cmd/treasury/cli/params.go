// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// FlagsFromParams creates a flag set bound to the tagged fields of
// params, which must be a pointer to a struct. Panics on invalid input.
//
//	var params storeParams
//	command := &cli.Command{
//	    Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("store", &params) },
//	    Run:   func(args []string) error { ... },
//	}
func FlagsFromParams(name string, params any) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if err := BindFlags(params, flagSet); err != nil {
		panic(fmt.Sprintf("binding %s flags: %v", name, err))
	}
	return flagSet
}

// BindFlags registers a flag for each tagged field of params.
//
// Tags: flag:"name" or flag:"name,n" for the long name and optional
// shorthand, desc:"..." for help text, default:"..." for the default
// parsed per the field type. Supported types are string, bool, int,
// time.Duration and []string. Embedded structs are bound recursively.
func BindFlags(params any, flagSet *pflag.FlagSet) error {
	pointer := reflect.ValueOf(params)
	if pointer.Kind() != reflect.Pointer || pointer.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("flag params: want pointer to struct, have %T", params)
	}
	return bindAll(pointer.Elem(), flagSet)
}

// flagTags holds one field's flag tags.
type flagTags struct {
	long, short string
	usage       string
	fallback    string
}

func bindAll(params reflect.Value, flagSet *pflag.FlagSet) error {
	fields := params.Type()
	for i := range fields.NumField() {
		field := fields.Field(i)
		value := params.Field(i)
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			if err := bindAll(value, flagSet); err != nil {
				return fmt.Errorf("%s: %w", field.Name, err)
			}
			continue
		}
		tag, ok := field.Tag.Lookup("flag")
		if !ok || tag == "" {
			continue
		}
		tags := flagTags{usage: field.Tag.Get("desc"), fallback: field.Tag.Get("default")}
		tags.long, tags.short, _ = strings.Cut(tag, ",")
		if err := tags.bind(value.Addr().Interface(), flagSet); err != nil {
			return fmt.Errorf("%s: %w", field.Name, err)
		}
	}
	return nil
}

func (tags flagTags) bind(target any, flagSet *pflag.FlagSet) error {
	switch target := target.(type) {
	case *string:
		flagSet.StringVarP(target, tags.long, tags.short, tags.fallback, tags.usage)
	case *bool:
		initial, err := parseDefault(tags, strconv.ParseBool)
		if err != nil {
			return err
		}
		flagSet.BoolVarP(target, tags.long, tags.short, initial, tags.usage)
	case *int:
		initial, err := parseDefault(tags, strconv.Atoi)
		if err != nil {
			return err
		}
		flagSet.IntVarP(target, tags.long, tags.short, initial, tags.usage)
	case *time.Duration:
		initial, err := parseDefault(tags, time.ParseDuration)
		if err != nil {
			return err
		}
		flagSet.DurationVarP(target, tags.long, tags.short, initial, tags.usage)
	case *[]string:
		var initial []string
		if tags.fallback != "" {
			initial = strings.Split(tags.fallback, ",")
		}
		flagSet.StringSliceVarP(target, tags.long, tags.short, initial, tags.usage)
	default:
		return fmt.Errorf("--%s: cannot bind a flag to %T", tags.long, target)
	}
	return nil
}

// parseDefault converts the default tag, yielding the zero value when
// the tag is absent.
func parseDefault[T any](tags flagTags, parse func(string) (T, error)) (T, error) {
	var zero T
	if tags.fallback == "" {
		return zero, nil
	}
	value, err := parse(tags.fallback)
	if err != nil {
		return zero, fmt.Errorf("--%s default %q: %w", tags.long, tags.fallback, err)
	}
	return value, nil
}
