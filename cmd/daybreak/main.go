// Copyright 2025 The daybreak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Command daybreak pokes at a journal file from the shell: read and
// write keys, list them, or compact the file in place.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fulldump/goconfig"

	"github.com/kleinmatic/daybreak"
)

type config struct {
	File    string `usage:"journal file"`
	Codec   string `usage:"value codec: json, raw or snappy+json"`
	Get     string `usage:"print the value stored under this key"`
	Set     string `usage:"store -value under this key"`
	Value   string `usage:"value for -set"`
	Del     string `usage:"delete this key"`
	Keys    bool   `usage:"list keys in insertion order"`
	Compact bool   `usage:"rewrite the journal, dropping superseded records"`
	Clear   bool   `usage:"remove every key"`
}

func main() {
	c := config{
		File:  "daybreak.db",
		Codec: "json",
	}
	goconfig.Read(&c)

	if err := run(c); err != nil {
		fmt.Fprintln(os.Stderr, "daybreak:", err)
		os.Exit(1)
	}
}

func codecByName(name string) (daybreak.Codec, error) {
	switch name {
	case "json":
		return daybreak.JSON(), nil
	case "raw":
		return daybreak.Raw(), nil
	case "snappy+json":
		return daybreak.Snappy(daybreak.JSON()), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

func run(c config) (err error) {
	codec, err := codecByName(c.Codec)
	if err != nil {
		return err
	}

	db, err := daybreak.Open(c.File, daybreak.WithCodec(codec))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); err == nil && !errors.Is(cerr, daybreak.ErrClosed) {
			err = cerr
		}
	}()

	switch {
	case c.Get != "":
		v, ok, err := db.Get(c.Get)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("key %q not found", c.Get)
		}
		printValue(v)
	case c.Set != "":
		return db.SetSync(c.Set, c.Value)
	case c.Del != "":
		return db.DeleteSync(c.Del)
	case c.Keys:
		for _, k := range db.Keys() {
			fmt.Println(k)
		}
	case c.Compact:
		return db.Compact()
	case c.Clear:
		return db.Clear()
	default:
		fmt.Printf("%s: %d keys, %d journal records applied\n", db.Path(), db.Len(), db.LogSize())
	}
	return nil
}

func printValue(v any) {
	if b, ok := v.([]byte); ok {
		os.Stdout.Write(b)
		fmt.Println()
		return
	}
	fmt.Println(v)
}
