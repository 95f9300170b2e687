// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os"

	"git.lukeshu.com/go/lowmemjson"
	"github.com/datawire/dlib/dlog"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"sqimage/lib/chunk"
	"sqimage/lib/image"
	"sqimage/lib/object"
	"sqimage/lib/textui"
	"sqimage/lib/util"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "sqimg-dump: error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	logLevel := textui.LogLevelFlag{Level: dlog.LogLevelInfo}
	opts := image.LoadOptions{}
	var asJSON bool

	argparser := &cobra.Command{
		Use:           "sqimg-dump PATH",
		Short:         "Load a Smalltalk image and print a summary of its object graph",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ExactArgs(1),
	}
	argparser.PersistentFlags().Var(&logLevel, "verbosity", "set the log verbosity")
	argparser.PersistentFlags().BoolVar(&opts.NoSpecializedStorage, "no-specialized-storage", false, "disable specialized slot storage strategies")
	argparser.PersistentFlags().BoolVar(&asJSON, "json", false, "print the object graph as JSON instead of a text summary")

	argparser.RunE = func(cmd *cobra.Command, posArgs []string) error {
		ctx := dlog.WithLogger(cmd.Context(), textui.NewLogger(os.Stderr, logLevel.Level))
		return dump(ctx, posArgs[0], opts, asJSON)
	}

	argparser.AddCommand(newDumpHeaderCmd(&opts))
	argparser.AddCommand(newDumpObjectCmd(&opts))

	argparser.SetArgs(args)
	return argparser.ExecuteContext(context.Background())
}

func newDumpHeaderCmd(opts *image.LoadOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump-header PATH",
		Short: "Load the image and print only its dialect (isSpur) and object count; header fields are not printed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			img, err := image.Load(ctx, args[0], *opts)
			if err != nil {
				return err
			}
			fmt.Printf("space: isSpur=%v objects=%d\n", img.Space.Flags.IsSpur, len(img.Objects))
			return nil
		},
	}
}

func newDumpObjectCmd(opts *image.LoadOptions) *cobra.Command {
	var addr int64
	cmd := &cobra.Command{
		Use:   "dump-object PATH --addr=N",
		Short: "Print one materialized object by its image address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			img, err := image.Load(ctx, args[0], *opts)
			if err != nil {
				return err
			}
			obj, ok := img.Objects[chunk.OOP(addr)]
			if !ok {
				return fmt.Errorf("no object at address 0x%x", addr)
			}
			spewConfig := spew.NewDefaultConfig()
			spewConfig.DisablePointerAddresses = true
			spewConfig.Dump(obj)
			return nil
		},
	}
	cmd.Flags().Int64Var(&addr, "addr", 0, "image address of the object to print")
	return cmd
}

// dump prints a deterministic summary of every materialized object,
// one line each, sorted by image address so two runs of the same
// image diff cleanly.
func dump(ctx context.Context, path string, opts image.LoadOptions, asJSON bool) error {
	img, err := image.Load(ctx, path, opts)
	if err != nil {
		return err
	}
	if asJSON {
		return dumpJSON(img)
	}

	addrs := util.SortedMapKeys(img.Objects)
	for _, addr := range addrs {
		obj := img.Objects[addr]
		fmt.Printf("0x%08x: %s\n", addr, describe(obj))
	}
	return nil
}

// dumpJSON serializes the graph as a sorted array of {addr, desc}
// records via lowmemjson, the same encoder lib/containers.Set already
// uses for its own JSON form.
func dumpJSON(img *image.Image) error {
	type record struct {
		Addr string `json:"addr"`
		Desc string `json:"desc"`
	}
	addrs := util.SortedMapKeys(img.Objects)
	records := make([]record, len(addrs))
	for i, addr := range addrs {
		records[i] = record{
			Addr: fmt.Sprintf("0x%08x", addr),
			Desc: describe(img.Objects[addr]),
		}
	}
	return lowmemjson.Encode(os.Stdout, records)
}

func describe(obj object.Object) string {
	return fmt.Sprintf("%s (size=%d weak=%v hash=%d)", obj.AsReprString(), obj.Size(), obj.IsWeak(), obj.Hash())
}
