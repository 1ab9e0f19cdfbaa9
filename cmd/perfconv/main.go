// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command perfconv reads perf.data profiles and dumps, remaps, or
// rewrites them. It exists to exercise the perffile/perfparser
// libraries end to end; it is not itself part of the core this
// repository specifies.
package main

import (
	"context"
	"fmt"
	"os"
	"reflect"

	"github.com/perfdata-go/perfdata/perffile"
	"github.com/perfdata-go/perfdata/perfparser"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "perfconv",
		Short:        "Inspect and convert perf.data profiles",
		SilenceUsage: true,
	}
	root.AddCommand(newDumpCmd(), newRemapCmd(), newRewriteCmd(), newLocalizeCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newDumpCmd() *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "dump <perf.data>",
		Short: "Print every record in a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := perffile.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			recs, err := parse(f, perfparser.Config{
				SortByTime:                       true,
				SampleMappingPercentageThreshold: threshold,
			})
			if err != nil {
				return err
			}
			for _, r := range recs {
				dumpRecord(r)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&threshold, "min-mapped", 0, "minimum fraction of samples that must resolve to a mapping")
	return cmd
}

func newRemapCmd() *cobra.Command {
	var kernelBase uint64
	cmd := &cobra.Command{
		Use:   "remap <perf.data>",
		Short: "Print a profile with addresses renumbered into a dense virtual space",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := perffile.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			recs, err := parse(f, perfparser.Config{
				DeduceHugePages:         true,
				CombineAdjacentMappings: true,
				Remap:                   true,
				KernelBase:              kernelBase,
				SortByTime:              true,
			})
			if err != nil {
				return err
			}
			for _, r := range recs {
				dumpRecord(r)
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&kernelBase, "kernel-base", 1<<62, "virtual base address assigned to kernel mappings")
	return cmd
}

func newRewriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rewrite <in.perf.data> <out.perf.data>",
		Short: "Read a profile and write it back out, keeping only the string, command-line and build-ID feature sections",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := perffile.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			w := perffile.NewWriter(f.EventAttrs())
			if meta, err := f.Meta(); err == nil {
				*w.Meta() = *meta
			}

			rs := f.Records()
			for rs.Next() {
				if err := w.WriteRecord(rs.Record); err != nil {
					return err
				}
			}
			if err := rs.Err(); err != nil {
				return err
			}

			out, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer out.Close()
			return w.Flush(out)
		},
	}
	return cmd
}

func newLocalizeCmd() *cobra.Command {
	var rename map[string]string
	var inject map[string]string
	cmd := &cobra.Command{
		Use:   "localize <in.perf.data> <out.perf.data>",
		Short: "Rewrite a profile's build IDs, renaming or injecting mapping filenames",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := perffile.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			meta, err := f.Meta()
			if err != nil {
				return err
			}
			store := perffile.NewBuildIDStoreFromMeta(meta)

			w := perffile.NewWriter(f.EventAttrs())
			*w.Meta() = *meta

			rs := f.Records()
			for rs.Next() {
				if mmap, ok := rs.Record.(*perffile.RecordMmap); ok {
					store.Observe(mmap.Filename, mmap.CPUMode)
					if len(mmap.BuildID) > 0 {
						if _, ok := store.Lookup(mmap.Filename); !ok {
							store.Inject(mmap.Filename, perffile.DecodeHex(mmap.BuildID))
						}
					}
				}
				if err := w.WriteRecord(rs.Record); err != nil {
					return err
				}
			}
			if err := rs.Err(); err != nil {
				return err
			}

			for hexID, filename := range inject {
				store.Inject(filename, hexID)
			}
			for from, to := range rename {
				store.LocalizeByFilename(from, to)
			}

			w.Meta().BuildIDs = store.BuildIDInfos()

			out, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer out.Close()
			return w.Flush(out)
		},
	}
	cmd.Flags().StringToStringVar(&rename, "rename", nil, "from=to filename remapping, repeatable")
	cmd.Flags().StringToStringVar(&inject, "inject", nil, "buildid=filename to inject, repeatable")
	return cmd
}

func parse(f *perffile.File, cfg perfparser.Config) ([]perffile.Record, error) {
	cfg.Log = logrus.StandardLogger()
	meta, err := f.Meta()
	if err != nil {
		meta = nil
	}
	p := perfparser.NewParser(cfg, meta)
	return p.Parse(context.Background(), f.Records())
}

func dumpRecord(r perffile.Record) {
	fmt.Printf("%v{\n", r.Type())
	printFields(reflect.ValueOf(r))
	fmt.Printf("}\n")
}

func printFields(v reflect.Value) {
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		info := t.Field(i)
		fv := v.Field(i)
		switch {
		case info.Anonymous:
			printFields(fv)
		case (fv.Kind() == reflect.Ptr || fv.Kind() == reflect.Slice) && fv.IsNil():
			// Skip
		default:
			fmt.Printf("\t%-14s %+v\n", info.Name+":", fv.Interface())
		}
	}
}
