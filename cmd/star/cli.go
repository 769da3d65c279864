package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stix-toolchain/stld/internal/errcode"
	"github.com/stix-toolchain/stld/star"
)

type flags struct {
	create    bool
	extract   bool
	update    bool
	list      bool
	delete    bool
	archive   string
	chdir     string
	algorithm string
	level     int
	index     bool
	sort      bool
	verbose   bool
	force     bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:     "star [flags] [file|member ...]",
		Short:   "STIX archiver — create, extract, update, list, and delete STAR archive members",
		Version: "1.0.0",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f, args)
		},
		SilenceUsage: true,
	}

	cmd.Flags().BoolVarP(&f.create, "create", "c", false, "create a new archive")
	cmd.Flags().BoolVarP(&f.extract, "extract", "x", false, "extract members")
	cmd.Flags().BoolVarP(&f.update, "update", "u", false, "update (add/replace) members")
	cmd.Flags().BoolVarP(&f.list, "list", "t", false, "list archive contents")
	cmd.Flags().BoolVarP(&f.delete, "delete", "d", false, "delete members")
	cmd.Flags().StringVarP(&f.archive, "file", "f", "", "archive path (required)")
	cmd.Flags().StringVarP(&f.chdir, "directory", "C", "", "chdir before operation")
	cmd.Flags().StringVarP(&f.algorithm, "compression", "z", "none", "compression: none|lz4|zlib|lzma")
	cmd.Flags().IntVarP(&f.level, "level", "L", 0, "compression level 0-9")
	cmd.Flags().BoolVarP(&f.index, "index", "i", false, "build symbol index")
	cmd.Flags().BoolVarP(&f.sort, "sort", "s", false, "sort members by name")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "verbose output")
	cmd.Flags().BoolVarP(&f.force, "force", "F", false, "force overwrite")
	cmd.Flags().BoolP("version", "V", false, "print version")

	cmd.MarkFlagRequired("file")

	return cmd
}

func run(f *flags, args []string) error {
	modes := 0
	for _, b := range []bool{f.create, f.extract, f.update, f.list, f.delete} {
		if b {
			modes++
		}
	}
	if modes != 1 {
		return fmt.Errorf("exactly one of -c, -x, -u, -t, -d is required")
	}

	if f.chdir != "" {
		if err := os.Chdir(f.chdir); err != nil {
			return fmt.Errorf("chdir %s: %w", f.chdir, err)
		}
	}

	compression, err := compressionFromString(f.algorithm)
	if err != nil {
		return err
	}

	opts := star.Options{
		Compression:      compression,
		CompressionLevel: f.level,
		CreateIndex:      f.index,
		SortMembers:      f.sort,
		Verbose:          f.verbose,
		ForceOverwrite:   f.force,
	}

	sink := errcode.SinkFunc(func(ctx *errcode.Context) {
		logrus.WithField("code", ctx.Code).Warn(ctx.Message)
	})

	switch {
	case f.create:
		return doCreate(opts, sink, f, args)
	case f.extract:
		return doExtract(opts, sink, f, args)
	case f.update:
		return doUpdate(opts, sink, f, args)
	case f.list:
		return doList(opts, sink, f)
	case f.delete:
		return doDelete(opts, sink, f, args)
	}
	return nil
}

func compressionFromString(name string) (uint8, error) {
	switch name {
	case "none", "":
		return star.CompressNone, nil
	case "lz4":
		return star.CompressLZ4, nil
	case "zlib":
		return star.CompressZlib, nil
	case "lzma":
		return star.CompressLZMA, nil
	default:
		return 0, fmt.Errorf("unknown compression algorithm %q", name)
	}
}

func doCreate(opts star.Options, sink errcode.Sink, f *flags, files []string) error {
	if !f.force {
		if _, err := os.Stat(f.archive); err == nil {
			return fmt.Errorf("%s already exists (use -F to overwrite)", f.archive)
		}
	}
	a := star.New(opts, sink)
	for _, path := range files {
		if err := a.AddFile(path, ""); err != nil {
			return err
		}
	}
	if err := a.Save(f.archive); err != nil {
		return err
	}
	if f.verbose {
		st := a.Stats()
		fmt.Printf("star: created %s: %d member(s), %d bytes\n", f.archive, st.MemberCount, st.TotalSize)
	}
	return nil
}

func doExtract(opts star.Options, sink errcode.Sink, f *flags, members []string) error {
	a, err := star.Load(f.archive, opts, sink)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		for _, info := range a.List() {
			members = append(members, info.Name)
		}
	}
	for _, name := range members {
		if err := a.Extract(name, ""); err != nil {
			return err
		}
		if f.verbose {
			fmt.Printf("x %s\n", name)
		}
	}
	return nil
}

func doUpdate(opts star.Options, sink errcode.Sink, f *flags, files []string) error {
	a, err := star.Load(f.archive, opts, sink)
	if err != nil {
		if os.IsNotExist(errNotFoundCause(err)) {
			a = star.New(opts, sink)
		} else {
			return err
		}
	}
	for _, path := range files {
		if err := a.Update(path, filepath.Base(path)); err != nil {
			return err
		}
		if f.verbose {
			fmt.Printf("u %s\n", path)
		}
	}
	return a.Save(f.archive)
}

func doList(opts star.Options, sink errcode.Sink, f *flags) error {
	a, err := star.Load(f.archive, opts, sink)
	if err != nil {
		return err
	}
	for _, info := range a.List() {
		if f.verbose {
			fmt.Printf("%-32s %10d %10d 0x%08X\n", info.Name, info.Size, info.CompressedSize, info.Checksum)
		} else {
			fmt.Println(info.Name)
		}
	}
	return nil
}

func doDelete(opts star.Options, sink errcode.Sink, f *flags, members []string) error {
	a, err := star.Load(f.archive, opts, sink)
	if err != nil {
		return err
	}
	for _, name := range members {
		if err := a.Delete(name); err != nil {
			return err
		}
		if f.verbose {
			fmt.Printf("d %s\n", name)
		}
	}
	return a.Save(f.archive)
}

// errNotFoundCause unwraps a plain os error out of the pkg/errors-wrapped
// chain Load returns, so doUpdate can tell "no such archive yet" (fine for
// -u, which may create one) apart from every other load failure.
func errNotFoundCause(err error) error {
	type causer interface{ Cause() error }
	for err != nil {
		if c, ok := err.(causer); ok {
			err = c.Cause()
			continue
		}
		return err
	}
	return err
}
