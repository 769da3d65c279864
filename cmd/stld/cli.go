package main

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stix-toolchain/stld/internal/errcode"
	"github.com/stix-toolchain/stld/linker"
)

type flags struct {
	output      string
	libDirs     []string
	libs        []string
	entrySym    string
	baseAddr    string
	binaryFlat  bool
	sharedLib   bool
	staticLib   bool
	optimize    bool
	strip       bool
	mapFile     string
	genMap      bool
	verbose     bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:     "stld [flags] file...",
		Short:   "STIX linker — combines SMOF object files into a linked artifact",
		Version: "1.0.0",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLink(f, args)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVarP(&f.output, "output", "o", "a.out", "output path")
	cmd.Flags().StringArrayVarP(&f.libDirs, "libdir", "L", nil, "library search path (reserved)")
	cmd.Flags().StringArrayVarP(&f.libs, "lib", "l", nil, "link library (reserved)")
	cmd.Flags().StringVarP(&f.entrySym, "entry", "e", "", "entry-point symbol override")
	cmd.Flags().StringVarP(&f.baseAddr, "base", "b", "0", "base address (C-style integer)")
	cmd.Flags().BoolVarP(&f.binaryFlat, "binary-flat", "B", false, "binary-flat output")
	cmd.Flags().BoolVarP(&f.sharedLib, "shared", "s", false, "shared library output")
	cmd.Flags().BoolVarP(&f.staticLib, "static", "S", false, "static library output")
	cmd.Flags().BoolVarP(&f.optimize, "optimize", "O", false, "optimize for size")
	cmd.Flags().BoolVarP(&f.strip, "strip", "x", false, "strip debug symbols")
	cmd.Flags().StringVarP(&f.mapFile, "map", "m", "", "generate map file (optional path)")
	cmd.Flags().Lookup("map").NoOptDefVal = " "
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "verbose output")
	cmd.Flags().BoolP("version", "V", false, "print version")

	return cmd
}

func runLink(f *flags, inputs []string) error {
	if f.mapFile != "" {
		f.genMap = true
		if f.mapFile == " " {
			f.mapFile = ""
		}
	}

	base, err := strconv.ParseUint(f.baseAddr, 0, 32)
	if err != nil {
		return fmt.Errorf("invalid base address %q: %w", f.baseAddr, err)
	}

	opts := linker.DefaultOptions()
	opts.BaseAddress = uint32(base)
	opts.Optimize = f.optimize
	opts.StripDebug = f.strip
	opts.GenerateMap = f.genMap
	opts.MapFile = f.mapFile
	opts.Verbose = f.verbose
	opts.PageSize = 1

	switch {
	case f.binaryFlat:
		opts.OutputType = linker.BinaryFlat
	case f.sharedLib:
		opts.OutputType = linker.SharedLibrary
	case f.staticLib:
		opts.OutputType = linker.StaticLibrary
	default:
		opts.OutputType = linker.Executable
	}

	if f.entrySym != "" {
		opts.EntrySymbol = f.entrySym
	}

	sink := errcode.SinkFunc(func(ctx *errcode.Context) {
		logrus.WithField("code", ctx.Code).Warn(ctx.Message)
	})

	ctx := linker.New(opts, sink)
	for _, path := range inputs {
		ctx.AddInputPath(path)
	}

	if err := ctx.LinkTo(f.output); err != nil {
		return err
	}

	stats := ctx.Stats()
	if f.verbose {
		fmt.Printf("stld: linked %d input(s): %d sections, %d symbols, %d/%d relocations resolved\n",
			stats.InputCount, stats.SectionCount, stats.SymbolCount, stats.ResolvedRelocs, stats.RelocCount)
	}
	fmt.Printf("stld: wrote %s (%d bytes), entry point 0x%08X\n", f.output, stats.OutputSize, stats.EntryPoint)
	return nil
}
