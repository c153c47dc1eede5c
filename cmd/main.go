package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"

	"hopvm/internal/logger"
	"hopvm/internal/runner"
	"hopvm/pkg/color"
)

// Main entry point for the hopvm runner.
func main() {
	options := runner.Runner{}

	flag.BoolVar(&options.Help, "h", false, "Show help")
	flag.BoolVar(&options.Verbose, "v", false, "Verbose mode")
	flag.BoolVar(&options.Debug, "d", false, "Debug logging (per hop)")
	flag.BoolVar(&options.NoColor, "n", false, "No color")
	flag.BoolVar(&options.Disassemble, "s", false, "Print the disassembled listing")
	flag.BoolVar(&options.ShowTable, "t", false, "Print the transfer table")
	flag.StringVar(&options.Mode, "m", "", "Run mode: migrate, plain or estimate")
	flag.StringVar(&options.Policy, "p", "", "Pause policy: every-line, never or lines")
	flag.IntVar(&options.MaxSteps, "steps", 0, "Step limit per VM (0 for none)")
	flag.StringVar(&options.ReportFile, "report", "", "Write a YAML report to this file")

	flag.Parse()
	args := flag.Args()

	logger.Init(options.Verbose, options.Debug, options.NoColor)
	if options.Help {
		fmt.Printf("Usage: %s [options] <file.hop> [args...]\n", os.Args[0])
		fmt.Println("Options:")
		flag.PrintDefaults()
		return
	}

	if options.NoColor {
		color.EnableColor(false)
	}

	if len(args) == 0 {
		log.Fatal("No input file provided", "help", fmt.Sprintf("%s -h", os.Args[0]))
	}

	options.SourceFile = args[0]
	options.Args = args[1:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := options.Run(ctx); err != nil {
		stop()
		log.Fatal("Run failed", "error", err)
	}
}
