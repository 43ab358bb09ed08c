package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "cdemuctl",
	Short: "Exercise the cdemu device lifecycle directly against an image file",
	Long: `cdemuctl builds a device.Device in-process and drives its load, unload,
status, and option operations against the image file given on the command
line. Each invocation runs against a fresh in-process device; no running
cdemud is required.`,
}
