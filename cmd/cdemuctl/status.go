package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cdemu/device"
)

var statusCmd = &cobra.Command{
	Use:                   "status FILE",
	Short:                 "Load a disc image and report the device's loaded state and filenames",
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	Run: func(cmd *cobra.Command, args []string) {
		dev := device.NewDevice()
		if err := dev.Load([]string{args[0]}); err != nil {
			fmt.Println(err)
			return
		}
		printStatus(dev)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func printStatus(dev *device.Device) {
	fmt.Printf("loaded: %v\n", dev.IsLoaded())
	fmt.Printf("files: %v\n", dev.Filenames())
}
