package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cdemu/device"
	_ "cdemu/image/nrg"
	_ "cdemu/image/toc"
)

var loadCmd = &cobra.Command{
	Use:                   "load FILE",
	Short:                 "Load a disc image and print the device's loaded state and filenames",
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	Run: func(cmd *cobra.Command, args []string) {
		dev := device.NewDevice()
		if err := dev.Load([]string{args[0]}); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		printStatus(dev)
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
}
