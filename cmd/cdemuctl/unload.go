package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cdemu/device"
)

var forceUnload bool

var unloadCmd = &cobra.Command{
	Use:                   "unload FILE",
	Short:                 "Load then immediately unload a disc image, exercising the removal lock",
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	Run: func(cmd *cobra.Command, args []string) {
		dev := device.NewDevice()
		if err := dev.Load([]string{args[0]}); err != nil {
			fmt.Println(err)
			return
		}
		if err := dev.Unload(forceUnload); err != nil {
			fmt.Println(err)
			return
		}
		fmt.Println("unloaded")
	},
}

func init() {
	unloadCmd.Flags().BoolVarP(&forceUnload, "force", "f", false, "bypass the medium-removal-prevented lock")
	rootCmd.AddCommand(unloadCmd)
}
