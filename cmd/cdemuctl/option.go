package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cdemu/device"
)

var optionCmd = &cobra.Command{
	Use:   "option",
	Short: "Get or set a device option",
}

var optionGetCmd = &cobra.Command{
	Use:                   "get NAME",
	Short:                 "Print a device option's current value",
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	Run: func(cmd *cobra.Command, args []string) {
		dev := device.NewDevice()
		v, ok := dev.GetOption(args[0])
		if !ok {
			fmt.Printf("unknown option %q\n", args[0])
			return
		}
		fmt.Println(v)
	},
}

var optionSetCmd = &cobra.Command{
	Use:                   "set NAME VALUE",
	Short:                 "Set a device option",
	Args:                  cobra.ExactArgs(2),
	DisableFlagsInUseLine: true,
	Run: func(cmd *cobra.Command, args []string) {
		dev := device.NewDevice()
		if err := dev.SetOption(args[0], args[1]); err != nil {
			fmt.Println(err)
			return
		}
		fmt.Println("ok")
	},
}

func init() {
	optionCmd.AddCommand(optionGetCmd, optionSetCmd)
	rootCmd.AddCommand(optionCmd)
}
