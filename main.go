/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"os"

	"tgvisor/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
