/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package main

import "github.com/mautops/analytics-gin/cmd"

func main() {
	cmd.Execute()
}
