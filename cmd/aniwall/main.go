package main

import (
	"go-aniwall/cmd/aniwall/cmd"
	"go-aniwall/internal/api"
)

func main() {
	// Flush and close API log files on exit
	defer api.CloseAllLoggingTransports()

	cmd.Execute()
}
