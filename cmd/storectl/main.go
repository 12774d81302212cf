package main

import (
	"errors"
	"fmt"
	"os"

	"storefront/internal/cli"
	"storefront/internal/util"
)

func main() {
	err := cli.NewRootCommand().Execute()
	util.SyncLogger()
	if err == nil {
		return
	}

	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || !exitErr.Reported {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
