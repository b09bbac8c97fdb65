package main

import "github.com/kozaktomas/photo-sentry/cmd"

func main() {
	cmd.Execute()
}
