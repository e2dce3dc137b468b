package main

import "github.com/mkarimi/sms-platform/cmd"

func main() {
	cmd.Execute()
}
