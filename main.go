package main

import "github.com/paktel/notify-gateway/cmd"

func main() {
	cmd.Execute()
}
