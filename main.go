package main

import "github.com/livedesk-ai/livedesk/cmd"

func main() {
	cmd.Execute()
}
