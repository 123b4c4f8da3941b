package main

import "github.com/davarch/workflow-monitor/cmd/workflow-monitor/cli"

func main() {
	cli.Execute()
}
