// Copyright © 2018 One Concern

package main

import (
	"github.com/oneconcern/modelcrawler/cmd/modelcrawler/cmd"
)

func main() {
	cmd.Execute()
}
