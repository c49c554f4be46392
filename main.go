package main

import "github.com/agubarev/orgkeeper/cmd"

func main() {
	cmd.Execute()
}
