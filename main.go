package main

import "github.com/threefoldtech/shipgate/cmd"

func main() {
	cmd.Execute()
}
