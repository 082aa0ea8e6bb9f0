package main

import "github.com/theirongolddev/smriti/cmd"

func main() {
	cmd.Execute()
}
