package main

import "github.com/aikara/image-vault/cmd"

func main() {
	cmd.Execute()
}
