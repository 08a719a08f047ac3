package main

import "djmix/cmd"

func main() {
	cmd.Execute()
}
