package main

import "github.com/mathemusician/church-volunteers/cmd"

func main() {
	cmd.Execute()
}
