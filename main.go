package main

import "github.com/iksnae/justchat/cmd"

func main() {
	cmd.Execute()
}
