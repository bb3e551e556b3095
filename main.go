package main

import "github.com/dezerx-spartan/Spartan-Bot/cmd"

func main() {
	cmd.Execute()
}
