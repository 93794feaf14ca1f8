package main

import "github.com/posturelab/posturehub/cmd"

func main() {
	cmd.Execute()
}
