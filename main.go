package main

import "github.com/andresmejia3/voxclip/cmd"

func main() {
	cmd.Execute()
}
