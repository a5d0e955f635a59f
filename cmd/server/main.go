package main

import "fotograf-backend/cmd"

func main() {
	cmd.Run()
}
