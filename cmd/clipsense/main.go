package main

import "github.com/AnastasiosMedia/clipsense2/internal/cli"

func main() {
	cli.Main()
}
