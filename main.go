package main

import "yqhp/mandelbrot/cmd"

func main() {
	cmd.Execute()
}
