package main

import "portfolio-price-sync/internal/cli"

func main() {
	cli.Execute()
}
