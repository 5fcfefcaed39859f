package main

import "github.com/SashOkT/ElectricityPricingProject/internal/cli"

func main() {
	cli.Execute()
}
